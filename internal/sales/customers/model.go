package customers

import (
	"github.com/google/uuid"
)

// Customer owns quotes and receives invoices. ApplicationUserID links the
// record to the identity that signs in on the customer's behalf.
type Customer struct {
	ID                uuid.UUID  `json:"id"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	CompanyID         int64      `json:"company_id"`
	ApplicationUserID *uuid.UUID `json:"application_user_id,omitempty"`
	IsActive          bool       `json:"is_active"`
}

// DisplayName joins first and last name.
func (c Customer) DisplayName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
