package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// ErrCustomerNotFound indicates a missing customer row.
var ErrCustomerNotFound = fmt.Errorf("%w: customer", shared.ErrNotFound)

const customerColumns = `id, first_name, last_name, company_id, application_user_id, is_active`

// Repository reads customers.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Get loads a customer by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Customer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id)
	return scanCustomer(row, "id "+id.String())
}

// GetCustomerByApplicationUserID resolves the customer an identity acts for.
func (r *Repository) GetCustomerByApplicationUserID(ctx context.Context, userID uuid.UUID) (*Customer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE application_user_id=$1`, userID)
	return scanCustomer(row, "application user "+userID.String())
}

func scanCustomer(row pgx.Row, ref string) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.CompanyID, &c.ApplicationUserID, &c.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, ref)
		}
		return nil, fmt.Errorf("customers: load %s: %w", ref, err)
	}
	return &c, nil
}
