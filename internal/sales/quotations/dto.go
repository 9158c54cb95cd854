package quotations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteLineRequest describes one line of a create or update command. ID keeps
// an existing line on update; omitted IDs create new lines.
type QuoteLineRequest struct {
	ID          *int64          `json:"id,omitempty" validate:"omitempty,gt=0"`
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Description string          `json:"description" validate:"max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// CreateQuoteRequest is the CreateQuote command.
type CreateQuoteRequest struct {
	CustomerID     uuid.UUID          `json:"customer_id" validate:"required"`
	CurrencyID     int64              `json:"currency_id" validate:"required,gt=0"`
	QuoteDate      time.Time          `json:"quote_date" validate:"required"`
	ValidUntil     time.Time          `json:"valid_until" validate:"required,gtfield=QuoteDate"`
	Lines          []QuoteLineRequest `json:"lines" validate:"required,min=1,dive"`
	IdempotencyKey string             `json:"-"`
}

// UpdateQuoteRequest is the UpdateQuote command. Nil fields stay unchanged;
// Lines, when present, replaces the whole line set.
type UpdateQuoteRequest struct {
	CustomerID *uuid.UUID          `json:"customer_id,omitempty"`
	CurrencyID *int64              `json:"currency_id,omitempty" validate:"omitempty,gt=0"`
	QuoteDate  *time.Time          `json:"quote_date,omitempty"`
	ValidUntil *time.Time          `json:"valid_until,omitempty"`
	Status     *QuoteStatus        `json:"status,omitempty"`
	Lines      *[]QuoteLineRequest `json:"lines,omitempty" validate:"omitempty,min=1,dive"`
}

// LineChange is a customer's proposed quantity for one line.
type LineChange struct {
	LineID      int64           `json:"line_id" validate:"required,gt=0"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
}

// RequestChangeRequest is the RequestChange command.
type RequestChangeRequest struct {
	Notes        string       `json:"notes" validate:"required,max=2000"`
	UpdatedLines []LineChange `json:"updated_lines" validate:"dive"`
}

// Sort keys accepted by List.
const (
	SortAsc  = "asc"
	SortDesc = "desc"

	SortByDate     = "date"
	SortByCustomer = "customer"
	SortByAmount   = "amount"
)

// ListQuotesRequest filters the quote list.
type ListQuotesRequest struct {
	CustomerID      *uuid.UUID
	Status          *QuoteStatus
	DateFrom        *time.Time
	DateTo          *time.Time
	IncludeInactive bool
	Search          string
	SortBy          string
	SortOrder       string // asc or desc, default desc
	Limit           int
	Offset          int
}
