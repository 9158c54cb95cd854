package ar

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// InvoiceStatus enumerates invoice statuses.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "DRAFT"
	InvoiceStatusSent    InvoiceStatus = "SENT"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// Invoice is the billing record materialized from an approved quote. Lines are
// copies and never follow later quote edits.
type Invoice struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	QuoteID     *int64          `json:"quote_id,omitempty"`
	QuoteNumber string          `json:"quote_number"`
	CurrencyID  int64           `json:"currency_id"`
	InvoiceDate time.Time       `json:"invoice_date"`
	DueDate     time.Time       `json:"due_date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      InvoiceStatus   `json:"status"`
	Lines       []InvoiceLine   `json:"lines"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InvoiceLine is a snapshot of one quote line.
type InvoiceLine struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	ProductID   int64           `json:"product_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
	LineOrder   int             `json:"line_order"`
}

// Source is the approved quote handed to the materializer.
type Source struct {
	QuoteID     int64
	QuoteNumber string
	CustomerID  uuid.UUID
	CurrencyID  int64
	TotalAmount decimal.Decimal
	Lines       []SourceLine
}

// SourceLine is one approved quote line.
type SourceLine struct {
	ProductID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// Invoice errors.
var (
	ErrInvoiceNotFound = fmt.Errorf("%w: invoice", shared.ErrNotFound)
	ErrAlreadyInvoiced = fmt.Errorf("%w: quote already invoiced", shared.ErrInvalidTransition)
	ErrEmptySource     = fmt.Errorf("%w: cannot invoice a quote without lines", shared.ErrValidation)
)
