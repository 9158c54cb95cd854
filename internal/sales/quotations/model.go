package quotations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/ar"
	"github.com/odyssey-erp/odyssey-quotes/internal/inventory/reservations"
)

// QuoteStatus is the lifecycle state of a quote.
type QuoteStatus string

const (
	QuoteStatusDraft           QuoteStatus = "DRAFT"
	QuoteStatusPresented       QuoteStatus = "PRESENTED"
	QuoteStatusApproved        QuoteStatus = "APPROVED"
	QuoteStatusRejected        QuoteStatus = "REJECTED"
	QuoteStatusChangeRequested QuoteStatus = "CHANGE_REQUESTED"
)

// Valid reports whether s is a known status.
func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteStatusDraft, QuoteStatusPresented, QuoteStatusApproved, QuoteStatusRejected, QuoteStatusChangeRequested:
		return true
	}
	return false
}

// Quote is the aggregate root: header plus lines.
type Quote struct {
	ID                 int64           `json:"id"`
	Number             string          `json:"number"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	CurrencyID         int64           `json:"currency_id"`
	QuoteDate          time.Time       `json:"quote_date"`
	ValidUntil         time.Time       `json:"valid_until"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	Status             QuoteStatus     `json:"status"`
	IsActive           bool            `json:"is_active"`
	ChangeRequestNotes *string         `json:"change_request_notes,omitempty"`
	CreatedBy          *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Lines              []QuoteLine     `json:"lines"`
}

// QuoteLine is one priced product line. RequestedQuantity carries the
// customer's counter proposal while a change is requested.
type QuoteLine struct {
	ID                int64            `json:"id"`
	QuoteID           int64            `json:"quote_id"`
	ProductID         int64            `json:"product_id"`
	Description       string           `json:"description"`
	Quantity          decimal.Decimal  `json:"quantity"`
	UnitPrice         decimal.Decimal  `json:"unit_price"`
	Total             decimal.Decimal  `json:"total"`
	RequestedQuantity *decimal.Decimal `json:"requested_quantity,omitempty"`
	LineOrder         int              `json:"line_order"`
}

// QuoteSummary is a list row.
type QuoteSummary struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	CurrencyID   int64           `json:"currency_id"`
	QuoteDate    time.Time       `json:"quote_date"`
	ValidUntil   time.Time       `json:"valid_until"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       QuoteStatus     `json:"status"`
	IsActive     bool            `json:"is_active"`
	LineCount    int             `json:"line_count"`
}

// HoldsReservation reports whether the quote's lines count toward reserved stock.
func (q *Quote) HoldsReservation() bool {
	return Holds(q.Status, q.IsActive)
}

func (q *Quote) reservationLines() []reservations.Line {
	return reservationLines(q.Lines)
}

func (q *Quote) recomputeTotal() {
	total := decimal.Zero
	for _, line := range q.Lines {
		total = total.Add(line.Total)
	}
	q.TotalAmount = total
}

func (q *Quote) invoiceSource() ar.Source {
	src := ar.Source{
		QuoteID:     q.ID,
		QuoteNumber: q.Number,
		CustomerID:  q.CustomerID,
		CurrencyID:  q.CurrencyID,
		TotalAmount: q.TotalAmount,
		Lines:       make([]ar.SourceLine, 0, len(q.Lines)),
	}
	for _, line := range q.Lines {
		src.Lines = append(src.Lines, ar.SourceLine{
			ProductID:   line.ProductID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Total:       line.Total,
		})
	}
	return src
}

func reservationLines(lines []QuoteLine) []reservations.Line {
	out := make([]reservations.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, reservations.Line{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return out
}

// civilDate drops the clock part so validity compares calendar days, the way
// the DATE columns store them.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lineTotal(qty, unitPrice decimal.Decimal) decimal.Decimal {
	return qty.Mul(unitPrice).Round(2)
}
