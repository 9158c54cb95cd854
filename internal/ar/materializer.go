package ar

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// DefaultGracePeriod is the payment window granted on materialized invoices.
const DefaultGracePeriod = 30 * 24 * time.Hour

// TxStore persists invoices inside the approval transaction.
type TxStore interface {
	shared.SequenceSource
	// InsertInvoice stores the header and lines, filling generated ids. A number
	// collision returns shared.ErrNumberTaken; a second invoice for the same
	// quote returns ErrAlreadyInvoiced.
	InsertInvoice(ctx context.Context, inv *Invoice) error
}

// MaterializerConfig tunes invoice creation.
type MaterializerConfig struct {
	GracePeriod  time.Duration
	NumberPrefix string
	MaxAttempts  int
}

// Materializer turns approved quotes into invoices.
type Materializer struct {
	grace    time.Duration
	numberer shared.DocNumberer
}

// NewMaterializer constructs a Materializer, applying defaults for zero values.
func NewMaterializer(cfg MaterializerConfig) *Materializer {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "FAT"
	}
	return &Materializer{
		grace:    cfg.GracePeriod,
		numberer: shared.DocNumberer{Prefix: cfg.NumberPrefix, MaxAttempts: cfg.MaxAttempts},
	}
}

// Materialize creates the invoice for src. It must run in the same
// transaction as the quote status change so both commit or neither does.
func (m *Materializer) Materialize(ctx context.Context, store TxStore, src Source, approvedAt time.Time) (*Invoice, error) {
	if len(src.Lines) == 0 {
		return nil, ErrEmptySource
	}
	quoteID := src.QuoteID
	inv := &Invoice{
		CustomerID:  src.CustomerID,
		QuoteID:     &quoteID,
		QuoteNumber: src.QuoteNumber,
		CurrencyID:  src.CurrencyID,
		InvoiceDate: approvedAt,
		DueDate:     approvedAt.Add(m.grace),
		TotalAmount: src.TotalAmount,
		Status:      InvoiceStatusSent,
		Lines:       make([]InvoiceLine, 0, len(src.Lines)),
	}
	for i, line := range src.Lines {
		inv.Lines = append(inv.Lines, InvoiceLine{
			ProductID:   line.ProductID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Total:       line.Total,
			LineOrder:   i + 1,
		})
	}

	_, err := m.numberer.Assign(ctx, store, approvedAt, func(number string) error {
		inv.Number = number
		return store.InsertInvoice(ctx, inv)
	})
	if err != nil {
		return nil, fmt.Errorf("ar: materialize invoice for quote %d: %w", src.QuoteID, err)
	}
	return inv, nil
}
