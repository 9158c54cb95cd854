package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/ar"
	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceIssued notifies a customer about a materialized invoice.
	TaskInvoiceIssued = "invoice:issued"
	// TaskInvoiceOverdueSweep flips SENT invoices past their due date to OVERDUE.
	TaskInvoiceOverdueSweep = "invoice:overdue-sweep"
)

// InvoiceIssuedPayload describes the invoice created by an approval.
type InvoiceIssuedPayload struct {
	InvoiceID   int64           `json:"invoice_id"`
	Number      string          `json:"number"`
	QuoteNumber string          `json:"quote_number"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DueDate     time.Time       `json:"due_date"`
}

// NewInvoiceIssuedTask constructs the notification task for inv.
func NewInvoiceIssuedTask(inv *ar.Invoice) (*asynq.Task, error) {
	if inv == nil {
		return nil, errors.New("jobs: invoice required")
	}
	data, err := json.Marshal(InvoiceIssuedPayload{
		InvoiceID:   inv.ID,
		Number:      inv.Number,
		QuoteNumber: inv.QuoteNumber,
		CustomerID:  inv.CustomerID,
		TotalAmount: inv.TotalAmount,
		DueDate:     inv.DueDate,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceIssued, data), nil
}

// OverdueSweepPayload optionally pins the reference time of a sweep.
type OverdueSweepPayload struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

// NewOverdueSweepTask constructs the sweep task. A nil asOf sweeps against the
// time the worker picks the task up.
func NewOverdueSweepTask(asOf *time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(OverdueSweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceOverdueSweep, data), nil
}

// InvoiceIssuedJob handles TaskInvoiceIssued. Delivery is logged; a mail
// transport can replace Deliver.
type InvoiceIssuedJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Deliver func(context.Context, InvoiceIssuedPayload) error
}

// Handle decodes the payload and hands it to Deliver.
func (j *InvoiceIssuedJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	var payload InvoiceIssuedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: decode %s: %v: %w", TaskInvoiceIssued, err, asynq.SkipRetry)
	}
	if payload.InvoiceID == 0 || payload.Number == "" {
		return fmt.Errorf("jobs: %s without invoice: %w", TaskInvoiceIssued, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskInvoiceIssued)
	defer func() { err = tracker.End(err) }()

	logger := logOrDefault(j.Logger).With(
		slog.Int64("invoice_id", payload.InvoiceID),
		slog.String("invoice_number", payload.Number),
		slog.String("customer_id", payload.CustomerID.String()),
	)
	if j.Deliver != nil {
		if err := j.Deliver(ctx, payload); err != nil {
			logger.Error("invoice notification failed", slog.Any("error", err))
			return err
		}
	}
	logger.Info("invoice notification sent",
		slog.String("quote_number", payload.QuoteNumber),
		slog.String("total_amount", payload.TotalAmount.StringFixed(2)),
		slog.Time("due_date", payload.DueDate),
	)
	return nil
}

// OverdueMarker is the slice of ar.Service the sweep needs.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// OverdueSweepJob handles TaskInvoiceOverdueSweep.
type OverdueSweepJob struct {
	Invoices OverdueMarker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Clock    func() time.Time
}

// Handle runs one sweep.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Invoices == nil {
		return errors.New("jobs: overdue sweep not configured")
	}
	var payload OverdueSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: decode %s: %v: %w", TaskInvoiceOverdueSweep, err, asynq.SkipRetry)
		}
	}
	asOf := time.Now()
	if j.Clock != nil {
		asOf = j.Clock()
	}
	if payload.AsOf != nil {
		asOf = *payload.AsOf
	}

	tracker := j.Metrics.Track(TaskInvoiceOverdueSweep)
	defer func() { err = tracker.End(err) }()

	n, err := j.Invoices.MarkOverdue(ctx, asOf)
	if err != nil {
		logOrDefault(j.Logger).Error("overdue sweep failed", slog.Any("error", err))
		return err
	}
	logOrDefault(j.Logger).Info("overdue sweep completed",
		slog.Int64("invoices", n),
		slog.Time("as_of", asOf),
	)
	return nil
}

func logOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
