package ar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

const (
	constraintInvoiceNumber = "invoices_number_key"
	constraintInvoiceQuote  = "invoices_quotation_id_key"

	invoiceColumns = `id, number, customer_id, quotation_id, quote_number, currency_id, invoice_date, due_date, total_amount, status, created_at`
)

// Repository provides PostgreSQL backed invoice reads.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Get loads an invoice with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrInvoiceNotFound, id)
		}
		return nil, err
	}
	lines, err := r.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

// List returns invoice headers, newest first. A nil customerID lists every customer.
func (r *Repository) List(ctx context.Context, customerID *uuid.UUID) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE ($1::uuid IS NULL OR customer_id = $1)
ORDER BY invoice_date DESC, id DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	invoices := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

// MarkOverdue flips sent invoices whose due date has passed.
func (r *Repository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET status=$1 WHERE status=$2 AND due_date < $3`, InvoiceStatusOverdue, InvoiceStatusSent, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) lines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := r.db.Query(ctx, `SELECT id, invoice_id, product_id, description, quantity, unit_price, total, line_order
FROM invoice_lines WHERE invoice_id=$1 ORDER BY line_order, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []InvoiceLine{}
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Total, &l.LineOrder); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	if err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.QuoteID, &inv.QuoteNumber, &inv.CurrencyID,
		&inv.InvoiceDate, &inv.DueDate, &inv.TotalAmount, &inv.Status, &inv.CreatedAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

// TxRepository writes invoices inside an outer transaction.
type TxRepository struct {
	tx pgx.Tx
	*shared.SequenceTable
}

// NewTxRepository binds invoice writes to tx.
func NewTxRepository(tx pgx.Tx) *TxRepository {
	return &TxRepository{tx: tx, SequenceTable: shared.NewSequenceTable(tx)}
}

// InsertInvoice stores header and lines under a savepoint so a number
// collision leaves the outer transaction usable for the retry.
func (r *TxRepository) InsertInvoice(ctx context.Context, inv *Invoice) error {
	err := db.WithSavepoint(ctx, r.tx, func(sp pgx.Tx) error {
		err := sp.QueryRow(ctx, `INSERT INTO invoices (number, customer_id, quotation_id, quote_number, currency_id, invoice_date, due_date, total_amount, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id, created_at`,
			inv.Number, inv.CustomerID, inv.QuoteID, inv.QuoteNumber, inv.CurrencyID, inv.InvoiceDate, inv.DueDate, inv.TotalAmount, inv.Status).
			Scan(&inv.ID, &inv.CreatedAt)
		if err != nil {
			return err
		}
		for i := range inv.Lines {
			line := &inv.Lines[i]
			line.InvoiceID = inv.ID
			if err := sp.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, product_id, description, quantity, unit_price, total, line_order)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
				inv.ID, line.ProductID, line.Description, line.Quantity, line.UnitPrice, line.Total, line.LineOrder).Scan(&line.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	switch constraint, ok := db.UniqueViolation(err); {
	case ok && constraint == constraintInvoiceNumber:
		return fmt.Errorf("%w: %s", shared.ErrNumberTaken, inv.Number)
	case ok && constraint == constraintInvoiceQuote:
		return ErrAlreadyInvoiced
	}
	return fmt.Errorf("ar: insert invoice: %w", err)
}
