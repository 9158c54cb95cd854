package quotations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/ar"
	"github.com/odyssey-erp/odyssey-quotes/internal/inventory/reservations"
	"github.com/odyssey-erp/odyssey-quotes/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Repository exposes quote persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Quote, error)
	List(ctx context.Context, req ListQuotesRequest) ([]QuoteSummary, int, error)
}

// TxRepository is the transaction scoped write side. Every lifecycle command
// locks the quote row with GetForUpdate before touching anything else.
type TxRepository interface {
	shared.SequenceSource
	GetForUpdate(ctx context.Context, id int64) (*Quote, error)
	// Insert stores header and lines. A number collision returns shared.ErrNumberTaken.
	Insert(ctx context.Context, q *Quote) error
	UpdateHeader(ctx context.Context, q *Quote) error
	// ReplaceLines makes lines the quote's full line set and returns them with ids.
	ReplaceLines(ctx context.Context, quoteID int64, lines []QuoteLine) ([]QuoteLine, error)
	SetRequestedQuantities(ctx context.Context, quoteID int64, changes map[int64]decimal.Decimal) error
	ClearRequestedQuantities(ctx context.Context, quoteID int64) error
	Delete(ctx context.Context, id int64) error
	Products() reservations.ProductStore
	Invoices() ar.TxStore
}

const (
	constraintQuoteNumber = "quotations_number_key"

	quoteColumns = `id, number, customer_id, currency_id, quote_date, valid_until, total_amount, status, is_active, change_request_notes, created_by, created_at, updated_at`
	lineColumns  = `id, quotation_id, product_id, description, quantity, unit_price, total, requested_quantity, line_order`
)

// PostgresRepository implements Repository over a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// WithTx runs fn in a ReadCommitted transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, newTxRepository(tx))
	})
}

// Get loads a quote with its lines.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*Quote, error) {
	return loadQuote(ctx, r.pool, `SELECT `+quoteColumns+` FROM quotations WHERE id=$1`, id)
}

// List returns one page of quote summaries and the unpaged total.
func (r *PostgresRepository) List(ctx context.Context, req ListQuotesRequest) ([]QuoteSummary, int, error) {
	where, args := listFilters(req)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotations q JOIN customers c ON c.id = q.customer_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("quotations: count: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, req.Offset)
	query := `SELECT q.id, q.number, q.customer_id, TRIM(c.first_name || ' ' || c.last_name), q.currency_id, q.quote_date,
q.valid_until, q.total_amount, q.status, q.is_active,
(SELECT COUNT(*) FROM quotation_lines l WHERE l.quotation_id = q.id)
FROM quotations q JOIN customers c ON c.id = q.customer_id` + where +
		` ORDER BY ` + listOrder(req) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("quotations: list: %w", err)
	}
	defer rows.Close()

	summaries := []QuoteSummary{}
	for rows.Next() {
		var s QuoteSummary
		if err := rows.Scan(&s.ID, &s.Number, &s.CustomerID, &s.CustomerName, &s.CurrencyID, &s.QuoteDate,
			&s.ValidUntil, &s.TotalAmount, &s.Status, &s.IsActive, &s.LineCount); err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

func listFilters(req ListQuotesRequest) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !req.IncludeInactive {
		clauses = append(clauses, "q.is_active")
	}
	if req.CustomerID != nil {
		add("q.customer_id = $%d", *req.CustomerID)
	}
	if req.Status != nil {
		add("q.status = $%d", *req.Status)
	}
	if req.DateFrom != nil {
		add("q.quote_date >= $%d::date", *req.DateFrom)
	}
	if req.DateTo != nil {
		add("q.quote_date <= $%d::date", *req.DateTo)
	}
	if search := strings.TrimSpace(req.Search); search != "" {
		add(`(q.number ILIKE $%[1]d OR c.first_name ILIKE $%[1]d OR c.last_name ILIKE $%[1]d
OR EXISTS (SELECT 1 FROM quotation_lines sl WHERE sl.quotation_id = q.id AND sl.description ILIKE $%[1]d))`, "%"+search+"%")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func listOrder(req ListQuotesRequest) string {
	dir := "DESC"
	if strings.EqualFold(req.SortOrder, SortAsc) {
		dir = "ASC"
	}
	switch req.SortBy {
	case SortByCustomer:
		return "c.last_name " + dir + ", c.first_name " + dir + ", q.id " + dir
	case SortByAmount:
		return "q.total_amount " + dir + ", q.id " + dir
	default:
		return "q.quote_date " + dir + ", q.id " + dir
	}
}

type txRepository struct {
	tx       pgx.Tx
	products *products.TxStore
	invoices *ar.TxRepository
	*shared.SequenceTable
}

func newTxRepository(tx pgx.Tx) *txRepository {
	return &txRepository{
		tx:            tx,
		products:      products.NewTxStore(tx),
		invoices:      ar.NewTxRepository(tx),
		SequenceTable: shared.NewSequenceTable(tx),
	}
}

func (r *txRepository) Products() reservations.ProductStore { return r.products }

func (r *txRepository) Invoices() ar.TxStore { return r.invoices }

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (*Quote, error) {
	return loadQuote(ctx, r.tx, `SELECT `+quoteColumns+` FROM quotations WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) Insert(ctx context.Context, q *Quote) error {
	err := db.WithSavepoint(ctx, r.tx, func(sp pgx.Tx) error {
		err := sp.QueryRow(ctx, `INSERT INTO quotations (number, customer_id, currency_id, quote_date, valid_until, total_amount, status, is_active, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id, created_at, updated_at`,
			q.Number, q.CustomerID, q.CurrencyID, q.QuoteDate, q.ValidUntil, q.TotalAmount, q.Status, q.IsActive, q.CreatedBy).
			Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
		if err != nil {
			return err
		}
		for i := range q.Lines {
			if err := insertLine(ctx, sp, q.ID, &q.Lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if constraint, ok := db.UniqueViolation(err); ok && constraint == constraintQuoteNumber {
		return fmt.Errorf("%w: %s", shared.ErrNumberTaken, q.Number)
	}
	return fmt.Errorf("quotations: insert: %w", err)
}

func (r *txRepository) UpdateHeader(ctx context.Context, q *Quote) error {
	err := r.tx.QueryRow(ctx, `UPDATE quotations SET customer_id=$2, currency_id=$3, quote_date=$4, valid_until=$5,
total_amount=$6, status=$7, is_active=$8, change_request_notes=$9, updated_at=NOW()
WHERE id=$1 RETURNING updated_at`,
		q.ID, q.CustomerID, q.CurrencyID, q.QuoteDate, q.ValidUntil, q.TotalAmount, q.Status, q.IsActive, q.ChangeRequestNotes).
		Scan(&q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: id %d", ErrQuoteNotFound, q.ID)
	}
	return err
}

func (r *txRepository) ReplaceLines(ctx context.Context, quoteID int64, lines []QuoteLine) ([]QuoteLine, error) {
	keep := make([]int64, 0, len(lines))
	listed := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if line.ID == 0 {
			continue
		}
		if listed[line.ID] {
			return nil, fmt.Errorf("%w: line %d", ErrDuplicateLine, line.ID)
		}
		listed[line.ID] = true
		keep = append(keep, line.ID)
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM quotation_lines WHERE quotation_id=$1 AND NOT (id = ANY($2))`, quoteID, keep); err != nil {
		return nil, fmt.Errorf("quotations: prune lines: %w", err)
	}
	out := make([]QuoteLine, len(lines))
	copy(out, lines)
	for i := range out {
		line := &out[i]
		line.LineOrder = i + 1
		if line.ID == 0 {
			if err := insertLine(ctx, r.tx, quoteID, line); err != nil {
				return nil, err
			}
			continue
		}
		tag, err := r.tx.Exec(ctx, `UPDATE quotation_lines SET product_id=$3, description=$4, quantity=$5, unit_price=$6,
total=$7, requested_quantity=NULL, line_order=$8 WHERE id=$1 AND quotation_id=$2`,
			line.ID, quoteID, line.ProductID, line.Description, line.Quantity, line.UnitPrice, line.Total, line.LineOrder)
		if err != nil {
			return nil, fmt.Errorf("quotations: update line %d: %w", line.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: line %d", ErrUnknownLine, line.ID)
		}
		line.QuoteID = quoteID
		line.RequestedQuantity = nil
	}
	return out, nil
}

func (r *txRepository) SetRequestedQuantities(ctx context.Context, quoteID int64, changes map[int64]decimal.Decimal) error {
	for lineID, qty := range changes {
		tag, err := r.tx.Exec(ctx, `UPDATE quotation_lines SET requested_quantity=$3 WHERE id=$1 AND quotation_id=$2`, lineID, quoteID, qty)
		if err != nil {
			return fmt.Errorf("quotations: request quantity line %d: %w", lineID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: line %d", ErrUnknownLine, lineID)
		}
	}
	return nil
}

func (r *txRepository) ClearRequestedQuantities(ctx context.Context, quoteID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE quotation_lines SET requested_quantity=NULL WHERE quotation_id=$1`, quoteID)
	return err
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM quotations WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("quotations: delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrQuoteNotFound, id)
	}
	return nil
}

func insertLine(ctx context.Context, conn db.DBTX, quoteID int64, line *QuoteLine) error {
	line.QuoteID = quoteID
	err := conn.QueryRow(ctx, `INSERT INTO quotation_lines (quotation_id, product_id, description, quantity, unit_price, total, line_order)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		quoteID, line.ProductID, line.Description, line.Quantity, line.UnitPrice, line.Total, line.LineOrder).Scan(&line.ID)
	if err != nil {
		return fmt.Errorf("quotations: insert line: %w", err)
	}
	return nil
}

func loadQuote(ctx context.Context, conn db.DBTX, query string, id int64) (*Quote, error) {
	var q Quote
	err := conn.QueryRow(ctx, query, id).Scan(&q.ID, &q.Number, &q.CustomerID, &q.CurrencyID, &q.QuoteDate, &q.ValidUntil,
		&q.TotalAmount, &q.Status, &q.IsActive, &q.ChangeRequestNotes, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrQuoteNotFound, id)
		}
		return nil, fmt.Errorf("quotations: load %d: %w", id, err)
	}

	rows, err := conn.Query(ctx, `SELECT `+lineColumns+` FROM quotation_lines WHERE quotation_id=$1 ORDER BY line_order, id`, id)
	if err != nil {
		return nil, fmt.Errorf("quotations: load lines %d: %w", id, err)
	}
	defer rows.Close()
	q.Lines = []QuoteLine{}
	for rows.Next() {
		var l QuoteLine
		if err := rows.Scan(&l.ID, &l.QuoteID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Total,
			&l.RequestedQuantity, &l.LineOrder); err != nil {
			return nil, err
		}
		q.Lines = append(q.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &q, nil
}
