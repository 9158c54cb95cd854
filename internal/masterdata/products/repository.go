package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// ErrProductNotFound indicates a missing product row.
var ErrProductNotFound = fmt.Errorf("%w: product", shared.ErrNotFound)

const productColumns = `id, sku, name, price, currency_id, stock_quantity, reserved_quantity, is_active, updated_at`

// Repository reads products outside of a lifecycle transaction.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Get loads a product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id), id)
}

// TxStore reads and writes reservation counters inside a transaction.
type TxStore struct {
	tx db.DBTX
}

// NewTxStore binds the ledger accessor to a transaction.
func NewTxStore(tx db.DBTX) *TxStore {
	return &TxStore{tx: tx}
}

// GetProductForUpdate loads the product and holds its row lock until the
// transaction ends.
func (s *TxStore) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	return scanProduct(s.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id), id)
}

// SaveReservedQuantity writes the reservation counter.
func (s *TxStore) SaveReservedQuantity(ctx context.Context, id int64, reserved decimal.Decimal) error {
	tag, err := s.tx.Exec(ctx, `UPDATE products SET reserved_quantity=$2, updated_at=NOW() WHERE id=$1`, id, reserved)
	if err != nil {
		return fmt.Errorf("products: save reserved quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}
	return nil
}

func scanProduct(row pgx.Row, id int64) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.CurrencyID, &p.StockQuantity, &p.ReservedQuantity, &p.IsActive, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
		}
		return Product{}, fmt.Errorf("products: load %d: %w", id, err)
	}
	return p, nil
}
