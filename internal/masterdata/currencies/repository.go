// Package currencies exposes the currency existence check used when quoting.
package currencies

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// ErrCurrencyNotFound indicates an unknown or inactive currency.
var ErrCurrencyNotFound = fmt.Errorf("%w: currency", shared.ErrNotFound)

// Repository reads the currencies table.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// EnsureActive fails with ErrCurrencyNotFound unless the currency exists and is active.
func (r *Repository) EnsureActive(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM currencies WHERE id=$1 AND is_active)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("currencies: check %d: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("%w: id %d", ErrCurrencyNotFound, id)
	}
	return nil
}
