// Package reservations keeps products.reserved_quantity in step with the quote
// lines that currently hold stock.
package reservations

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// ErrInvalidQuantity rejects zero or negative reservation amounts.
var ErrInvalidQuantity = fmt.Errorf("%w: reservation quantity must be positive", shared.ErrValidation)

// ProductStore is the transaction scoped product accessor.
type ProductStore interface {
	GetProductForUpdate(ctx context.Context, id int64) (products.Product, error)
	SaveReservedQuantity(ctx context.Context, id int64, reserved decimal.Decimal) error
}

// Line is a quantity of one product held by a quote line.
type Line struct {
	ProductID int64
	Quantity  decimal.Decimal
}

// Movement records how one product's counter changed.
type Movement struct {
	ProductID int64
	Before    decimal.Decimal
	After     decimal.Decimal
}

// Options tune ledger behaviour.
type Options struct {
	// EnforceStock rejects reservations beyond stock minus reserved.
	EnforceStock bool
}

// Ledger mutates reservation counters. Build one per transaction.
type Ledger struct {
	store ProductStore
	opts  Options
}

// NewLedger binds a ledger to a transaction scoped store.
func NewLedger(store ProductStore, opts Options) *Ledger {
	return &Ledger{store: store, opts: opts}
}

// Reserve increments the product's reserved quantity.
func (l *Ledger) Reserve(ctx context.Context, productID int64, qty decimal.Decimal) error {
	_, err := l.Rebalance(ctx, nil, []Line{{ProductID: productID, Quantity: qty}})
	return err
}

// Release decrements the product's reserved quantity, never below zero.
func (l *Ledger) Release(ctx context.Context, productID int64, qty decimal.Decimal) error {
	_, err := l.Rebalance(ctx, []Line{{ProductID: productID, Quantity: qty}}, nil)
	return err
}

// Hold reserves every line.
func (l *Ledger) Hold(ctx context.Context, lines []Line) ([]Movement, error) {
	return l.Rebalance(ctx, nil, lines)
}

// Drop releases every line.
func (l *Ledger) Drop(ctx context.Context, lines []Line) ([]Movement, error) {
	return l.Rebalance(ctx, lines, nil)
}

// Rebalance releases oldLines and then reserves newLines. Quantities are summed
// per product and products are locked in ascending id order, once each, so two
// transactions rebalancing overlapping products cannot deadlock. Availability
// is only checked for products whose held quantity grows, so shrinking a hold
// on an oversold product always succeeds.
func (l *Ledger) Rebalance(ctx context.Context, oldLines, newLines []Line) ([]Movement, error) {
	release, err := aggregate(oldLines)
	if err != nil {
		return nil, err
	}
	reserve, err := aggregate(newLines)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(release)+len(reserve))
	for id := range release {
		ids = append(ids, id)
	}
	for id := range reserve {
		if _, ok := release[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	movements := make([]Movement, 0, len(ids))
	for _, id := range ids {
		product, err := l.store.GetProductForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		reserved := product.ReservedQuantity
		if qty, ok := release[id]; ok {
			reserved = reserved.Sub(qty)
			if reserved.IsNegative() {
				reserved = decimal.Zero
			}
		}
		if qty, ok := reserve[id]; ok {
			if l.opts.EnforceStock && qty.GreaterThan(release[id]) {
				available := product.StockQuantity.Sub(reserved)
				if available.LessThan(qty) {
					return nil, fmt.Errorf("%w: product %d has %s available, %s requested", shared.ErrInsufficientStock, id, available.String(), qty.String())
				}
			}
			reserved = reserved.Add(qty)
		}
		if reserved.Equal(product.ReservedQuantity) {
			continue
		}
		if err := l.store.SaveReservedQuantity(ctx, id, reserved); err != nil {
			return nil, err
		}
		movements = append(movements, Movement{ProductID: id, Before: product.ReservedQuantity, After: reserved})
	}
	return movements, nil
}

func aggregate(lines []Line) (map[int64]decimal.Decimal, error) {
	totals := make(map[int64]decimal.Decimal, len(lines))
	for _, line := range lines {
		if !line.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: product %d quantity %s", ErrInvalidQuantity, line.ProductID, line.Quantity.String())
		}
		totals[line.ProductID] = totals[line.ProductID].Add(line.Quantity)
	}
	return totals, nil
}
