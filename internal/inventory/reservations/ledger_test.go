package reservations

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

type memoryStore struct {
	products map[int64]products.Product
	locked   []int64
	saves    int
}

func newMemoryStore(items ...products.Product) *memoryStore {
	store := &memoryStore{products: map[int64]products.Product{}}
	for _, p := range items {
		store.products[p.ID] = p
	}
	return store
}

func (s *memoryStore) GetProductForUpdate(_ context.Context, id int64) (products.Product, error) {
	s.locked = append(s.locked, id)
	p, ok := s.products[id]
	if !ok {
		return products.Product{}, products.ErrProductNotFound
	}
	return p, nil
}

func (s *memoryStore) SaveReservedQuantity(_ context.Context, id int64, reserved decimal.Decimal) error {
	p := s.products[id]
	p.ReservedQuantity = reserved
	s.products[id] = p
	s.saves++
	return nil
}

func (s *memoryStore) reserved(id int64) decimal.Decimal {
	return s.products[id].ReservedQuantity
}

func qty(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func product(id, stock, reserved int64) products.Product {
	return products.Product{ID: id, StockQuantity: qty(stock), ReservedQuantity: qty(reserved), IsActive: true}
}

func TestReserveIncrementsCounter(t *testing.T) {
	store := newMemoryStore(product(1, 100, 0))
	ledger := NewLedger(store, Options{EnforceStock: true})

	require.NoError(t, ledger.Reserve(context.Background(), 1, qty(10)))
	require.NoError(t, ledger.Reserve(context.Background(), 1, decimal.RequireFromString("2.5")))
	require.True(t, store.reserved(1).Equal(decimal.RequireFromString("12.5")))
}

func TestReserveUnknownProduct(t *testing.T) {
	ledger := NewLedger(newMemoryStore(), Options{})
	err := ledger.Reserve(context.Background(), 42, qty(1))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReserveRejectsBeyondAvailable(t *testing.T) {
	store := newMemoryStore(product(1, 10, 8))
	ledger := NewLedger(store, Options{EnforceStock: true})

	err := ledger.Reserve(context.Background(), 1, qty(3))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, store.reserved(1).Equal(qty(8)))
}

func TestReserveWithoutEnforcementOversells(t *testing.T) {
	store := newMemoryStore(product(1, 10, 8))
	ledger := NewLedger(store, Options{})

	require.NoError(t, ledger.Reserve(context.Background(), 1, qty(3)))
	require.True(t, store.reserved(1).Equal(qty(11)))
}

func TestReserveRejectsNonPositive(t *testing.T) {
	ledger := NewLedger(newMemoryStore(product(1, 10, 0)), Options{})
	require.ErrorIs(t, ledger.Reserve(context.Background(), 1, decimal.Zero), shared.ErrValidation)
	require.ErrorIs(t, ledger.Release(context.Background(), 1, qty(-1)), shared.ErrValidation)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	store := newMemoryStore(product(1, 10, 4))
	ledger := NewLedger(store, Options{EnforceStock: true})

	require.NoError(t, ledger.Release(context.Background(), 1, qty(9)))
	require.True(t, store.reserved(1).IsZero())
}

func TestRebalanceAppliesNetChange(t *testing.T) {
	store := newMemoryStore(product(1, 100, 5))
	ledger := NewLedger(store, Options{EnforceStock: true})

	movements, err := ledger.Rebalance(context.Background(),
		[]Line{{ProductID: 1, Quantity: qty(5)}},
		[]Line{{ProductID: 1, Quantity: qty(3)}},
	)
	require.NoError(t, err)
	require.True(t, store.reserved(1).Equal(qty(3)))
	require.Len(t, movements, 1)
	require.True(t, movements[0].After.Sub(movements[0].Before).Equal(qty(-2)))
	require.Equal(t, 1, store.saves)
}

func TestRebalanceReleasesBeforeChecking(t *testing.T) {
	store := newMemoryStore(product(1, 10, 10))
	ledger := NewLedger(store, Options{EnforceStock: true})

	_, err := ledger.Rebalance(context.Background(),
		[]Line{{ProductID: 1, Quantity: qty(10)}},
		[]Line{{ProductID: 1, Quantity: qty(8)}},
	)
	require.NoError(t, err)
	require.True(t, store.reserved(1).Equal(qty(8)))

	_, err = ledger.Rebalance(context.Background(),
		[]Line{{ProductID: 1, Quantity: qty(8)}},
		[]Line{{ProductID: 1, Quantity: qty(11)}},
	)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestRebalanceShrinkSucceedsWhenOversold(t *testing.T) {
	store := newMemoryStore(product(1, 5, 10))
	ledger := NewLedger(store, Options{EnforceStock: true})

	movements, err := ledger.Rebalance(context.Background(),
		[]Line{{ProductID: 1, Quantity: qty(10)}},
		[]Line{{ProductID: 1, Quantity: qty(8)}},
	)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.True(t, store.reserved(1).Equal(qty(8)))

	_, err = ledger.Rebalance(context.Background(),
		[]Line{{ProductID: 1, Quantity: qty(8)}},
		[]Line{{ProductID: 1, Quantity: qty(8)}},
	)
	require.NoError(t, err)
	require.True(t, store.reserved(1).Equal(qty(8)))

	_, err = ledger.Rebalance(context.Background(),
		[]Line{{ProductID: 1, Quantity: qty(8)}},
		[]Line{{ProductID: 1, Quantity: qty(9)}},
	)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, store.reserved(1).Equal(qty(8)))
}

func TestRebalanceLocksInAscendingOrderOnce(t *testing.T) {
	store := newMemoryStore(product(1, 50, 0), product(2, 50, 4), product(3, 50, 0))
	ledger := NewLedger(store, Options{EnforceStock: true})

	_, err := ledger.Rebalance(context.Background(),
		[]Line{{ProductID: 2, Quantity: qty(4)}},
		[]Line{
			{ProductID: 3, Quantity: qty(1)},
			{ProductID: 1, Quantity: qty(2)},
			{ProductID: 3, Quantity: qty(2)},
			{ProductID: 2, Quantity: qty(4)},
		},
	)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, store.locked)
	require.True(t, store.reserved(1).Equal(qty(2)))
	require.True(t, store.reserved(2).Equal(qty(4)))
	require.True(t, store.reserved(3).Equal(qty(3)))
	require.Equal(t, 2, store.saves)
}

func TestHoldAndDropAreSymmetric(t *testing.T) {
	store := newMemoryStore(product(1, 20, 0), product(2, 20, 0))
	ledger := NewLedger(store, Options{EnforceStock: true})
	lines := []Line{{ProductID: 1, Quantity: qty(5)}, {ProductID: 2, Quantity: qty(7)}}

	_, err := ledger.Hold(context.Background(), lines)
	require.NoError(t, err)
	require.True(t, store.reserved(2).Equal(qty(7)))

	_, err = ledger.Drop(context.Background(), lines)
	require.NoError(t, err)
	require.True(t, store.reserved(1).IsZero())
	require.True(t, store.reserved(2).IsZero())
}
