package quotations

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/ar"
	"github.com/odyssey-erp/odyssey-quotes/internal/inventory/reservations"
	"github.com/odyssey-erp/odyssey-quotes/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// memoryRepo keeps quotes, products and invoices in maps. WithTx restores a
// snapshot when fn fails so tests can observe rollback. Not safe for
// concurrent use.
type memoryRepo struct {
	state memoryState
	taken map[string]bool
}

type memoryState struct {
	quotes    map[int64]*Quote
	products  map[int64]products.Product
	invoices  map[int64]*ar.Invoice
	seq       map[string]int64
	nextQuote int64
	nextLine  int64
	nextInv   int64
}

func newMemoryRepo(items ...products.Product) *memoryRepo {
	repo := &memoryRepo{
		state: memoryState{
			quotes:   map[int64]*Quote{},
			products: map[int64]products.Product{},
			invoices: map[int64]*ar.Invoice{},
			seq:      map[string]int64{},
		},
		taken: map[string]bool{},
	}
	for _, p := range items {
		repo.state.products[p.ID] = p
	}
	return repo
}

func cloneQuote(q *Quote) *Quote {
	out := *q
	out.Lines = append([]QuoteLine(nil), q.Lines...)
	return &out
}

func (s memoryState) clone() memoryState {
	out := s
	out.quotes = make(map[int64]*Quote, len(s.quotes))
	for id, q := range s.quotes {
		out.quotes[id] = cloneQuote(q)
	}
	out.products = make(map[int64]products.Product, len(s.products))
	for id, p := range s.products {
		out.products[id] = p
	}
	out.invoices = make(map[int64]*ar.Invoice, len(s.invoices))
	for id, inv := range s.invoices {
		cp := *inv
		out.invoices[id] = &cp
	}
	out.seq = make(map[string]int64, len(s.seq))
	for k, v := range s.seq {
		out.seq[k] = v
	}
	return out
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (*Quote, error) {
	q, ok := m.state.quotes[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrQuoteNotFound, id)
	}
	return cloneQuote(q), nil
}

func (m *memoryRepo) List(_ context.Context, req ListQuotesRequest) ([]QuoteSummary, int, error) {
	ids := make([]int64, 0, len(m.state.quotes))
	for id := range m.state.quotes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := []QuoteSummary{}
	for _, id := range ids {
		q := m.state.quotes[id]
		if !req.IncludeInactive && !q.IsActive {
			continue
		}
		if req.CustomerID != nil && q.CustomerID != *req.CustomerID {
			continue
		}
		if req.Status != nil && q.Status != *req.Status {
			continue
		}
		out = append(out, QuoteSummary{
			ID: q.ID, Number: q.Number, CustomerID: q.CustomerID, CurrencyID: q.CurrencyID,
			QuoteDate: q.QuoteDate, ValidUntil: q.ValidUntil, TotalAmount: q.TotalAmount,
			Status: q.Status, IsActive: q.IsActive, LineCount: len(q.Lines),
		})
	}
	return out, len(out), nil
}

// reservedFor sums the lines of holding quotes for productID.
func (m *memoryRepo) reservedFor(productID int64) decimal.Decimal {
	total := decimal.Zero
	for _, q := range m.state.quotes {
		if !q.HoldsReservation() {
			continue
		}
		for _, line := range q.Lines {
			if line.ProductID == productID {
				total = total.Add(line.Quantity)
			}
		}
	}
	return total
}

func (m *memoryRepo) product(id int64) products.Product {
	return m.state.products[id]
}

func (m *memoryRepo) invoices() []*ar.Invoice {
	out := make([]*ar.Invoice, 0, len(m.state.invoices))
	for _, inv := range m.state.invoices {
		out = append(out, inv)
	}
	return out
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) state() *memoryState { return &t.repo.state }

func (t *memoryTx) NextSequence(_ context.Context, docType, period string) (int64, error) {
	key := docType + "/" + period
	t.state().seq[key]++
	return t.state().seq[key], nil
}

func (t *memoryTx) GetForUpdate(_ context.Context, id int64) (*Quote, error) {
	q, ok := t.state().quotes[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrQuoteNotFound, id)
	}
	return cloneQuote(q), nil
}

func (t *memoryTx) numberTaken(number string) bool {
	if t.repo.taken[number] {
		return true
	}
	for _, q := range t.state().quotes {
		if q.Number == number {
			return true
		}
	}
	return false
}

func (t *memoryTx) Insert(_ context.Context, q *Quote) error {
	if t.numberTaken(q.Number) {
		return fmt.Errorf("%w: %s", shared.ErrNumberTaken, q.Number)
	}
	st := t.state()
	st.nextQuote++
	q.ID = st.nextQuote
	for i := range q.Lines {
		st.nextLine++
		q.Lines[i].ID = st.nextLine
		q.Lines[i].QuoteID = q.ID
	}
	st.quotes[q.ID] = cloneQuote(q)
	return nil
}

func (t *memoryTx) UpdateHeader(_ context.Context, q *Quote) error {
	stored, ok := t.state().quotes[q.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrQuoteNotFound, q.ID)
	}
	updated := cloneQuote(q)
	updated.Lines = stored.Lines
	t.state().quotes[q.ID] = updated
	return nil
}

func (t *memoryTx) ReplaceLines(_ context.Context, quoteID int64, lines []QuoteLine) ([]QuoteLine, error) {
	st := t.state()
	stored, ok := st.quotes[quoteID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrQuoteNotFound, quoteID)
	}
	known := map[int64]bool{}
	for _, line := range stored.Lines {
		known[line.ID] = true
	}
	listed := map[int64]bool{}
	out := append([]QuoteLine(nil), lines...)
	for i := range out {
		if out[i].ID != 0 {
			if listed[out[i].ID] {
				return nil, fmt.Errorf("%w: line %d", ErrDuplicateLine, out[i].ID)
			}
			listed[out[i].ID] = true
		}
		out[i].QuoteID = quoteID
		out[i].LineOrder = i + 1
		out[i].RequestedQuantity = nil
		if out[i].ID == 0 {
			st.nextLine++
			out[i].ID = st.nextLine
		} else if !known[out[i].ID] {
			return nil, fmt.Errorf("%w: line %d", ErrUnknownLine, out[i].ID)
		}
	}
	stored.Lines = append([]QuoteLine(nil), out...)
	return out, nil
}

func (t *memoryTx) SetRequestedQuantities(_ context.Context, quoteID int64, changes map[int64]decimal.Decimal) error {
	stored := t.state().quotes[quoteID]
	for lineID, qty := range changes {
		found := false
		for i := range stored.Lines {
			if stored.Lines[i].ID == lineID {
				v := qty
				stored.Lines[i].RequestedQuantity = &v
				found = true
			}
		}
		if !found {
			return fmt.Errorf("%w: line %d", ErrUnknownLine, lineID)
		}
	}
	return nil
}

func (t *memoryTx) ClearRequestedQuantities(_ context.Context, quoteID int64) error {
	stored := t.state().quotes[quoteID]
	for i := range stored.Lines {
		stored.Lines[i].RequestedQuantity = nil
	}
	return nil
}

func (t *memoryTx) Delete(_ context.Context, id int64) error {
	if _, ok := t.state().quotes[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrQuoteNotFound, id)
	}
	delete(t.state().quotes, id)
	for _, inv := range t.state().invoices {
		if inv.QuoteID != nil && *inv.QuoteID == id {
			inv.QuoteID = nil
		}
	}
	return nil
}

func (t *memoryTx) Products() reservations.ProductStore { return memoryProducts{tx: t} }

func (t *memoryTx) Invoices() ar.TxStore { return memoryInvoices{tx: t} }

type memoryProducts struct{ tx *memoryTx }

func (p memoryProducts) GetProductForUpdate(_ context.Context, id int64) (products.Product, error) {
	prod, ok := p.tx.state().products[id]
	if !ok {
		return products.Product{}, products.ErrProductNotFound
	}
	return prod, nil
}

func (p memoryProducts) SaveReservedQuantity(_ context.Context, id int64, reserved decimal.Decimal) error {
	prod := p.tx.state().products[id]
	prod.ReservedQuantity = reserved
	p.tx.state().products[id] = prod
	return nil
}

type memoryInvoices struct{ tx *memoryTx }

func (i memoryInvoices) NextSequence(ctx context.Context, docType, period string) (int64, error) {
	return i.tx.NextSequence(ctx, docType, period)
}

func (i memoryInvoices) InsertInvoice(_ context.Context, inv *ar.Invoice) error {
	st := i.tx.state()
	for _, existing := range st.invoices {
		if existing.Number == inv.Number {
			return fmt.Errorf("%w: %s", shared.ErrNumberTaken, inv.Number)
		}
		if existing.QuoteID != nil && inv.QuoteID != nil && *existing.QuoteID == *inv.QuoteID {
			return ar.ErrAlreadyInvoiced
		}
	}
	st.nextInv++
	inv.ID = st.nextInv
	cp := *inv
	st.invoices[inv.ID] = &cp
	return nil
}

// productReader reads products outside a transaction.
type productReader struct{ repo *memoryRepo }

func (r productReader) Get(_ context.Context, id int64) (products.Product, error) {
	p, ok := r.repo.state.products[id]
	if !ok {
		return products.Product{}, products.ErrProductNotFound
	}
	return p, nil
}

type memoryCustomers map[uuid.UUID]*customers.Customer

func (m memoryCustomers) Get(_ context.Context, id uuid.UUID) (*customers.Customer, error) {
	c, ok := m[id]
	if !ok {
		return nil, customers.ErrCustomerNotFound
	}
	return c, nil
}

func (m memoryCustomers) GetCustomerByApplicationUserID(_ context.Context, userID uuid.UUID) (*customers.Customer, error) {
	for _, c := range m {
		if c.ApplicationUserID != nil && *c.ApplicationUserID == userID {
			return c, nil
		}
	}
	return nil, customers.ErrCustomerNotFound
}

type memoryCurrencies map[int64]bool

func (m memoryCurrencies) EnsureActive(_ context.Context, id int64) error {
	if !m[id] {
		return fmt.Errorf("%w: currency %d", shared.ErrNotFound, id)
	}
	return nil
}

type memoryAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

type memoryIdempotency map[string]bool

func (m memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if m[key] {
		return shared.ErrIdempotencyConflict
	}
	m[key] = true
	return nil
}

func (m memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

type memoryNotifier struct {
	issued []string
	err    error
}

func (n *memoryNotifier) InvoiceIssued(_ context.Context, inv *ar.Invoice) error {
	n.issued = append(n.issued, inv.Number)
	return n.err
}
