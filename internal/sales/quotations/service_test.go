package quotations

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/odyssey-erp/odyssey-quotes/internal/ar"
	"github.com/odyssey-erp/odyssey-quotes/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

var fixedNow = time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	audit    *memoryAudit
	idem     memoryIdempotency
	notifier *memoryNotifier
	admin    shared.Actor
	owner    shared.Actor
	stranger shared.Actor
	customer uuid.UUID
}

func qty(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newFixture(t *testing.T, items ...products.Product) *fixture {
	t.Helper()
	if len(items) == 0 {
		items = []products.Product{
			{ID: 1, Name: "Widget", StockQuantity: qty(100), IsActive: true},
			{ID: 2, Name: "Gadget", StockQuantity: qty(50), IsActive: true},
		}
	}
	repo := newMemoryRepo(items...)

	ownerUser := uuid.New()
	strangerUser := uuid.New()
	customerID := uuid.New()
	otherCustomer := uuid.New()
	directory := memoryCustomers{
		customerID:    {ID: customerID, FirstName: "Sari", LastName: "Dewi", ApplicationUserID: &ownerUser, IsActive: true},
		otherCustomer: {ID: otherCustomer, FirstName: "Budi", LastName: "Santoso", ApplicationUserID: &strangerUser, IsActive: true},
	}

	f := &fixture{
		repo:     repo,
		audit:    &memoryAudit{},
		idem:     memoryIdempotency{},
		notifier: &memoryNotifier{},
		admin:    shared.Actor{UserID: uuid.New(), Role: shared.RoleAdmin},
		owner:    shared.Actor{UserID: ownerUser, Role: shared.RoleCustomer},
		stranger: shared.Actor{UserID: strangerUser, Role: shared.RoleCustomer},
		customer: customerID,
	}
	f.svc = NewService(ServiceDeps{
		Repo:         repo,
		Customers:    directory,
		Currencies:   memoryCurrencies{1: true},
		Products:     productReader{repo: repo},
		Materializer: ar.NewMaterializer(ar.MaterializerConfig{}),
		Audit:        f.audit,
		Idempotency:  f.idem,
		Notifier:     f.notifier,
		Tracer:       noop.NewTracerProvider().Tracer("quotations-test"),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:        func() time.Time { return fixedNow },
	}, ServiceConfig{NumberPrefix: "TEK", EnforceStock: true})
	return f
}

func (f *fixture) createRequest(lines ...QuoteLineRequest) CreateQuoteRequest {
	if len(lines) == 0 {
		lines = []QuoteLineRequest{{ProductID: 1, Quantity: qty(10), UnitPrice: qty(100)}}
	}
	return CreateQuoteRequest{
		CustomerID: f.customer,
		CurrencyID: 1,
		QuoteDate:  fixedNow,
		ValidUntil: fixedNow.Add(14 * 24 * time.Hour),
		Lines:      lines,
	}
}

func (f *fixture) create(t *testing.T, lines ...QuoteLineRequest) *Quote {
	t.Helper()
	q, err := f.svc.Create(context.Background(), f.admin, f.createRequest(lines...))
	require.NoError(t, err)
	f.requireLedgerConsistent(t)
	return q
}

// requireLedgerConsistent checks that every product's reserved quantity equals
// the lines of active quotes in holding statuses.
func (f *fixture) requireLedgerConsistent(t *testing.T) {
	t.Helper()
	for id, p := range f.repo.state.products {
		want := f.repo.reservedFor(id)
		require.True(t, p.ReservedQuantity.Equal(want), "product %d reserved %s want %s", id, p.ReservedQuantity, want)
	}
}

func (f *fixture) reserved(id int64) decimal.Decimal {
	return f.repo.product(id).ReservedQuantity
}

func TestCreateReservesAndNumbersQuote(t *testing.T) {
	f := newFixture(t)
	q := f.create(t)

	require.Equal(t, "TEK-20260114-0001", q.Number)
	require.Equal(t, QuoteStatusDraft, q.Status)
	require.True(t, q.IsActive)
	require.True(t, q.TotalAmount.Equal(qty(1000)))
	require.Equal(t, "Widget", q.Lines[0].Description)
	require.True(t, f.reserved(1).Equal(qty(10)))
	require.Equal(t, []string{"quote.create"}, f.audit.actions)

	second := f.create(t)
	require.Equal(t, "TEK-20260114-0002", second.Number)
	require.True(t, f.reserved(1).Equal(qty(20)))
}

func TestCreateSkipsTakenNumbers(t *testing.T) {
	f := newFixture(t)
	f.repo.taken["TEK-20260114-0001"] = true

	q := f.create(t)
	require.Equal(t, "TEK-20260114-0002", q.Number)
}

func TestCreateFailsWhenNumbersStayTaken(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 5; i++ {
		f.repo.taken[fmt.Sprintf("TEK-20260114-%04d", i)] = true
	}

	_, err := f.svc.Create(context.Background(), f.admin, f.createRequest())
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Empty(t, f.repo.state.quotes)
	require.True(t, f.reserved(1).IsZero())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]CreateQuoteRequest{
		"zero quantity":   f.createRequest(QuoteLineRequest{ProductID: 1, Quantity: qty(0), UnitPrice: qty(1)}),
		"negative price":  f.createRequest(QuoteLineRequest{ProductID: 1, Quantity: qty(1), UnitPrice: qty(-1)}),
		"unknown product": f.createRequest(QuoteLineRequest{ProductID: 99, Quantity: qty(1), UnitPrice: qty(1)}),
		"no lines":        func() CreateQuoteRequest { r := f.createRequest(); r.Lines = nil; return r }(),
		"validity": func() CreateQuoteRequest {
			r := f.createRequest()
			r.ValidUntil = r.QuoteDate
			return r
		}(),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.admin, req)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	unknownCustomer := f.createRequest()
	unknownCustomer.CustomerID = uuid.New()
	_, err := f.svc.Create(ctx, f.admin, unknownCustomer)
	require.ErrorIs(t, err, shared.ErrNotFound)

	badCurrency := f.createRequest()
	badCurrency.CurrencyID = 7
	_, err = f.svc.Create(ctx, f.admin, badCurrency)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Empty(t, f.repo.state.quotes)
	f.requireLedgerConsistent(t)
}

func TestCreateInsufficientStockLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.admin, f.createRequest(
		QuoteLineRequest{ProductID: 1, Quantity: qty(5), UnitPrice: qty(1)},
		QuoteLineRequest{ProductID: 2, Quantity: qty(51), UnitPrice: qty(1)},
	))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, f.repo.state.quotes)
	require.True(t, f.reserved(1).IsZero())
	require.True(t, f.reserved(2).IsZero())
}

func TestCreateRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.owner, f.createRequest())
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestCreateIdempotencyKeyRejectsReplay(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest()
	req.IdempotencyKey = "create-1"

	_, err := f.svc.Create(context.Background(), f.admin, req)
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), f.admin, req)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, f.repo.state.quotes, 1)
	require.True(t, f.reserved(1).Equal(qty(10)))
}

func TestCreateReleasesIdempotencyKeyOnFailure(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest(QuoteLineRequest{ProductID: 1, Quantity: qty(500), UnitPrice: qty(1)})
	req.IdempotencyKey = "create-2"

	_, err := f.svc.Create(context.Background(), f.admin, req)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.False(t, f.idem["create-2"])
}

func TestApproveMaterializesInvoiceAndReleasesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)

	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)
	require.True(t, f.reserved(1).Equal(qty(10)))

	approved, inv, err := f.svc.Approve(ctx, f.owner, q.ID)
	require.NoError(t, err)
	f.requireLedgerConsistent(t)

	require.Equal(t, QuoteStatusApproved, approved.Status)
	require.True(t, f.reserved(1).IsZero())
	require.Equal(t, "FAT-20260114-0001", inv.Number)
	require.Equal(t, ar.InvoiceStatusSent, inv.Status)
	require.Equal(t, q.Number, inv.QuoteNumber)
	require.Equal(t, fixedNow.Add(ar.DefaultGracePeriod), inv.DueDate)
	require.Len(t, inv.Lines, 1)
	require.True(t, inv.Lines[0].Quantity.Equal(qty(10)))
	require.True(t, inv.TotalAmount.Equal(qty(1000)))
	require.Equal(t, []string{inv.Number}, f.notifier.issued)
	require.Contains(t, f.audit.actions, "quote.approve")
}

func TestApproveTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)
	_, _, err = f.svc.Approve(ctx, f.owner, q.ID)
	require.NoError(t, err)

	_, _, err = f.svc.Approve(ctx, f.owner, q.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Len(t, f.repo.invoices(), 1)
	f.requireLedgerConsistent(t)
}

func TestApproveNotificationFailureDoesNotFailApproval(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = context.DeadlineExceeded
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)

	_, inv, err := f.svc.Approve(ctx, f.owner, q.ID)
	require.NoError(t, err)
	require.NotNil(t, inv)
}

func TestCustomerOperationsRequireOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)

	_, _, err = f.svc.Approve(ctx, f.stranger, q.ID)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = f.svc.Reject(ctx, f.stranger, q.ID)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = f.svc.RequestChange(ctx, f.admin, q.ID, RequestChangeRequest{Notes: "less"})
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	stored, err := f.repo.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteStatusPresented, stored.Status)
	require.True(t, f.reserved(1).Equal(qty(10)))
	require.Empty(t, f.repo.invoices())
}

func TestAdminOperationsRejectCustomers(t *testing.T) {
	f := newFixture(t)
	q := f.create(t)

	_, err := f.svc.Archive(context.Background(), f.owner, q.ID)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = f.svc.Submit(context.Background(), f.owner, q.ID)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestRejectReleasesAndResendReholds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, f.owner, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteStatusRejected, rejected.Status)
	require.True(t, f.reserved(1).IsZero())
	f.requireLedgerConsistent(t)

	resent, err := f.svc.Resend(ctx, f.admin, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteStatusPresented, resent.Status)
	require.True(t, f.reserved(1).Equal(qty(10)))
	f.requireLedgerConsistent(t)
}

func TestResendDraftPresentsIt(t *testing.T) {
	f := newFixture(t)
	q := f.create(t)

	resent, err := f.svc.Resend(context.Background(), f.admin, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteStatusPresented, resent.Status)
	require.True(t, f.reserved(1).Equal(qty(10)))
	require.Equal(t, []string{"quote.create", "quote.resend"}, f.audit.actions)
	f.requireLedgerConsistent(t)
}

func TestResendApprovedQuoteIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)
	_, _, err = f.svc.Approve(ctx, f.owner, q.ID)
	require.NoError(t, err)

	_, err = f.svc.Resend(ctx, f.admin, q.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.True(t, f.reserved(1).IsZero())
}

func TestRequestChangeThenAdminRebalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t, QuoteLineRequest{ProductID: 1, Quantity: qty(5), UnitPrice: qty(20)})
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)
	lineID := q.Lines[0].ID

	changed, err := f.svc.RequestChange(ctx, f.owner, q.ID, RequestChangeRequest{
		Notes:        "Please reduce to 3",
		UpdatedLines: []LineChange{{LineID: lineID, NewQuantity: qty(3)}},
	})
	require.NoError(t, err)
	require.Equal(t, QuoteStatusChangeRequested, changed.Status)
	require.Equal(t, "Please reduce to 3", *changed.ChangeRequestNotes)
	require.True(t, f.reserved(1).Equal(qty(5)))
	stored, err := f.repo.Get(ctx, q.ID)
	require.NoError(t, err)
	require.True(t, stored.Lines[0].RequestedQuantity.Equal(qty(3)))
	require.True(t, stored.Lines[0].Quantity.Equal(qty(5)))
	f.requireLedgerConsistent(t)

	lines := []QuoteLineRequest{{ID: &lineID, ProductID: 1, Quantity: qty(3), UnitPrice: qty(20)}}
	updated, err := f.svc.Update(ctx, f.admin, q.ID, UpdateQuoteRequest{Lines: &lines})
	require.NoError(t, err)
	require.Equal(t, lineID, updated.Lines[0].ID)
	require.True(t, updated.TotalAmount.Equal(qty(60)))
	require.True(t, f.reserved(1).Equal(qty(3)))
	f.requireLedgerConsistent(t)

	resent, err := f.svc.Resend(ctx, f.admin, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteStatusPresented, resent.Status)
	require.Nil(t, resent.ChangeRequestNotes)
	stored, err = f.repo.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Nil(t, stored.ChangeRequestNotes)
	require.Nil(t, stored.Lines[0].RequestedQuantity)
	require.True(t, f.reserved(1).Equal(qty(3)))
}

func TestRequestChangeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)

	_, err = f.svc.RequestChange(ctx, f.owner, q.ID, RequestChangeRequest{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.RequestChange(ctx, f.owner, q.ID, RequestChangeRequest{
		Notes:        "x",
		UpdatedLines: []LineChange{{LineID: 999, NewQuantity: qty(1)}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	stored, err := f.repo.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteStatusPresented, stored.Status)
}

func TestUpdateRebalancesAcrossProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t,
		QuoteLineRequest{ProductID: 1, Quantity: qty(10), UnitPrice: qty(1)},
		QuoteLineRequest{ProductID: 2, Quantity: qty(4), UnitPrice: qty(1)},
	)

	lines := []QuoteLineRequest{{ProductID: 2, Quantity: qty(7), UnitPrice: qty(2)}}
	updated, err := f.svc.Update(ctx, f.admin, q.ID, UpdateQuoteRequest{Lines: &lines})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	require.True(t, f.reserved(1).IsZero())
	require.True(t, f.reserved(2).Equal(qty(7)))
	f.requireLedgerConsistent(t)
}

func TestUpdateRejectsBeyondStockAndKeepsOldReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)

	lines := []QuoteLineRequest{{ProductID: 1, Quantity: qty(101), UnitPrice: qty(1)}}
	_, err := f.svc.Update(ctx, f.admin, q.ID, UpdateQuoteRequest{Lines: &lines})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, f.reserved(1).Equal(qty(10)))
	f.requireLedgerConsistent(t)
}

func TestUpdateRejectsRepeatedLineID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t, QuoteLineRequest{ProductID: 1, Quantity: qty(5), UnitPrice: qty(10)})
	lineID := q.Lines[0].ID

	lines := []QuoteLineRequest{
		{ID: &lineID, ProductID: 1, Quantity: qty(3), UnitPrice: qty(10)},
		{ID: &lineID, ProductID: 1, Quantity: qty(4), UnitPrice: qty(10)},
	}
	_, err := f.svc.Update(ctx, f.admin, q.ID, UpdateQuoteRequest{Lines: &lines})
	require.ErrorIs(t, err, ErrDuplicateLine)
	require.ErrorIs(t, err, shared.ErrValidation)

	stored, err := f.repo.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	require.True(t, stored.Lines[0].Quantity.Equal(qty(5)))
	require.True(t, stored.TotalAmount.Equal(qty(50)))
	require.True(t, f.reserved(1).Equal(qty(5)))
	f.requireLedgerConsistent(t)
}

func TestValidityComparesCalendarDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	morning := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 1, 14, 17, 0, 0, 0, time.UTC)

	req := f.createRequest()
	req.QuoteDate = morning
	req.ValidUntil = evening
	_, err := f.svc.Create(ctx, f.admin, req)
	require.ErrorIs(t, err, ErrInvalidValidity)
	require.Empty(t, f.repo.state.quotes)

	req.ValidUntil = time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	q, err := f.svc.Create(ctx, f.admin, req)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC), q.QuoteDate)
	require.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), q.ValidUntil)

	sameDay := time.Date(2026, 1, 14, 23, 59, 0, 0, time.UTC)
	_, err = f.svc.Update(ctx, f.admin, q.ID, UpdateQuoteRequest{ValidUntil: &sameDay})
	require.ErrorIs(t, err, ErrInvalidValidity)

	stored, err := f.repo.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), stored.ValidUntil)
	f.requireLedgerConsistent(t)
}

func TestUpdateStatusLimitedToHoldingSet(t *testing.T) {
	f := newFixture(t)
	q := f.create(t)

	approved := QuoteStatusApproved
	_, err := f.svc.Update(context.Background(), f.admin, q.ID, UpdateQuoteRequest{Status: &approved})
	require.ErrorIs(t, err, shared.ErrValidation)

	presented := QuoteStatusPresented
	updated, err := f.svc.Update(context.Background(), f.admin, q.ID, UpdateQuoteRequest{Status: &presented})
	require.NoError(t, err)
	require.Equal(t, QuoteStatusPresented, updated.Status)
	f.requireLedgerConsistent(t)
}

func TestUpdateRejectedQuoteIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, f.owner, q.ID)
	require.NoError(t, err)

	lines := []QuoteLineRequest{{ProductID: 1, Quantity: qty(1), UnitPrice: qty(1)}}
	_, err = f.svc.Update(ctx, f.admin, q.ID, UpdateQuoteRequest{Lines: &lines})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestArchiveAndRestoreMoveReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)

	archived, err := f.svc.Archive(ctx, f.admin, q.ID)
	require.NoError(t, err)
	require.False(t, archived.IsActive)
	require.True(t, f.reserved(1).IsZero())
	f.requireLedgerConsistent(t)

	_, err = f.svc.Archive(ctx, f.admin, q.ID)
	require.NoError(t, err)
	require.True(t, f.reserved(1).IsZero())

	restored, err := f.svc.Restore(ctx, f.admin, q.ID)
	require.NoError(t, err)
	require.True(t, restored.IsActive)
	require.True(t, f.reserved(1).Equal(qty(10)))

	_, err = f.svc.Restore(ctx, f.admin, q.ID)
	require.NoError(t, err)
	require.True(t, f.reserved(1).Equal(qty(10)))
	f.requireLedgerConsistent(t)
	require.Equal(t, []string{"quote.create", "quote.archive", "quote.restore"}, f.audit.actions)
}

func TestRestoreInsufficientStockKeepsQuoteArchived(t *testing.T) {
	f := newFixture(t, products.Product{ID: 1, Name: "Widget", StockQuantity: qty(10), IsActive: true})
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Archive(ctx, f.admin, q.ID)
	require.NoError(t, err)
	f.create(t, QuoteLineRequest{ProductID: 1, Quantity: qty(5), UnitPrice: qty(1)})

	_, err = f.svc.Restore(ctx, f.admin, q.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	stored, err := f.repo.Get(ctx, q.ID)
	require.NoError(t, err)
	require.False(t, stored.IsActive)
	require.True(t, f.reserved(1).Equal(qty(5)))
	f.requireLedgerConsistent(t)
}

func TestCustomerCannotActOnArchivedQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)
	_, err = f.svc.Archive(ctx, f.admin, q.ID)
	require.NoError(t, err)

	_, _, err = f.svc.Approve(ctx, f.owner, q.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Empty(t, f.repo.invoices())
}

func TestResendReactivatesArchivedQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)
	_, err = f.svc.Archive(ctx, f.admin, q.ID)
	require.NoError(t, err)
	require.True(t, f.reserved(1).IsZero())

	resent, err := f.svc.Resend(ctx, f.admin, q.ID)
	require.NoError(t, err)
	require.True(t, resent.IsActive)
	require.True(t, f.reserved(1).Equal(qty(10)))
	f.requireLedgerConsistent(t)
}

func TestHardDeleteReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)

	require.NoError(t, f.svc.HardDelete(ctx, f.admin, q.ID))
	require.True(t, f.reserved(1).IsZero())
	_, err := f.svc.Get(ctx, f.admin, q.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	err = f.svc.HardDelete(ctx, f.admin, q.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHardDeleteApprovedQuoteKeepsInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Submit(ctx, f.admin, q.ID)
	require.NoError(t, err)
	_, inv, err := f.svc.Approve(ctx, f.owner, q.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.HardDelete(ctx, f.admin, q.ID))
	invoices := f.repo.invoices()
	require.Len(t, invoices, 1)
	require.Nil(t, invoices[0].QuoteID)
	require.Equal(t, inv.QuoteNumber, invoices[0].QuoteNumber)
	require.True(t, f.reserved(1).IsZero())
}

func TestTransitionOnMissingQuote(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), f.admin, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetAndListScopeCustomers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)

	got, err := f.svc.Get(ctx, f.owner, q.ID)
	require.NoError(t, err)
	require.Equal(t, q.Number, got.Number)

	_, err = f.svc.Get(ctx, f.stranger, q.ID)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	list, total, err := f.svc.List(ctx, f.stranger, ListQuotesRequest{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, list)

	list, total, err = f.svc.List(ctx, f.owner, ListQuotesRequest{IncludeInactive: true})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, q.ID, list[0].ID)

	unlinked := shared.Actor{UserID: uuid.New(), Role: shared.RoleCustomer}
	_, _, err = f.svc.List(ctx, unlinked, ListQuotesRequest{})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestListHidesArchivedByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.create(t)
	f.create(t)
	_, err := f.svc.Archive(ctx, f.admin, q.ID)
	require.NoError(t, err)

	_, total, err := f.svc.List(ctx, f.admin, ListQuotesRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, total)

	_, total, err = f.svc.List(ctx, f.admin, ListQuotesRequest{IncludeInactive: true})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	bogus := QuoteStatus("SHIPPED")
	_, _, err = f.svc.List(ctx, f.admin, ListQuotesRequest{Status: &bogus})
	require.ErrorIs(t, err, shared.ErrValidation)
}
