package quotations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-quotes/internal/ar"
	"github.com/odyssey-erp/odyssey-quotes/internal/inventory/reservations"
	"github.com/odyssey-erp/odyssey-quotes/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

const (
	tracerName        = "github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
	idempotencyModule = "quotations.create"
	auditEntity       = "quote"
)

// CustomerDirectory resolves customers by id and by application user.
type CustomerDirectory interface {
	customers.Lookup
	Get(ctx context.Context, id uuid.UUID) (*customers.Customer, error)
}

// CurrencyChecker verifies a currency can be quoted in.
type CurrencyChecker interface {
	EnsureActive(ctx context.Context, id int64) error
}

// ProductReader loads products for line validation.
type ProductReader interface {
	Get(ctx context.Context, id int64) (products.Product, error)
}

// AuditPort records lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards create replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// InvoiceNotifier is told about invoices after their approval commits.
type InvoiceNotifier interface {
	InvoiceIssued(ctx context.Context, inv *ar.Invoice) error
}

// ServiceConfig tunes numbering and stock checks.
type ServiceConfig struct {
	NumberPrefix      string
	NumberMaxAttempts int
	EnforceStock      bool
}

// ServiceDeps bundles collaborators. Repo, Customers, Currencies, Products and
// Materializer are required; the rest may be nil.
type ServiceDeps struct {
	Repo         Repository
	Customers    CustomerDirectory
	Currencies   CurrencyChecker
	Products     ProductReader
	Materializer *ar.Materializer
	Audit        AuditPort
	Idempotency  IdempotencyPort
	Notifier     InvoiceNotifier
	Cache        *Cache
	Metrics      *Metrics
	Tracer       trace.Tracer
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Service orchestrates the quote lifecycle.
type Service struct {
	repo         Repository
	customers    CustomerDirectory
	currencies   CurrencyChecker
	products     ProductReader
	materializer *ar.Materializer
	audit        AuditPort
	idem         IdempotencyPort
	notifier     InvoiceNotifier
	cache        *Cache
	metrics      *Metrics
	tracer       trace.Tracer
	logger       *slog.Logger
	now          func() time.Time
	validate     *validator.Validate
	numberer     shared.DocNumberer
	ledgerOpts   reservations.Options
}

// NewService constructs the lifecycle service.
func NewService(deps ServiceDeps, cfg ServiceConfig) *Service {
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "TEK"
	}
	if deps.Materializer == nil {
		deps.Materializer = ar.NewMaterializer(ar.MaterializerConfig{})
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{
		repo:         deps.Repo,
		customers:    deps.Customers,
		currencies:   deps.Currencies,
		products:     deps.Products,
		materializer: deps.Materializer,
		audit:        deps.Audit,
		idem:         deps.Idempotency,
		notifier:     deps.Notifier,
		cache:        deps.Cache,
		metrics:      deps.Metrics,
		tracer:       deps.Tracer,
		logger:       deps.Logger,
		now:          deps.Clock,
		validate:     validator.New(),
		numberer:     shared.DocNumberer{Prefix: cfg.NumberPrefix, MaxAttempts: cfg.NumberMaxAttempts},
		ledgerOpts:   reservations.Options{EnforceStock: cfg.EnforceStock},
	}
}

// change is the state an operation works on inside its transaction.
type change struct {
	tx         TxRepository
	ledger     *reservations.Ledger
	quote      *Quote
	heldBefore bool
	from       QuoteStatus
}

// reconcile moves the ledger when the quote starts or stops holding stock.
func (c *change) reconcile(ctx context.Context) error {
	after := c.quote.HoldsReservation()
	var err error
	switch {
	case c.heldBefore && !after:
		_, err = c.ledger.Drop(ctx, c.quote.reservationLines())
	case !c.heldBefore && after:
		_, err = c.ledger.Hold(ctx, c.quote.reservationLines())
	}
	return err
}

// Create stores a new Draft quote and reserves its lines.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateQuoteRequest) (*Quote, error) {
	ctx, span := s.startSpan(ctx, OpCreate, 0)
	defer span.End()

	q, err := s.create(ctx, actor, req)
	if err != nil {
		err = fmt.Errorf("quotations: create quote: %w", err)
		s.failed(span, OpCreate, err)
		return nil, err
	}
	s.committed(ctx, span, OpCreate, actor, "", q)
	return q, nil
}

func (s *Service) create(ctx context.Context, actor shared.Actor, req CreateQuoteRequest) (*Quote, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrUnauthorized
	}
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	req.QuoteDate = civilDate(req.QuoteDate)
	req.ValidUntil = civilDate(req.ValidUntil)
	if !req.ValidUntil.After(req.QuoteDate) {
		return nil, ErrInvalidValidity
	}
	if err := s.checkCustomer(ctx, req.CustomerID); err != nil {
		return nil, err
	}
	if err := s.currencies.EnsureActive(ctx, req.CurrencyID); err != nil {
		return nil, err
	}
	lines, err := s.buildLines(ctx, req.Lines, nil)
	if err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return nil, err
		}
	}

	createdBy := actor.UserID
	q := &Quote{
		CustomerID: req.CustomerID,
		CurrencyID: req.CurrencyID,
		QuoteDate:  req.QuoteDate,
		ValidUntil: req.ValidUntil,
		Status:     QuoteStatusDraft,
		IsActive:   true,
		CreatedBy:  &createdBy,
		Lines:      lines,
	}
	q.recomputeTotal()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ledger := reservations.NewLedger(tx.Products(), s.ledgerOpts)
		if _, err := ledger.Hold(ctx, q.reservationLines()); err != nil {
			return err
		}
		_, err := s.numberer.Assign(ctx, tx, s.now(), func(number string) error {
			q.Number = number
			return tx.Insert(ctx, q)
		})
		return err
	})
	if err != nil {
		if key != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, key)
		}
		return nil, err
	}
	return q, nil
}

// Update edits header fields and, when Lines is set, replaces the line set.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, req UpdateQuoteRequest) (*Quote, error) {
	return s.mutate(ctx, OpUpdate, actor, id, func(ctx context.Context, c *change) error {
		if err := s.validateStruct(req); err != nil {
			return err
		}
		q := c.quote
		if req.Status != nil {
			if !holdingStatuses[*req.Status] {
				return ErrStatusNotAllowed
			}
			q.Status = *req.Status
		}
		if req.CustomerID != nil {
			if err := s.checkCustomer(ctx, *req.CustomerID); err != nil {
				return err
			}
			q.CustomerID = *req.CustomerID
		}
		if req.CurrencyID != nil {
			if err := s.currencies.EnsureActive(ctx, *req.CurrencyID); err != nil {
				return err
			}
			q.CurrencyID = *req.CurrencyID
		}
		if req.QuoteDate != nil {
			q.QuoteDate = *req.QuoteDate
		}
		if req.ValidUntil != nil {
			q.ValidUntil = *req.ValidUntil
		}
		q.QuoteDate, q.ValidUntil = civilDate(q.QuoteDate), civilDate(q.ValidUntil)
		if !q.ValidUntil.After(q.QuoteDate) {
			return ErrInvalidValidity
		}

		if req.Lines != nil {
			lines, err := s.buildLines(ctx, *req.Lines, q.Lines)
			if err != nil {
				return err
			}
			if c.heldBefore {
				if _, err := c.ledger.Rebalance(ctx, q.reservationLines(), reservationLines(lines)); err != nil {
					return err
				}
			}
			saved, err := c.tx.ReplaceLines(ctx, q.ID, lines)
			if err != nil {
				return err
			}
			q.Lines = saved
			q.recomputeTotal()
		}
		return c.tx.UpdateHeader(ctx, q)
	})
}

// Submit presents a Draft or ChangeRequested quote to the customer.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, id int64) (*Quote, error) {
	return s.mutate(ctx, OpSubmit, actor, id, func(ctx context.Context, c *change) error {
		if err := c.reconcile(ctx); err != nil {
			return err
		}
		return c.tx.UpdateHeader(ctx, c.quote)
	})
}

// Approve accepts a presented quote on behalf of its customer, releases the
// reservation and materializes the invoice in the same transaction.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (*Quote, *ar.Invoice, error) {
	var invoice *ar.Invoice
	q, err := s.mutate(ctx, OpApprove, actor, id, func(ctx context.Context, c *change) error {
		if err := c.reconcile(ctx); err != nil {
			return err
		}
		inv, err := s.materializer.Materialize(ctx, c.tx.Invoices(), c.quote.invoiceSource(), s.now())
		if err != nil {
			return err
		}
		invoice = inv
		return c.tx.UpdateHeader(ctx, c.quote)
	})
	if err != nil {
		return nil, nil, err
	}
	s.metrics.invoiceMaterialized()
	if s.notifier != nil {
		if err := s.notifier.InvoiceIssued(ctx, invoice); err != nil {
			s.logger.Warn("enqueue invoice notification failed",
				slog.Int64("invoice_id", invoice.ID),
				slog.String("invoice_number", invoice.Number),
				slog.Any("error", err))
		}
	}
	return q, invoice, nil
}

// Reject declines a presented quote on behalf of its customer.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64) (*Quote, error) {
	return s.mutate(ctx, OpReject, actor, id, func(ctx context.Context, c *change) error {
		if err := c.reconcile(ctx); err != nil {
			return err
		}
		return c.tx.UpdateHeader(ctx, c.quote)
	})
}

// RequestChange records the customer's notes and proposed quantities. The
// reservation keeps the quoted quantities until an admin updates the lines.
func (s *Service) RequestChange(ctx context.Context, actor shared.Actor, id int64, req RequestChangeRequest) (*Quote, error) {
	return s.mutate(ctx, OpRequestChange, actor, id, func(ctx context.Context, c *change) error {
		if err := s.validateStruct(req); err != nil {
			return err
		}
		q := c.quote
		index := make(map[int64]int, len(q.Lines))
		for i, line := range q.Lines {
			index[line.ID] = i
		}
		changes := make(map[int64]decimal.Decimal, len(req.UpdatedLines))
		for _, lc := range req.UpdatedLines {
			i, ok := index[lc.LineID]
			if !ok {
				return fmt.Errorf("%w: line %d", ErrUnknownLine, lc.LineID)
			}
			if !lc.NewQuantity.IsPositive() {
				return fmt.Errorf("%w: line %d", ErrInvalidQuantity, lc.LineID)
			}
			qty := lc.NewQuantity
			changes[lc.LineID] = qty
			q.Lines[i].RequestedQuantity = &qty
		}
		if len(changes) > 0 {
			if err := c.tx.SetRequestedQuantities(ctx, q.ID, changes); err != nil {
				return err
			}
		}
		notes := req.Notes
		q.ChangeRequestNotes = &notes
		if err := c.reconcile(ctx); err != nil {
			return err
		}
		return c.tx.UpdateHeader(ctx, q)
	})
}

// Resend presents the quote again, reactivating it and clearing the
// customer's change request.
func (s *Service) Resend(ctx context.Context, actor shared.Actor, id int64) (*Quote, error) {
	return s.mutate(ctx, OpResend, actor, id, func(ctx context.Context, c *change) error {
		q := c.quote
		q.IsActive = true
		q.ChangeRequestNotes = nil
		for i := range q.Lines {
			q.Lines[i].RequestedQuantity = nil
		}
		if err := c.reconcile(ctx); err != nil {
			return err
		}
		if err := c.tx.ClearRequestedQuantities(ctx, q.ID); err != nil {
			return err
		}
		return c.tx.UpdateHeader(ctx, q)
	})
}

// Archive soft deletes the quote. Archiving an archived quote is a no-op.
func (s *Service) Archive(ctx context.Context, actor shared.Actor, id int64) (*Quote, error) {
	return s.mutate(ctx, OpArchive, actor, id, func(ctx context.Context, c *change) error {
		if !c.quote.IsActive {
			return errUnchanged
		}
		c.quote.IsActive = false
		if err := c.reconcile(ctx); err != nil {
			return err
		}
		return c.tx.UpdateHeader(ctx, c.quote)
	})
}

// Restore reactivates an archived quote. Restoring an active quote is a no-op.
func (s *Service) Restore(ctx context.Context, actor shared.Actor, id int64) (*Quote, error) {
	return s.mutate(ctx, OpRestore, actor, id, func(ctx context.Context, c *change) error {
		if c.quote.IsActive {
			return errUnchanged
		}
		c.quote.IsActive = true
		if err := c.reconcile(ctx); err != nil {
			return err
		}
		return c.tx.UpdateHeader(ctx, c.quote)
	})
}

// HardDelete removes the quote permanently after releasing its reservation.
func (s *Service) HardDelete(ctx context.Context, actor shared.Actor, id int64) error {
	_, err := s.mutate(ctx, OpHardDelete, actor, id, func(ctx context.Context, c *change) error {
		c.quote.IsActive = false
		if err := c.reconcile(ctx); err != nil {
			return err
		}
		return c.tx.Delete(ctx, c.quote.ID)
	})
	return err
}

// Get returns a quote. Customers only see their own quotes.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (*Quote, error) {
	q, err := s.cache.Fetch(ctx, id, func(ctx context.Context) (*Quote, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if err := customers.EnsureOwner(ctx, s.customers, actor, q.CustomerID); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// List returns a page of quotes. Customers are limited to their own active quotes.
func (s *Service) List(ctx context.Context, actor shared.Actor, req ListQuotesRequest) ([]QuoteSummary, int, error) {
	if !actor.IsAdmin() {
		cust, err := customers.ResolveActor(ctx, s.customers, actor)
		if err != nil {
			return nil, 0, err
		}
		req.CustomerID = &cust.ID
		req.IncludeInactive = false
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *req.Status)
	}
	if req.DateFrom != nil && req.DateTo != nil && req.DateTo.Before(*req.DateFrom) {
		return nil, 0, fmt.Errorf("%w: date_to before date_from", shared.ErrValidation)
	}
	return s.repo.List(ctx, req)
}

// mutate runs one lifecycle command: lock the quote, check ownership and the
// transition table, apply the change, then run post-commit effects.
func (s *Service) mutate(ctx context.Context, op Operation, actor shared.Actor, id int64, apply func(context.Context, *change) error) (*Quote, error) {
	ctx, span := s.startSpan(ctx, op, id)
	defer span.End()

	var c *change
	unchanged := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if CustomerOperation(op) {
			if err := customers.EnsureOwner(ctx, s.customers, actor, q.CustomerID); err != nil {
				return err
			}
		} else if !actor.IsAdmin() {
			return shared.ErrUnauthorized
		}
		next, err := Next(op, q.Status, q.IsActive)
		if err != nil {
			return err
		}
		c = &change{
			tx:         tx,
			ledger:     reservations.NewLedger(tx.Products(), s.ledgerOpts),
			quote:      q,
			heldBefore: q.HoldsReservation(),
			from:       q.Status,
		}
		q.Status = next
		err = apply(ctx, c)
		if errors.Is(err, errUnchanged) {
			unchanged = true
			return nil
		}
		return err
	})
	if err != nil {
		err = fmt.Errorf("quotations: %s quote %d: %w", op, id, err)
		s.failed(span, op, err)
		return nil, err
	}
	if unchanged {
		s.metrics.observe(op, nil)
		return c.quote, nil
	}
	s.committed(ctx, span, op, actor, c.from, c.quote)
	return c.quote, nil
}

func (s *Service) startSpan(ctx context.Context, op Operation, id int64) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("quote.operation", string(op))}
	if id != 0 {
		attrs = append(attrs, attribute.Int64("quote.id", id))
	}
	return s.tracer.Start(ctx, "quotations."+spanName(op), trace.WithAttributes(attrs...))
}

func (s *Service) failed(span trace.Span, op Operation, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome(err))
	s.metrics.observe(op, err)
}

// committed runs the side effects of a successful command. Failures are
// logged and never change the command's result.
func (s *Service) committed(ctx context.Context, span trace.Span, op Operation, actor shared.Actor, from QuoteStatus, q *Quote) {
	span.SetAttributes(
		attribute.Int64("quote.id", q.ID),
		attribute.String("quote.status", string(q.Status)),
	)
	s.metrics.observe(op, nil)

	if err := s.cache.Invalidate(ctx, q.ID); err != nil {
		s.logger.Warn("invalidate quote cache failed", slog.Int64("quote_id", q.ID), slog.Any("error", err))
	}
	if s.audit != nil {
		meta := map[string]any{
			"number":    q.Number,
			"to":        q.Status,
			"is_active": q.IsActive,
		}
		if from != "" {
			meta["from"] = from
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.UserID.String(),
			Action:   "quote." + string(op),
			Entity:   auditEntity,
			EntityID: strconv.FormatInt(q.ID, 10),
			Meta:     meta,
			At:       s.now(),
		}); err != nil {
			s.logger.Warn("record quote audit failed", slog.Int64("quote_id", q.ID), slog.Any("error", err))
		}
	}
	s.logger.Info("quote transition",
		slog.String("operation", string(op)),
		slog.Int64("quote_id", q.ID),
		slog.String("number", q.Number),
		slog.String("from", string(from)),
		slog.String("to", string(q.Status)),
		slog.Bool("is_active", q.IsActive))
}

func (s *Service) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

func (s *Service) checkCustomer(ctx context.Context, id uuid.UUID) error {
	cust, err := s.customers.Get(ctx, id)
	if err != nil {
		return err
	}
	if !cust.IsActive {
		return fmt.Errorf("%w: %s", ErrInactiveCustomer, id)
	}
	return nil
}

// buildLines validates requested lines and prices them. existing holds the
// lines a kept line id may refer to.
func (s *Service) buildLines(ctx context.Context, reqs []QuoteLineRequest, existing []QuoteLine) ([]QuoteLine, error) {
	known := make(map[int64]bool, len(existing))
	for _, line := range existing {
		known[line.ID] = true
	}
	seen := make(map[int64]products.Product)
	listed := make(map[int64]bool, len(reqs))
	lines := make([]QuoteLine, 0, len(reqs))
	for i, req := range reqs {
		pos := i + 1
		if !req.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidQuantity, pos)
		}
		if req.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidPrice, pos)
		}
		product, ok := seen[req.ProductID]
		if !ok {
			p, err := s.products.Get(ctx, req.ProductID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return nil, fmt.Errorf("%w: line %d product %d", ErrUnknownProduct, pos, req.ProductID)
				}
				return nil, err
			}
			product = p
			seen[req.ProductID] = p
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: line %d product %d", ErrUnknownProduct, pos, req.ProductID)
		}
		line := QuoteLine{
			ProductID:   req.ProductID,
			Description: req.Description,
			Quantity:    req.Quantity,
			UnitPrice:   req.UnitPrice,
			Total:       lineTotal(req.Quantity, req.UnitPrice),
			LineOrder:   pos,
		}
		if line.Description == "" {
			line.Description = product.Name
		}
		if req.ID != nil {
			if !known[*req.ID] {
				return nil, fmt.Errorf("%w: line %d", ErrUnknownLine, *req.ID)
			}
			if listed[*req.ID] {
				return nil, fmt.Errorf("%w: line %d", ErrDuplicateLine, *req.ID)
			}
			listed[*req.ID] = true
			line.ID = *req.ID
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func spanName(op Operation) string {
	switch op {
	case OpCreate:
		return "Create"
	case OpUpdate:
		return "Update"
	case OpSubmit:
		return "Submit"
	case OpApprove:
		return "Approve"
	case OpReject:
		return "Reject"
	case OpRequestChange:
		return "RequestChange"
	case OpResend:
		return "Resend"
	case OpArchive:
		return "Archive"
	case OpRestore:
		return "Restore"
	case OpHardDelete:
		return "HardDelete"
	}
	return string(op)
}
