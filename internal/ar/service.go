package ar

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// RepositoryPort defines the invoice reads used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Invoice, error)
	List(ctx context.Context, customerID *uuid.UUID) ([]Invoice, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// Service exposes invoices to admins and to the customers they belong to.
type Service struct {
	repo      RepositoryPort
	customers customers.Lookup
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, lookup customers.Lookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, customers: lookup, logger: logger}
}

// List returns invoices visible to the actor. Customers always see only their
// own invoices, whatever filter they pass.
func (s *Service) List(ctx context.Context, actor shared.Actor, customerID *uuid.UUID) ([]Invoice, error) {
	if !actor.IsAdmin() {
		me, err := customers.ResolveActor(ctx, s.customers, actor)
		if err != nil {
			return nil, err
		}
		customerID = &me.ID
	}
	return s.repo.List(ctx, customerID)
}

// Get loads an invoice, enforcing ownership for customers.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if err := customers.EnsureOwner(ctx, s.customers, actor, inv.CustomerID); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// MarkOverdue flags unpaid invoices past their due date.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	n, err := s.repo.MarkOverdue(ctx, asOf)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("invoices marked overdue", slog.Int64("count", n), slog.Time("as_of", asOf))
	}
	return n, nil
}
