package ar

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Handler serves invoice reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the invoice handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice routes on an authenticated router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
	})
}

// List handles GET /invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	var customerID *uuid.UUID
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: customer_id", httpx.ErrBadRequest))
			return
		}
		customerID = &id
	}
	invoices, err := h.service.List(r.Context(), actor, customerID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": invoices})
}

// Show handles GET /invoices/{id}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid invoice id", httpx.ErrBadRequest))
		return
	}
	inv, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrUnauthorized) {
		h.logger.Error("invoice request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
