package quotations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes the quote lifecycle over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the quote HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// List handles GET /quotes.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, page, perPage, err := parseListQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quotes, total, err := h.service.List(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       quotes,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

// Show handles GET /quotes/{id}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

// Create handles POST /quotes.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	q, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/quotes/"+strconv.FormatInt(q.ID, 10))
	httpx.JSON(w, http.StatusCreated, q)
}

// Update handles PUT /quotes/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req UpdateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.Update(r.Context(), actor, id, req))
}

// Submit handles POST /quotes/{id}/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit)
}

// Resend handles POST /quotes/{id}/resend.
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Resend)
}

// Archive handles DELETE /quotes/{id}.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Archive)
}

// Restore handles POST /quotes/{id}/restore.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Restore)
}

// Reject handles POST /quotes/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

// HardDelete handles DELETE /quotes/{id}/hard.
func (h *Handler) HardDelete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.HardDelete(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Approve handles POST /quotes/{id}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	q, inv, err := h.service.Approve(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quote": q, "invoice": inv})
}

// RequestChange handles POST /quotes/{id}/request-change.
func (h *Handler) RequestChange(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req RequestChangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r)(h.service.RequestChange(r.Context(), actor, id, req))
}

type transitionFunc func(ctx context.Context, actor shared.Actor, id int64) (*Quote, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(fn(r.Context(), actor, id))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) func(*Quote, error) {
	return func(q *Quote, err error) {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, q)
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return shared.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid quote id", httpx.ErrBadRequest))
		return shared.Actor{}, 0, false
	}
	return actor, id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrUnauthorized),
		errors.Is(err, shared.ErrInvalidTransition), errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrConflict), errors.Is(err, httpx.ErrBadRequest):
		h.logger.Debug("quote request rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
	default:
		h.logger.Error("quote request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseListQuery(r *http.Request) (ListQuotesRequest, int, int, error) {
	q := r.URL.Query()
	page, perPage := shared.ParsePage(q.Get("page"), q.Get("per_page"))
	req := ListQuotesRequest{
		Search:    q.Get("search"),
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
		Limit:     perPage,
		Offset:    (page - 1) * perPage,
	}
	if raw := q.Get("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, 0, 0, fmt.Errorf("%w: customer_id", httpx.ErrBadRequest)
		}
		req.CustomerID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status := QuoteStatus(strings.ToUpper(raw))
		req.Status = &status
	}
	for key, dest := range map[string]**time.Time{"date_from": &req.DateFrom, "date_to": &req.DateTo} {
		if raw := q.Get(key); raw != "" {
			d, err := time.Parse(dateLayout, raw)
			if err != nil {
				return req, 0, 0, fmt.Errorf("%w: %s must be YYYY-MM-DD", httpx.ErrBadRequest, key)
			}
			*dest = &d
		}
	}
	if raw := q.Get("include_inactive"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return req, 0, 0, fmt.Errorf("%w: include_inactive", httpx.ErrBadRequest)
		}
		req.IncludeInactive = include
	}
	switch req.SortBy {
	case "", SortByDate, SortByCustomer, SortByAmount:
	default:
		return req, 0, 0, fmt.Errorf("%w: sort must be date, customer or amount", httpx.ErrBadRequest)
	}
	return req, page, perPage, nil
}
