package quotations

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-quotes/internal/auth"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// MountRoutes registers quote routes. Callers must have authenticated the request.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(shared.RoleAdmin))
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Post("/{id}/submit", h.Submit)
			r.Post("/{id}/resend", h.Resend)
			r.Post("/{id}/restore", h.Restore)
			r.Delete("/{id}", h.Archive)
			r.Delete("/{id}/hard", h.HardDelete)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(shared.RoleCustomer))
			r.Post("/{id}/approve", h.Approve)
			r.Post("/{id}/reject", h.Reject)
			r.Post("/{id}/request-change", h.RequestChange)
		})
	})
}
