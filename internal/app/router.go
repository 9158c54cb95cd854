package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-quotes/internal/ar"
	"github.com/odyssey-erp/odyssey-quotes/internal/auth"
	"github.com/odyssey-erp/odyssey-quotes/internal/observability"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quotes/jobs"
)

// Pinger reports whether a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Verifier       auth.Verifier
	QuoteHandler   *quotations.Handler
	InvoiceHandler *ar.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	TracerProvider trace.TracerProvider
	Database       Pinger
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		Metrics:        params.Metrics,
		TracerProvider: params.TracerProvider,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), r.Method+" not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Database.Ping(ctx); err != nil {
				params.Logger.Warn("readiness", slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable), "database unavailable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.Authenticate(params.Verifier))
		if params.QuoteHandler != nil {
			params.QuoteHandler.MountRoutes(api)
		}
		if params.InvoiceHandler != nil {
			params.InvoiceHandler.MountRoutes(api)
		}
	})

	return r
}
