package auth

import (
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Verifier turns a bearer token into an actor.
type Verifier interface {
	Verify(raw string) (shared.Actor, error)
}

// Authenticate rejects requests without a valid bearer token.
func Authenticate(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			actor, err := v.Verify(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
			if err != nil {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

// RequireRole only lets actors with one of roles through.
func RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}
