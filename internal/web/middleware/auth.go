package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/multinet/internal/auth"
	"github.com/JonMunkholm/multinet/internal/core"
	"github.com/JonMunkholm/multinet/internal/logging"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// ErrorFunc writes an error response. The web package supplies one so
// auth failures are rendered like every other API error.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// APIKeyAuth resolves the X-API-Key header to a principal and stores it in
// the request context. Whether a missing key is acceptable is up to the
// authorizer.
func APIKeyAuth(authz auth.Authorizer, onError ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authz.Authenticate(r.Header.Get(APIKeyHeader))
			if err != nil {
				logging.FromContext(r.Context()).Warn("auth: rejected",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				onError(w, r, err)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), p)
			ctx = core.ContextWithPrincipal(ctx, p.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLevel rejects callers below need on the {workspace} route
// parameter. Must run after APIKeyAuth.
func RequireLevel(authz auth.Authorizer, need auth.Level, onError ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				onError(w, r, auth.ErrMissingKey)
				return
			}

			if err := authz.Authorize(r.Context(), p, chi.URLParam(r, "workspace"), need); err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
