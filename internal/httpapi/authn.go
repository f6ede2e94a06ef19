package httpapi

import (
	"errors"
	"net/http"

	"secureshop.org/internal/audit"
	"secureshop.org/internal/auth"
	"secureshop.org/internal/obs"
)

const (
	authHeader = "Authorization"
	realm      = `Bearer realm="secureshop"`
)

// RequireAuth runs the gate for every request and forwards only authorized
// callers, with their identity and bearer token attached to the context.
func RequireAuth(gate *auth.Gate, roles auth.RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(authHeader)
			id, err := gate.Authorize(r.Context(), roles, header)
			obs.ObserveAuthDecision("http", auth.Outcome(err))
			if err != nil {
				reject(w, r, err)
				return
			}

			ctx := auth.ContextWithIdentity(r.Context(), id)
			if token, err := auth.ExtractBearer(header); err == nil {
				ctx = auth.ContextWithToken(ctx, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// reject maps a gate error to 401, 403 or 500.
func reject(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authn *auth.AuthenticationError
		authz *auth.AuthorizationError
	)
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		w.Header().Set("WWW-Authenticate", realm)
		logRejection(r, err)
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.As(err, &authn):
		w.Header().Set("WWW-Authenticate", realm+`, error="invalid_token", error_description="`+authn.Error()+`"`)
		logRejection(r, err)
		writeError(w, r, http.StatusUnauthorized, authn.Error())
	case errors.As(err, &authz):
		w.Header().Set("WWW-Authenticate", realm+`, error="insufficient_scope"`)
		logRejection(r, err)
		writeError(w, r, http.StatusForbidden, authz.Error())
	default:
		obs.Error("auth gate failure", err, map[string]any{
			"request_id": requestIDFrom(r),
			"path":       r.URL.Path,
		})
		writeError(w, r, http.StatusInternalServerError, "authentication error")
	}
}

func logRejection(r *http.Request, err error) {
	_ = audit.LogEvent(r.Context(), "auth.rejected", map[string]any{
		"outcome": auth.Outcome(err),
		"method":  r.Method,
		"path":    r.URL.Path,
		"remote":  clientIP(r),
	})
}
