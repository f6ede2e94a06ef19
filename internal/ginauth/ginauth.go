// Package ginauth adapts auth.Gate to gin handlers.
package ginauth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"secureshop.org/internal/audit"
	"secureshop.org/internal/auth"
	"secureshop.org/internal/obs"
)

// identityKey is the gin context key the identity is stored under.
const identityKey = "secureshop.identity"

// RequireAuth returns middleware that admits only callers holding one of roles.
// On success the identity is available through IdentityFrom(c) and through
// auth.IdentityFromContext(c.Request.Context()).
func RequireAuth(gate *auth.Gate, roles auth.RoleSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		id, err := gate.Authorize(c.Request.Context(), roles, header)
		obs.ObserveAuthDecision("gin", auth.Outcome(err))
		if err != nil {
			abort(c, err)
			return
		}

		ctx := auth.ContextWithIdentity(c.Request.Context(), id)
		if token, err := auth.ExtractBearer(header); err == nil {
			ctx = auth.ContextWithToken(ctx, token)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the identity RequireAuth stored on c.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

func abort(c *gin.Context, err error) {
	var (
		authn *auth.AuthenticationError
		authz *auth.AuthorizationError
	)
	switch {
	case errors.As(err, &authn):
		c.Header("WWW-Authenticate", `Bearer realm="secureshop"`)
		logRejection(c, err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authn.Error()})
	case errors.As(err, &authz):
		c.Header("WWW-Authenticate", `Bearer realm="secureshop", error="insufficient_scope"`)
		logRejection(c, err)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": authz.Error()})
	default:
		obs.Error("auth gate failure", err, map[string]any{"path": c.FullPath()})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication error"})
	}
}

func logRejection(c *gin.Context, err error) {
	_ = audit.LogEvent(c.Request.Context(), "auth.rejected", map[string]any{
		"outcome": auth.Outcome(err),
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"remote":  c.ClientIP(),
	})
}
