package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"secureshop.org/internal/audit"
	"secureshop.org/internal/auth"
	"secureshop.org/internal/obs"
	"secureshop.org/internal/session"
)

const (
	serviceName         = "secureshop-api"
	defaultMaxBodyBytes = 1 << 20
	defaultTokenTTL     = time.Hour
)


// API is the HTTP layer in front of the auth gate.
type API struct {
	mux          *http.ServeMux
	gate         *auth.Gate
	sessions     session.Registry
	issuer       session.TokenIssuer
	version      string
	maxBodyBytes int64
	tokenTTL     time.Duration
}

// Option customises the API.
type Option func(*API)

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithTokenTTL sets the lifetime of sessions started through POST /v1/sessions.
// Callers may ask for less, never more.
func WithTokenTTL(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.tokenTTL = d
		}
	}
}

// New builds the API and registers its routes.
func New(gate *auth.Gate, sessions session.Registry, issuer session.TokenIssuer, version string, opts ...Option) (*API, error) {
	if gate == nil {
		return nil, errors.New("httpapi: gate is required")
	}
	if sessions == nil {
		return nil, errors.New("httpapi: session store is required")
	}
	if issuer == nil {
		return nil, errors.New("httpapi: token issuer is required")
	}
	a := &API{
		mux:          http.NewServeMux(),
		gate:         gate,
		sessions:     sessions,
		issuer:       issuer,
		version:      version,
		maxBodyBytes: defaultMaxBodyBytes,
		tokenTTL:     defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	anyRole := RequireAuth(gate, auth.AnyRole())
	adminOnly := RequireAuth(gate, auth.Roles(auth.RoleAdmin))
	a.mux.Handle("GET /v1/auth/whoami", anyRole(http.HandlerFunc(a.WhoAmI)))
	a.mux.Handle("POST /v1/auth/logout", anyRole(http.HandlerFunc(a.Logout)))
	a.mux.Handle("POST /v1/sessions", adminOnly(http.HandlerFunc(a.CreateSession)))
	a.mux.Handle("DELETE /v1/sessions/{subject}", adminOnly(http.HandlerFunc(a.RevokeSession)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a, nil
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.sessions.Ping(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// WhoAmI echoes the identity the gate forwarded.
func (a *API) WhoAmI(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, auth.ErrMissingToken.Error())
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// Logout invalidates the caller's own session.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, auth.ErrMissingToken.Error())
		return
	}
	if err := a.sessions.Invalidate(r.Context(), id.Subject); err != nil {
		obs.Error("logout failed", err, map[string]any{"request_id": requestIDFrom(r)})
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

type createSessionRequest struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	Email      string `json:"email,omitempty"`
	CompanyID  string `json:"company_id,omitempty"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

type createSessionResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      auth.Role `json:"role"`
}

// CreateSession mints a token for a subject and registers it as that
// subject's live session, replacing any previous one.
func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	subject := strings.TrimSpace(req.UserID)
	if subject == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "role must be admin, clerk or customer")
		return
	}
	ttl := a.tokenTTL
	if req.TTLSeconds < 0 {
		writeError(w, r, http.StatusBadRequest, "ttl_seconds must be positive")
		return
	}
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
		if ttl > a.tokenTTL {
			writeError(w, r, http.StatusBadRequest, "ttl_seconds exceeds the configured token lifetime")
			return
		}
	}

	id := auth.Identity{Subject: subject, Role: role, Email: req.Email, CompanyID: req.CompanyID}
	token, expiresAt, err := session.Start(r.Context(), a.sessions, a.issuer, id, ttl)
	if err != nil {
		if errors.Is(err, session.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "invalid session parameters")
			return
		}
		obs.Error("session start failed", err, map[string]any{
			"request_id": requestIDFrom(r),
			"subject":    subject,
		})
		writeError(w, r, http.StatusInternalServerError, "session creation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "session.created", map[string]any{
		"subject": subject,
		"role":    string(role),
	})
	writeJSON(w, http.StatusCreated, createSessionResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt.UTC(),
		UserID:    subject,
		Role:      role,
	})
}

// RevokeSession invalidates another subject's session.
func (a *API) RevokeSession(w http.ResponseWriter, r *http.Request) {
	subject := strings.TrimSpace(r.PathValue("subject"))
	if subject == "" {
		writeError(w, r, http.StatusBadRequest, "subject is required")
		return
	}
	if err := a.sessions.Invalidate(r.Context(), subject); err != nil {
		if errors.Is(err, session.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "invalid subject")
			return
		}
		obs.Error("session revocation failed", err, map[string]any{
			"request_id": requestIDFrom(r),
			"subject":    subject,
		})
		writeError(w, r, http.StatusInternalServerError, "revocation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "session.revoked", map[string]any{"subject": subject})
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": requestIDFrom(r),
	})
}

func requestIDFrom(r *http.Request) string {
	if r == nil {
		return ""
	}
	return audit.RequestIDFromContext(r.Context())
}
