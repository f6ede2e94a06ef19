package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// BearerPrefix is the scheme an Authorization header must carry.
const BearerPrefix = "Bearer "

// Decoder verifies a signed token and returns its claims. Implementations
// return ErrTokenExpired or ErrInvalidToken on failure.
type Decoder interface {
	Decode(token string) (Claims, error)
}

// SessionChecker reports whether the session behind a token is still live.
// A false answer means revoked, expired or unknown; an error means the
// registry could not be consulted.
type SessionChecker interface {
	IsValid(ctx context.Context, subject, token string) (bool, error)
}

// Gate authenticates and authorizes a single request. It holds no per-request
// state and is safe for concurrent use.
type Gate struct {
	decoder  Decoder
	sessions SessionChecker
}

// NewGate wires a gate to its token decoder and session registry.
func NewGate(decoder Decoder, sessions SessionChecker) (*Gate, error) {
	if decoder == nil {
		return nil, errors.New("auth: token decoder is required")
	}
	if sessions == nil {
		return nil, errors.New("auth: session registry is required")
	}
	return &Gate{decoder: decoder, sessions: sessions}, nil
}

// Authorize runs the checks in order and stops at the first failure:
// bearer extraction, token verification, session liveness, role membership.
// authorization is the raw Authorization header value.
func (g *Gate) Authorize(ctx context.Context, required RoleSet, authorization string) (Identity, error) {
	token, err := ExtractBearer(authorization)
	if err != nil {
		return Identity{}, err
	}

	claims, err := g.decoder.Decode(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrInvalidToken
	}

	ok, err := g.sessions.IsValid(ctx, claims.UserID, token)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: session lookup: %w", err)
	}
	if !ok {
		return Identity{}, ErrInvalidSession
	}

	if !required.Contains(claims.Role) {
		return Identity{}, ErrInsufficientPermissions
	}
	return claims.Identity(), nil
}

// ExtractBearer returns the payload of a "Bearer <token>" header value.
func ExtractBearer(header string) (string, error) {
	token, found := strings.CutPrefix(header, BearerPrefix)
	if !found {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// HandlerFunc is a downstream operation that runs only for an authorized caller.
// The identity is also reachable through IdentityFromContext(ctx).
type HandlerFunc[T any] func(ctx context.Context, id Identity) (T, error)

// Guard binds required to next. The returned function authorizes the request
// and, on success, invokes next exactly once and returns its result unchanged.
func Guard[T any](g *Gate, required RoleSet, next HandlerFunc[T]) func(ctx context.Context, authorization string) (T, error) {
	return func(ctx context.Context, authorization string) (T, error) {
		id, err := g.Authorize(ctx, required, authorization)
		if err != nil {
			var zero T
			return zero, err
		}
		ctx = ContextWithIdentity(ctx, id)
		return next(ctx, id)
	}
}
