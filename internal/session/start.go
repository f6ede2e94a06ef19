package session

import (
	"context"
	"fmt"
	"time"

	"secureshop.org/internal/auth"
)

// TokenIssuer mints signed access tokens.
type TokenIssuer interface {
	Issue(id auth.Identity, ttl time.Duration) (string, time.Time, error)
}

// Start issues a token for id and records it as the subject's live session,
// replacing any earlier one. The token is only returned once the registry
// has accepted it.
func Start(ctx context.Context, reg Registry, issuer TokenIssuer, id auth.Identity, ttl time.Duration) (string, time.Time, error) {
	token, expiresAt, err := issuer.Issue(id, ttl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: issue token: %w", err)
	}
	if err := reg.Create(ctx, id.Subject, token, ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("session: register: %w", err)
	}
	return token, expiresAt, nil
}
