package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"secureshop.org/internal/auth"
	"secureshop.org/internal/obs"
	"secureshop.org/internal/session"
)

// bootstrapAdmin registers an admin session for subject and writes the token
// to out. The token never goes through the JSON log.
func bootstrapAdmin(ctx context.Context, reg session.Registry, issuer session.TokenIssuer, subject string, ttl time.Duration, out io.Writer) error {
	token, expiresAt, err := session.Start(ctx, reg, issuer, auth.Identity{Subject: subject, Role: auth.RoleAdmin}, ttl)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	obs.Info("bootstrap admin session registered", map[string]any{
		"subject":    subject,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
	_, err = fmt.Fprintf(out, "bootstrap admin token for %s (expires %s):\n%s\n",
		subject, expiresAt.UTC().Format(time.RFC3339), token)
	return err
}
