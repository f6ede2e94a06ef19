// Package session tracks which issued access tokens are still live.
//
// Each subject holds at most one live session; creating a session replaces
// the previous one, and invalidating it revokes the token immediately even
// though the token itself has not yet expired. IsValid never mutates state.
package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrInvalidInput is returned for empty subjects, tokens or non-positive TTLs.
var ErrInvalidInput = errors.New("session: invalid input")

// Registry is the authoritative revocation store consulted on every request.
type Registry interface {
	// Create records token as the live session for subject until ttl elapses.
	Create(ctx context.Context, subject, token string, ttl time.Duration) error
	// IsValid reports whether token is the live, unexpired session of subject.
	IsValid(ctx context.Context, subject, token string) (bool, error)
	// Invalidate revokes subject's session. Revoking a missing session is not an error.
	Invalidate(ctx context.Context, subject string) error
	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

func validateCreate(subject, token string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || token == "" || ttl <= 0 {
		return "", ErrInvalidInput
	}
	return subject, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func tokenMatches(expectedHash, token string) bool {
	actual := hashToken(token)
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
