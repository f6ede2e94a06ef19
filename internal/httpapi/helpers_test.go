package httpapi

import (
	"context"
	"testing"
	"time"

	"secureshop.org/internal/auth"
	"secureshop.org/internal/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	codec    *auth.JWTCodec
	sessions *session.MemoryRegistry
	gate     *auth.Gate
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	codec, err := auth.NewJWTCodec([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewJWTCodec: %v", err)
	}
	sessions := session.NewMemoryRegistry(nil)
	gate, err := auth.NewGate(codec, sessions)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return &testEnv{codec: codec, sessions: sessions, gate: gate}
}

// login issues a token and registers its session, like a successful sign-in.
func (e *testEnv) login(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	token, _, err := e.codec.Issue(auth.Identity{Subject: subject, Role: role, Email: subject + "@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := e.sessions.Create(context.Background(), subject, token, time.Hour); err != nil {
		t.Fatalf("Create session: %v", err)
	}
	return token
}

// expiredToken is signed with a clock two hours behind, so it expired an hour ago.
func (e *testEnv) expiredToken(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	past, err := auth.NewJWTCodec([]byte(testSecret), auth.WithClock(func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	}))
	if err != nil {
		t.Fatalf("NewJWTCodec: %v", err)
	}
	token, _, err := past.Issue(auth.Identity{Subject: subject, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

type brokenSessions struct{ err error }

func (b brokenSessions) Create(context.Context, string, string, time.Duration) error { return b.err }
func (b brokenSessions) IsValid(context.Context, string, string) (bool, error)        { return false, b.err }
func (b brokenSessions) Invalidate(context.Context, string) error                    { return b.err }
func (b brokenSessions) Ping(context.Context) error                                  { return b.err }
