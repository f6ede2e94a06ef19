package session

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ Registry = (*MemoryRegistry)(nil)

type memorySession struct {
	tokenHash string
	expiresAt time.Time
}

// MemoryRegistry keeps sessions in process memory. It is the development
// fallback when no shared store is configured.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	now      func() time.Time
}

// NewMemoryRegistry builds an empty registry. now may be nil.
func NewMemoryRegistry(now func() time.Time) *MemoryRegistry {
	if now == nil {
		now = time.Now
	}
	return &MemoryRegistry{
		sessions: make(map[string]memorySession),
		now:      now,
	}
}

func (m *MemoryRegistry) Create(_ context.Context, subject, token string, ttl time.Duration) error {
	subject, err := validateCreate(subject, token, ttl)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.sessions[subject] = memorySession{
		tokenHash: hashToken(token),
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

func (m *MemoryRegistry) IsValid(_ context.Context, subject, token string) (bool, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || token == "" {
		return false, nil
	}
	m.mu.RLock()
	sess, ok := m.sessions[subject]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !m.now().Before(sess.expiresAt) {
		return false, nil
	}
	return tokenMatches(sess.tokenHash, token), nil
}

func (m *MemoryRegistry) Invalidate(_ context.Context, subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	delete(m.sessions, subject)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRegistry) Ping(context.Context) error { return nil }

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryRegistry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// sweepLocked drops expired sessions. Expiry is pruned on writes only so that
// IsValid stays read-only.
func (m *MemoryRegistry) sweepLocked() {
	now := m.now()
	for k, s := range m.sessions {
		if !now.Before(s.expiresAt) {
			delete(m.sessions, k)
		}
	}
}
