package session

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"secureshop.org/internal/ids"
)

var _ Registry = (*PostgresRegistry)(nil)

// PostgresRegistry implements Registry on the sessions table.
type PostgresRegistry struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRegistry wraps db. now may be nil.
func NewPostgresRegistry(db *sql.DB, now func() time.Time) (*PostgresRegistry, error) {
	if db == nil {
		return nil, errors.New("session db is required")
	}
	if now == nil {
		now = time.Now
	}
	return &PostgresRegistry{db: db, now: now}, nil
}

func (s *PostgresRegistry) Create(ctx context.Context, subject, token string, ttl time.Duration) error {
	subject, err := validateCreate(subject, token, ttl)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx,
		`insert into sessions(subject, id, token_hash, created_at, expires_at)
		 values($1,$2,$3,$4,$5)
		 on conflict (subject) do update
		 set id = excluded.id, token_hash = excluded.token_hash,
		     created_at = excluded.created_at, expires_at = excluded.expires_at`,
		subject, ids.New(), hashToken(token), now, now.Add(ttl),
	)
	return err
}

func (s *PostgresRegistry) IsValid(ctx context.Context, subject, token string) (bool, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || token == "" {
		return false, nil
	}
	row := s.db.QueryRowContext(ctx,
		`select token_hash, expires_at from sessions where subject=$1`, subject)
	var (
		tokenHash string
		expiresAt time.Time
	)
	if err := row.Scan(&tokenHash, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if !s.now().Before(expiresAt) {
		return false, nil
	}
	return tokenMatches(tokenHash, token), nil
}

func (s *PostgresRegistry) Invalidate(ctx context.Context, subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `delete from sessions where subject=$1`, subject)
	return err
}

func (s *PostgresRegistry) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PurgeExpired deletes sessions whose expiry has passed and returns how many
// rows were removed.
func (s *PostgresRegistry) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
