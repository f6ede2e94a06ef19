package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"secureshop.org/internal/config"
)

// Open builds the registry selected by cfg.SessionBackend and verifies it is
// reachable. The returned close function releases the backend connection.
func Open(ctx context.Context, cfg config.Config) (Registry, func() error, error) {
	noop := func() error { return nil }
	switch cfg.SessionBackend {
	case config.BackendMemory, "":
		return NewMemoryRegistry(nil), noop, nil

	case config.BackendRedis:
		client, err := NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		reg, err := NewRedisRegistry(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := reg.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("session: redis ping: %w", err)
		}
		return reg, reg.Close, nil

	case config.BackendPostgres:
		db, err := sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("session: open postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		reg, err := NewPostgresRegistry(db, nil)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if err := reg.Ping(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("session: postgres ping: %w", err)
		}
		return reg, db.Close, nil
	}
	return nil, nil, fmt.Errorf("session: unknown backend %q", cfg.SessionBackend)
}
