// Package config reads service settings from SECURESHOP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"secureshop.org/internal/auth"
)

const envPrefix = "SECURESHOP_"

// Session backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

var ErrMissingSecret = errors.New("config: SECURESHOP_JWT_SECRET is required")

// Config holds the runtime settings for cmd/api and cmd/issue-token.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	JWTSecret []byte
	JWTIssuer string
	TokenTTL  time.Duration

	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PGDSN          string

	MaxBodyBytes int64

	// BootstrapAdmin, when set, is the subject of an admin session minted at
	// startup so that POST /v1/sessions is reachable on a fresh registry.
	BootstrapAdmin string
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		HTTPAddr:       get("HTTP_ADDR", ":8080"),
		GRPCAddr:       get("GRPC_ADDR", ""),
		JWTSecret:      []byte(getenv(envPrefix + "JWT_SECRET")),
		JWTIssuer:      get("JWT_ISSUER", auth.DefaultIssuer),
		SessionBackend: strings.ToLower(get("SESSION_BACKEND", BackendMemory)),
		RedisAddr:      get("REDIS_ADDR", ""),
		RedisPassword:  getenv(envPrefix + "REDIS_PASSWORD"),
		PGDSN:          get("PG_DSN", ""),
		BootstrapAdmin: get("BOOTSTRAP_ADMIN", ""),
	}

	ttl, err := time.ParseDuration(get("TOKEN_TTL", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("config: SECURESHOP_TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = ttl

	db, err := strconv.Atoi(get("REDIS_DB", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("config: SECURESHOP_REDIS_DB: %w", err)
	}
	cfg.RedisDB = db

	maxBody, err := strconv.ParseInt(get("MAX_BODY_BYTES", "1048576"), 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("config: SECURESHOP_MAX_BODY_BYTES: %w", err)
	}
	cfg.MaxBodyBytes = maxBody

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if len(c.JWTSecret) == 0 {
		return ErrMissingSecret
	}
	if len(c.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("config: SECURESHOP_JWT_SECRET must be at least %d bytes", auth.MinSecretLength)
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: SECURESHOP_TOKEN_TTL must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("config: SECURESHOP_MAX_BODY_BYTES must be positive")
	}
	switch c.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: SECURESHOP_REDIS_ADDR is required for the redis backend")
		}
	case BackendPostgres:
		if c.PGDSN == "" {
			return errors.New("config: SECURESHOP_PG_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown session backend %q", c.SessionBackend)
	}
	return nil
}
