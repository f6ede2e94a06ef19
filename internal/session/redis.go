package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Registry = (*RedisRegistry)(nil)

const defaultKeyPrefix = "session:"

// RedisRegistry stores one key per subject holding the token hash, with the
// session TTL as the key expiry.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClient connects to a single Redis node.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), nil
}

// NewRedisRegistry wraps an existing client.
func NewRedisRegistry(client redis.UniversalClient) (*RedisRegistry, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisRegistry{client: client, prefix: defaultKeyPrefix}, nil
}

func (r *RedisRegistry) key(subject string) string {
	return r.prefix + subject
}

func (r *RedisRegistry) Create(ctx context.Context, subject, token string, ttl time.Duration) error {
	subject, err := validateCreate(subject, token, ttl)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(subject), hashToken(token), ttl).Err()
}

func (r *RedisRegistry) IsValid(ctx context.Context, subject, token string) (bool, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || token == "" {
		return false, nil
	}
	stored, err := r.client.Get(ctx, r.key(subject)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tokenMatches(stored, token), nil
}

func (r *RedisRegistry) Invalidate(ctx context.Context, subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidInput
	}
	return r.client.Del(ctx, r.key(subject)).Err()
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
