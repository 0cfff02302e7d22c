package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "emuse:session:"

// RedisBackend stores sessions as JSON values whose key TTL matches the
// session expiry.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) key(id uuid.UUID) string {
	return b.prefix + id.String()
}

func (b *RedisBackend) Put(ctx context.Context, d Data) error {
	ttl := time.Until(d.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := b.client.Set(ctx, b.key(d.SessionID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, id uuid.UUID) (Data, error) {
	payload, err := b.client.Get(ctx, b.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var d Data
	if err := json.Unmarshal(payload, &d); err != nil {
		return Data{}, ErrNotFound
	}
	return d, nil
}

func (b *RedisBackend) Delete(ctx context.Context, id uuid.UUID) error {
	if err := b.client.Del(ctx, b.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}
