// Package cache provides the Redis-backed key/value layer used for
// short-lived access tokens. Keys carry a TTL so entries age out before the
// remote token does; the durable store remains the source of truth.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is not present. Callers use
// errors.Is to distinguish a true miss from an infrastructure failure.
var ErrMiss = errors.New("cache miss")

// KV is the minimal surface the token manager needs. *Redis implements it;
// tests substitute an in-memory fake.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Values returns the values of every key matching pattern.
	Values(ctx context.Context, pattern string) ([]string, error)
}

// Redis wraps a go-redis client.
type Redis struct {
	rdb *redis.Client
}

// Connect parses a redis:// URL and verifies the connection with a ping.
func Connect(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *Redis) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *Redis) Values(ctx context.Context, pattern string) ([]string, error) {
	keys, err := r.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		// a key can expire between KEYS and MGET
		if s, ok := v.(string); ok {
			values = append(values, s)
		}
	}
	return values, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
