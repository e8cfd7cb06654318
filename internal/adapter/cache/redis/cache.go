// Package rediscache implements the domain Cache port on Redis: short-TTL
// read caching plus the engine's coordination primitives (TTL locks,
// cooldown flags, last-account markers).
package rediscache

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// Cache wraps a go-redis client.
type Cache struct {
	rdb *redis.Client
}

// New parses a redis:// URL and returns a Cache.
func New(redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=cache.new: %w", err)
	}
	return &Cache{rdb: redis.NewClient(opt)}, nil
}

// NewWithClient wraps an existing client (tests use miniredis here).
func NewWithClient(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

// Ping checks connectivity; used by readiness probes.
func (c *Cache) Ping(ctx domain.Context) error { return c.rdb.Ping(ctx).Err() }

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.rdb.Close() }

// Get returns the value and whether the key exists.
func (c *Cache) Get(ctx domain.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("op=cache.get key=%s: %w", key, err)
	}
	return v, true, nil
}

// Set stores a value with a TTL. A zero TTL is rejected: every entry the
// engine writes is short-lived by contract.
func (c *Cache) Set(ctx domain.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("op=cache.set key=%s: %w: ttl required", key, domain.ErrInvalidArgument)
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.set key=%s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx domain.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("op=cache.delete: %w", err)
	}
	return nil
}

// DeletePattern removes all keys matching a glob pattern via SCAN.
func (c *Cache) DeletePattern(ctx domain.Context, pattern string) error {
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("op=cache.delete_pattern pattern=%s: %w", pattern, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("op=cache.delete_pattern pattern=%s: %w", pattern, err)
	}
	if len(batch) > 0 {
		if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("op=cache.delete_pattern pattern=%s: %w", pattern, err)
		}
	}
	return nil
}

// AcquireLock is SET-NX with a TTL. Returns false when another holder owns
// the key. No lock is ever taken without a TTL.
func (c *Cache) AcquireLock(ctx domain.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("op=cache.lock key=%s: %w: ttl required", key, domain.ErrInvalidArgument)
	}
	ok, err := c.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("op=cache.lock key=%s: %w", key, err)
	}
	return ok, nil
}

// ReleaseLock drops a lock early; expiry would release it anyway.
func (c *Cache) ReleaseLock(ctx domain.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("op=cache.unlock key=%s: %w", key, err)
	}
	return nil
}

var _ domain.Cache = (*Cache)(nil)
