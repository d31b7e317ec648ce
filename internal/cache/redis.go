// Package cache keeps full catalog listings in Redis between writes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medcatalog/api/internal/catalog"
	"medcatalog/api/internal/metrics"
)

const EntriesKey = "entries"

// ListingKey is the cache key of the asset listing for kind.
func ListingKey(kind catalog.Kind) string {
	return "listing:" + string(kind)
}

// RedisCache stores JSON-encoded listings with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, prefix: "catalog:", ttl: ttl}
}

func (c *RedisCache) key(name string) string {
	return c.prefix + name
}

// Get decodes the cached value under name into dest and reports whether it was present.
func (c *RedisCache) Get(ctx context.Context, name string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, c.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheLookup(false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cache %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Undecodable entries are dropped rather than served.
		_ = c.client.Del(ctx, c.key(name)).Err()
		metrics.RecordCacheLookup(false)
		return false, nil
	}
	metrics.RecordCacheLookup(true)
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache %s: %w", name, err)
	}
	if err := c.client.Set(ctx, c.key(name), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cache %s: %w", name, err)
	}
	return nil
}

// Invalidate deletes the named entries. Missing keys are not an error.
func (c *RedisCache) Invalidate(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = c.key(name)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
