// Package redis provides Redis-backed adapters for the trust engine.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResponseCache memoizes encrypted IAM authentication responses for a
// bounded time. A cloud round-trip per identical rapid-fire request is
// wasted money; a bounded-TTL cache entry is not a correctness risk because
// the cached blob is exactly what the same caller would receive anyway.
type ResponseCache struct {
	client redis.UniversalClient
	prefix string
}

// NewResponseCache creates a ResponseCache with the default key prefix.
func NewResponseCache(client redis.UniversalClient) *ResponseCache {
	return &ResponseCache{client: client, prefix: "authresp:"}
}

// NewResponseCacheWithPrefix creates a ResponseCache with a custom prefix.
func NewResponseCacheWithPrefix(client redis.UniversalClient, prefix string) *ResponseCache {
	return &ResponseCache{client: client, prefix: prefix}
}

// Get returns the cached blob for the fingerprint, or (nil, nil) on miss.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("cache key cannot be empty")
	}
	result, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return []byte(result), nil
}

// Set stores the blob under the fingerprint with the given TTL.
func (c *ResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}
