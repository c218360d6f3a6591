package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps JSON-encoded read models of type T under
// "auditflow:<prefix>:<key>". Entries expire after the cache TTL.
type Cache[T any] struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewCache creates a Cache. Summaries are short-lived, so a TTL is required.
func NewCache[T any](client *Client, prefix string, ttl time.Duration) (*Cache[T], error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client is required")
	case prefix == "":
		return nil, errors.New("cache prefix is required")
	case ttl <= 0:
		return nil, fmt.Errorf("cache %s: TTL must be positive", prefix)
	}
	return &Cache[T]{client: client, prefix: prefix, ttl: ttl}, nil
}

func cacheKey(prefix, key string) string {
	return "auditflow:" + prefix + ":" + key
}

// Get returns the cached value or ErrCacheMiss.
func (c *Cache[T]) Get(ctx context.Context, key string) (v *T, err error) {
	defer c.observe("cache_get", time.Now(), &err)

	data, err := c.client.client.Get(ctx, cacheKey(c.prefix, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		DefaultMetrics.RecordCacheMiss(c.prefix)
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("cache decode %s: %w", key, err)
	}
	DefaultMetrics.RecordCacheHit(c.prefix)
	return &value, nil
}

// Set stores value for the cache TTL.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) (err error) {
	defer c.observe("cache_set", time.Now(), &err)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.client.Set(ctx, cacheKey(c.prefix, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete drops key. Deleting a missing key is not an error.
func (c *Cache[T]) Delete(ctx context.Context, key string) (err error) {
	defer c.observe("cache_delete", time.Now(), &err)

	if err := c.client.client.Del(ctx, cacheKey(c.prefix, key)).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// observe records the operation; a miss is not counted as a failure.
func (c *Cache[T]) observe(op string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, ErrCacheMiss) {
		err = nil
	}
	DefaultMetrics.ObserveOperation(op, time.Since(start), err)
}
