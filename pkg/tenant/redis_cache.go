package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces tenant cache keys in a shared Redis.
const DefaultRedisKeyPrefix = "tenant:"

// scanBatch is the COUNT hint used while scanning for invalidation.
const scanBatch = 200

// redisCache stores resolved tenants in Redis so that every replica shares
// one cache and one set of invalidations. Expiry is delegated to Redis.
type redisCache struct {
	client redis.UniversalClient
	prefix string
}

// RedisCacheOption configures the Redis cache.
type RedisCacheOption func(*redisCache)

// WithKeyPrefix sets the key namespace. Defaults to DefaultRedisKeyPrefix.
func WithKeyPrefix(prefix string) RedisCacheOption {
	return func(c *redisCache) {
		c.prefix = prefix
	}
}

// NewRedisCache creates a Cache backed by the given client.
// The client is owned by the caller; Close does not close it.
func NewRedisCache(client redis.UniversalClient, opts ...RedisCacheOption) Cache {
	c := &redisCache{client: client, prefix: DefaultRedisKeyPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) key(k string) string {
	return c.prefix + k
}

func (c *redisCache) Get(ctx context.Context, key string) (*Config, bool) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return nil, false
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, false
	}
	return &cfg, true
}

func (c *redisCache) Set(ctx context.Context, key string, cfg *Config, ttl time.Duration) error {
	if cfg == nil || ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("tenant cache: encode %q: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("tenant cache: set %q: %w", key, err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("tenant cache: delete %q: %w", key, err)
	}
	return nil
}

func (c *redisCache) DeleteMatching(ctx context.Context, substr string) (int, error) {
	return c.deletePattern(ctx, c.prefix+"*"+escapeGlob(substr)+"*")
}

func (c *redisCache) Clear(ctx context.Context) error {
	_, err := c.deletePattern(ctx, c.prefix+"*")
	return err
}

func (c *redisCache) deletePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("tenant cache: scan %q: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("tenant cache: delete matching %q: %w", pattern, err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func (c *redisCache) Close() error {
	return nil
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob quotes Redis MATCH metacharacters so substr is matched literally.
func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
