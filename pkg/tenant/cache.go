package tenant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agencyhq/tenancy/pkg/cache"
)

// DefaultCacheTTL is how long a resolved tenant stays cached.
const DefaultCacheTTL = 5 * time.Minute

// DefaultCacheSize is the default maximum number of items in the cache.
const DefaultCacheSize = 1000

// Cache is the interface for tenant caching implementations.
// Keys have the form "{kind}:{identifier}", see Host.CacheKey.
type Cache interface {
	// Get retrieves a tenant from cache by key. Expired entries are never returned.
	Get(ctx context.Context, key string) (*Config, bool)

	// Set stores a tenant in cache with the given TTL.
	Set(ctx context.Context, key string, cfg *Config, ttl time.Duration) error

	// Delete removes a tenant from cache.
	Delete(ctx context.Context, key string) error

	// DeleteMatching removes every key containing substr and returns how many were removed.
	DeleteMatching(ctx context.Context, substr string) (int, error)

	// Clear removes everything.
	Clear(ctx context.Context) error

	// Close releases any resources held by the cache.
	Close() error
}

type cacheItem struct {
	cfg       *Config
	expiresAt time.Time
}

// inMemoryCache is the default in-memory cache implementation.
type inMemoryCache struct {
	items *cache.LRUCache[string, cacheItem]
	now   func() time.Time

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

type cacheConfig struct {
	maxSize         int
	cleanupInterval time.Duration
	now             func() time.Time
}

// CacheOption configures the in-memory cache.
type CacheOption func(*cacheConfig)

// WithCacheSize bounds the number of cached tenants; the least recently used is evicted.
func WithCacheSize(n int) CacheOption {
	return func(c *cacheConfig) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithCleanupInterval sets how often expired entries are swept.
// Zero disables the background sweeper; expired entries are still dropped on read.
func WithCleanupInterval(d time.Duration) CacheOption {
	return func(c *cacheConfig) {
		c.cleanupInterval = d
	}
}

// WithCacheClock replaces time.Now, mostly for tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *cacheConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// NewInMemoryCache creates a process-wide in-memory cache.
// Call Close to stop the background sweeper.
func NewInMemoryCache(opts ...CacheOption) Cache {
	cfg := &cacheConfig{
		maxSize:         DefaultCacheSize,
		cleanupInterval: time.Minute,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &inMemoryCache{
		items: cache.NewLRUCache[string, cacheItem](cfg.maxSize),
		now:   cfg.now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	if cfg.cleanupInterval > 0 {
		go c.cleanup(cfg.cleanupInterval)
	} else {
		close(c.done)
	}

	return c
}

func (c *inMemoryCache) Get(_ context.Context, key string) (*Config, bool) {
	item, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(item.expiresAt) {
		c.items.Remove(key)
		return nil, false
	}
	return item.cfg, true
}

func (c *inMemoryCache) Set(_ context.Context, key string, cfg *Config, ttl time.Duration) error {
	if cfg == nil || ttl <= 0 {
		return nil
	}
	c.items.Put(key, cacheItem{cfg: cfg, expiresAt: c.now().Add(ttl)})
	return nil
}

func (c *inMemoryCache) Delete(_ context.Context, key string) error {
	c.items.Remove(key)
	return nil
}

func (c *inMemoryCache) DeleteMatching(_ context.Context, substr string) (int, error) {
	return c.items.RemoveFunc(func(key string, _ cacheItem) bool {
		return strings.Contains(key, substr)
	}), nil
}

func (c *inMemoryCache) Clear(_ context.Context) error {
	c.items.Clear()
	return nil
}

// cleanup periodically removes expired items from cache.
func (c *inMemoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *inMemoryCache) removeExpired() {
	now := c.now()
	c.items.RemoveFunc(func(_ string, item cacheItem) bool {
		return !now.Before(item.expiresAt)
	})
}

// Close stops the cleanup goroutine and waits for it to finish.
func (c *inMemoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return nil
}

// noOpCache is a cache that doesn't cache anything.
type noOpCache struct{}

// NewNoOpCache creates a cache that doesn't cache.
func NewNoOpCache() Cache {
	return noOpCache{}
}

func (noOpCache) Get(context.Context, string) (*Config, bool)               { return nil, false }
func (noOpCache) Set(context.Context, string, *Config, time.Duration) error { return nil }
func (noOpCache) Delete(context.Context, string) error                      { return nil }
func (noOpCache) DeleteMatching(context.Context, string) (int, error)       { return 0, nil }
func (noOpCache) Clear(context.Context) error                               { return nil }
func (noOpCache) Close() error                                              { return nil }
