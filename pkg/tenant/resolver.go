package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agencyhq/tenancy/pkg/logger"
)

// DefaultLookupTimeout bounds a single store lookup on cache miss.
const DefaultLookupTimeout = 3 * time.Second

// DefaultMissCacheTTL is how long a host that matched nothing stays cached.
const DefaultMissCacheTTL = 30 * time.Second

// Resolver maps request hostnames to tenant configs.
// It is safe for concurrent use.
type Resolver struct {
	store         Store
	cache         Cache
	cacheTTL      time.Duration
	missTTL       time.Duration
	parser        *HostParser
	defaultConfig *Config
	logger        *slog.Logger
	metrics       *Metrics
	lookupTimeout time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache sets the cache. Defaults to an in-memory cache.
func WithCache(cache Cache) ResolverOption {
	return func(r *Resolver) {
		if cache != nil {
			r.cache = cache
		}
	}
}

// WithCacheTTL sets how long resolved tenants are cached.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// WithMissCacheTTL sets how long the default served for an unmatched host is
// cached. It never exceeds the cache TTL.
func WithMissCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.missTTL = ttl
		}
	}
}

// WithHostParser sets the hostname classifier.
func WithHostParser(p *HostParser) ResolverOption {
	return func(r *Resolver) {
		if p != nil {
			r.parser = p
		}
	}
}

// WithDefaultConfig replaces the platform tenant served on fallback.
func WithDefaultConfig(cfg *Config) ResolverOption {
	return func(r *Resolver) {
		if cfg != nil {
			r.defaultConfig = cfg
		}
	}
}

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics enables prometheus counters.
func WithMetrics(m *Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithLookupTimeout bounds each store lookup. The request context still applies.
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// NewResolver creates a resolver reading from store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:         store,
		cacheTTL:      DefaultCacheTTL,
		defaultConfig: DefaultConfig(),
		logger:        logger.Discard(),
		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.missTTL == 0 {
		r.missTTL = DefaultMissCacheTTL
	}
	r.missTTL = min(r.missTTL, r.cacheTTL)
	if r.parser == nil {
		r.parser = NewHostParser(nil)
	}
	if r.cache == nil {
		r.cache = NewInMemoryCache()
	}
	r.logger = r.logger.With(logger.Component("tenant.resolver"))
	return r
}

// Parser returns the host parser in use.
func (r *Resolver) Parser() *HostParser {
	return r.parser
}

// Cache returns the cache in use, so that the domain verifier can share it.
func (r *Resolver) Cache() Cache {
	return r.cache
}

// Default returns the platform tenant.
func (r *Resolver) Default() *Config {
	return r.defaultConfig
}

// Resolve returns the tenant serving host. It never fails: hosts that match
// nothing, and lookups that fail, resolve to the platform tenant.
func (r *Resolver) Resolve(ctx context.Context, host string) *Config {
	h := r.parser.Classify(host)
	if h.Kind == KindDefault {
		r.metrics.resolution(h.Kind, OutcomeDefault)
		return r.defaultConfig
	}

	key := h.CacheKey()
	if cfg, ok := r.cache.Get(ctx, key); ok {
		r.metrics.resolution(h.Kind, OutcomeCacheHit)
		return cfg
	}

	// A lookup that started before a Verify can still write its miss after
	// Verify invalidated the key. Misses use the shorter miss TTL, which
	// bounds how long such a stale default can be served.
	ttl := r.cacheTTL
	cfg, err := r.lookup(ctx, h)
	switch {
	case err != nil:
		// Degrade to the platform tenant. OrganizationID is empty so no
		// tenant-scoped data can be read with it. Not cached: the next
		// request retries the store.
		r.metrics.resolution(h.Kind, OutcomeError)
		r.logger.ErrorContext(ctx, "tenant lookup failed, serving default tenant",
			logger.Host(host),
			logger.CacheKey(key),
			logger.Error(err),
		)
		return r.defaultConfig

	case cfg == nil:
		r.metrics.resolution(h.Kind, OutcomeNotFound)
		r.logger.DebugContext(ctx, "no tenant matches host",
			logger.Host(host),
			logger.CacheKey(key),
		)
		cfg = r.defaultConfig
		ttl = r.missTTL

	default:
		r.metrics.resolution(h.Kind, OutcomeMatched)
	}

	if err := r.cache.Set(ctx, key, cfg, ttl); err != nil {
		r.logger.WarnContext(ctx, "failed to cache tenant",
			logger.CacheKey(key),
			logger.Error(err),
		)
	}
	return cfg
}

// Lookup resolves host against the store, bypassing the cache.
// It returns (nil, nil) when nothing matches.
func (r *Resolver) Lookup(ctx context.Context, host string) (*Config, error) {
	h := r.parser.Classify(host)
	if h.Kind == KindDefault {
		return r.defaultConfig, nil
	}
	return r.lookup(ctx, h)
}

// lookup queries the store for h. A client instance always wins over an
// organization with the same domain or slug.
func (r *Resolver) lookup(ctx context.Context, h Host) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	start := time.Now()
	defer func() { r.metrics.lookup(h.Kind, time.Since(start)) }()

	switch h.Kind {
	case KindCustom:
		ci, err := r.store.FindClientInstanceByCustomDomain(ctx, h.Identifier)
		if ok, err := found(ci, err); err != nil {
			return nil, fmt.Errorf("find client instance by domain %q: %w", h.Identifier, err)
		} else if ok {
			return configFromClientInstance(ci, h), nil
		}
		org, err := r.store.FindOrganizationByDomain(ctx, h.Identifier)
		if ok, err := found(org, err); err != nil {
			return nil, fmt.Errorf("find organization by domain %q: %w", h.Identifier, err)
		} else if ok {
			return configFromOrganization(org, h), nil
		}

	case KindSubdomain:
		ci, err := r.store.FindClientInstanceBySlug(ctx, h.Identifier)
		if ok, err := found(ci, err); err != nil {
			return nil, fmt.Errorf("find client instance by slug %q: %w", h.Identifier, err)
		} else if ok {
			return configFromClientInstance(ci, h), nil
		}
		org, err := r.store.FindOrganizationBySlug(ctx, h.Identifier)
		if ok, err := found(org, err); err != nil {
			return nil, fmt.Errorf("find organization by slug %q: %w", h.Identifier, err)
		} else if ok {
			return configFromOrganization(org, h), nil
		}
	}

	return nil, nil
}

// found normalizes a store result: ErrTenantNotFound and nil records are a
// miss, any other error is a failure.
func found[T any](rec *T, err error) (bool, error) {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		return false, nil
	case err != nil:
		return false, err
	default:
		return rec != nil, nil
	}
}

// Invalidate removes cached tenants whose key contains identifier.
// An empty identifier clears the whole cache.
func (r *Resolver) Invalidate(ctx context.Context, identifier string) error {
	return invalidate(ctx, r.cache, r.metrics, r.logger, identifier)
}

func invalidate(ctx context.Context, cache Cache, m *Metrics, l *slog.Logger, identifier string) error {
	if identifier == "" {
		m.invalidation("all")
		if err := cache.Clear(ctx); err != nil {
			return errors.Join(ErrCacheInvalidation, err)
		}
		l.InfoContext(ctx, "tenant cache cleared")
		return nil
	}

	m.invalidation("identifier")
	n, err := cache.DeleteMatching(ctx, identifier)
	if err != nil {
		return errors.Join(ErrCacheInvalidation, err)
	}
	l.DebugContext(ctx, "tenant cache invalidated",
		slog.String("identifier", identifier),
		slog.Int("removed", n),
	)
	return nil
}
