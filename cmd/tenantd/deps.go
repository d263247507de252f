package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/agencyhq/tenancy/migrations"
	"github.com/agencyhq/tenancy/pkg/config"
	"github.com/agencyhq/tenancy/pkg/httpserver"
	"github.com/agencyhq/tenancy/pkg/logger"
	"github.com/agencyhq/tenancy/pkg/pg"
	"github.com/agencyhq/tenancy/pkg/redis"
	"github.com/agencyhq/tenancy/pkg/tenant"
	"github.com/agencyhq/tenancy/pkg/tenant/pgstore"
	"github.com/agencyhq/tenancy/pkg/tenant/seed"
)

// deps holds everything the router needs plus the resources to release on shutdown.
type deps struct {
	resolver *tenant.Resolver
	verifier *tenant.DomainVerifier
	registry *prometheus.Registry
	checks   map[string]httpserver.Check
	closers  []func() error
}

func (d *deps) close(context.Context) error {
	var errs []error
	// Release in reverse order of acquisition.
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

func newDeps(ctx context.Context, app appConfig, rcfg tenant.ResolverConfig, log *slog.Logger) (*deps, error) {
	d := &deps{checks: map[string]httpserver.Check{}}

	store, err := d.openStore(ctx, app, log)
	if err != nil {
		return nil, errors.Join(err, d.close(ctx))
	}
	cache, err := d.openCache(ctx, app, rcfg)
	if err != nil {
		return nil, errors.Join(err, d.close(ctx))
	}

	d.registry = prometheus.NewRegistry()
	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := tenant.NewMetrics(d.registry)
	if err != nil {
		return nil, errors.Join(err, d.close(ctx))
	}

	d.resolver, d.verifier = newTenantServices(store, cache, rcfg, log, metrics)

	log.InfoContext(ctx, "tenant resolution ready",
		slog.String("store", app.StoreDriver),
		slog.String("cache", app.CacheDriver),
		slog.Any("base_domains", d.resolver.Parser().BaseDomains()),
		slog.String("primary_domain", rcfg.BaseDomain()),
	)
	return d, nil
}

// newTenantServices wires the resolver and verifier over one store and one
// cache, so a verification invalidates exactly what the resolver reads.
func newTenantServices(store tenant.DomainStore, cache tenant.Cache, rcfg tenant.ResolverConfig, log *slog.Logger, metrics *tenant.Metrics) (*tenant.Resolver, *tenant.DomainVerifier) {
	parser := rcfg.HostParser()
	resolver := tenant.NewResolver(store,
		tenant.WithCache(cache),
		tenant.WithCacheTTL(rcfg.CacheTTL),
		tenant.WithMissCacheTTL(rcfg.MissCacheTTL),
		tenant.WithHostParser(parser),
		tenant.WithLookupTimeout(rcfg.LookupTimeout),
		tenant.WithLogger(log),
		tenant.WithMetrics(metrics),
	)
	verifier := tenant.NewDomainVerifier(store, cache,
		tenant.WithTokenSecret(rcfg.VerificationSecret),
		tenant.WithTokenPrefix(rcfg.TokenPrefix),
		tenant.WithBaseDomain(rcfg.BaseDomain()),
		tenant.WithVerifierHostParser(parser),
		tenant.WithVerifierLogger(log),
		tenant.WithVerifierMetrics(metrics),
	)
	return resolver, verifier
}

func (d *deps) openStore(ctx context.Context, app appConfig, log *slog.Logger) (tenant.DomainStore, error) {
	if app.StoreDriver == driverMemory {
		store := tenant.NewMemoryStore()
		if app.SeedFile == "" {
			return store, nil
		}
		file, err := seed.Load(app.SeedFile)
		if err != nil {
			return nil, err
		}
		res, err := seed.Apply(ctx, store, file, time.Now)
		if err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "memory store seeded",
			slog.String("file", app.SeedFile),
			slog.Int("organizations", res.Organizations),
			slog.Int("instances", res.Instances),
		)
		return store, nil
	}

	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() error { pool.Close(); return nil })
	d.checks["postgres"] = pg.Healthcheck(pool)

	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx, pool, migrations.FS, migrations.Dir, cfg, log.With(logger.Component("migrate"))); err != nil {
			return nil, err
		}
	}

	store, err := pgstore.New(pool)
	if err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return store, nil
}

func (d *deps) openCache(ctx context.Context, app appConfig, rcfg tenant.ResolverConfig) (tenant.Cache, error) {
	if app.CacheDriver == driverMemory {
		cache := tenant.NewInMemoryCache(tenant.WithCacheSize(rcfg.CacheSize))
		d.closers = append(d.closers, cache.Close)
		return cache, nil
	}

	var cfg redis.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	client, err := redis.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, client.Close)
	d.checks["redis"] = redis.Healthcheck(client)
	return tenant.NewRedisCache(client), nil
}
