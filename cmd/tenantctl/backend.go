package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/agencyhq/tenancy/migrations"
	"github.com/agencyhq/tenancy/pkg/config"
	"github.com/agencyhq/tenancy/pkg/logger"
	"github.com/agencyhq/tenancy/pkg/pg"
	"github.com/agencyhq/tenancy/pkg/redis"
	"github.com/agencyhq/tenancy/pkg/tenant"
	"github.com/agencyhq/tenancy/pkg/tenant/pgstore"
	"github.com/agencyhq/tenancy/pkg/tenant/seed"
)

// store is what the commands need from a tenant store.
type store interface {
	tenant.DomainStore
	seed.Saver
}

// backend is the set of services a command runs against.
type backend struct {
	store    store
	resolver *tenant.Resolver
	verifier *tenant.DomainVerifier

	// invalidates is false when domain changes cannot reach tenantd's cache.
	invalidates bool

	// migrate applies schema migrations; nil for stores without a schema.
	migrate func(ctx context.Context) error
	close   func() error
}

// opener builds a backend; tests swap in an in-memory one.
type opener func(ctx context.Context, log *slog.Logger) (*backend, error)

type cliConfig struct {
	CacheDriver  string        `env:"TENANT_CACHE_DRIVER" envDefault:"memory"` // CacheDriver is memory or redis, matching tenantd.
	AdminURL     string        `env:"TENANT_ADMIN_URL"`                        // AdminURL is tenantd's admin prefix, used to invalidate its in-memory cache.
	AdminAPIKey  string        `env:"TENANT_ADMIN_API_KEY"`                    // AdminAPIKey authenticates against AdminURL.
	AdminTimeout time.Duration `env:"TENANT_ADMIN_TIMEOUT" envDefault:"10s"`   // AdminTimeout bounds one admin API call.
}

func openBackend(ctx context.Context, log *slog.Logger) (*backend, error) {
	var (
		cli  cliConfig
		rcfg tenant.ResolverConfig
		pcfg pg.Config
	)
	if err := errors.Join(config.Load(&cli), config.Load(&rcfg), config.Load(&pcfg)); err != nil {
		return nil, err
	}

	pool, err := pg.Connect(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	closers := []func() error{func() error { pool.Close(); return nil }}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	st, err := pgstore.New(pool)
	if err != nil {
		return nil, errors.Join(err, closeAll())
	}

	// Domain changes must reach the cache tenantd reads: the shared Redis
	// cache directly, or tenantd's in-memory cache through its admin API.
	var cache tenant.Cache
	switch {
	case cli.CacheDriver == "redis":
		var rc redis.Config
		if err := config.Load(&rc); err != nil {
			return nil, errors.Join(err, closeAll())
		}
		client, err := redis.Connect(ctx, rc)
		if err != nil {
			return nil, errors.Join(err, closeAll())
		}
		closers = append(closers, client.Close)
		cache = tenant.NewRedisCache(client)
	case cli.AdminURL != "":
		admin := newAdminCache(cli.AdminURL, cli.AdminAPIKey, &http.Client{Timeout: cli.AdminTimeout})
		closers = append(closers, admin.Close)
		cache = admin
	}

	b := newBackend(st, cache, rcfg, log)
	b.migrate = func(ctx context.Context) error {
		return pg.Migrate(ctx, pool, migrations.FS, migrations.Dir, pcfg, log.With(logger.Component("migrate")))
	}
	b.close = closeAll
	return b, nil
}

// newBackend wires the services over st. A nil cache means no cache tenantd
// reads from is reachable, and domain changes are refused.
func newBackend(st store, cache tenant.Cache, rcfg tenant.ResolverConfig, log *slog.Logger) *backend {
	invalidates := cache != nil
	if cache == nil {
		cache = tenant.NewNoOpCache()
	}
	parser := rcfg.HostParser()
	return &backend{
		store:       st,
		invalidates: invalidates,
		resolver: tenant.NewResolver(st,
			tenant.WithCache(cache),
			tenant.WithHostParser(parser),
			tenant.WithLookupTimeout(rcfg.LookupTimeout),
			tenant.WithLogger(log),
		),
		verifier: tenant.NewDomainVerifier(st, cache,
			tenant.WithTokenSecret(rcfg.VerificationSecret),
			tenant.WithTokenPrefix(rcfg.TokenPrefix),
			tenant.WithBaseDomain(rcfg.BaseDomain()),
			tenant.WithVerifierHostParser(parser),
			tenant.WithVerifierLogger(log),
		),
		close: func() error { return nil },
	}
}
