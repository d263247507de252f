// Package domains is the operator API for custom domain verification and the
// tenant cache. tenantd mounts it under /admin.
package domains

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agencyhq/tenancy/pkg/logger"
	"github.com/agencyhq/tenancy/pkg/tenant"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "X-Admin-API-Key"

// Verifier is the subset of *tenant.DomainVerifier the API uses.
type Verifier interface {
	ClaimDomain(ctx context.Context, instanceID, domain string) (string, error)
	Verify(ctx context.Context, instanceID, domain string) error
	ListRegisteredDomains(ctx context.Context) ([]string, error)
	DomainClaims(ctx context.Context) ([]tenant.DomainClaim, error)
	Stats(ctx context.Context) (tenant.DomainStats, error)
}

// Resolver is the subset of *tenant.Resolver the API uses.
type Resolver interface {
	Resolve(ctx context.Context, host string) *tenant.Config
	Invalidate(ctx context.Context, identifier string) error
	Parser() *tenant.HostParser
}

// RouterOptions wires the admin API.
type RouterOptions struct {
	Verifier Verifier
	Resolver Resolver

	// APIKey guards every route when set. An empty key leaves the API open,
	// which is only acceptable in development.
	APIKey string

	Logger *slog.Logger
}

// Router builds the admin router.
//
//	r := chi.NewRouter()
//	r.Mount("/admin", domains.Router(domains.RouterOptions{
//		Verifier: verifier,
//		Resolver: resolver,
//		APIKey:   cfg.AdminAPIKey,
//		Logger:   log,
//	}))
func Router(opts RouterOptions) chi.Router {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	h := &handlers{
		verifier: opts.Verifier,
		resolver: opts.Resolver,
		log:      log.With(logger.Component("admin.domains")),
	}

	r := chi.NewRouter()
	if opts.APIKey != "" {
		r.Use(requireAPIKey(opts.APIKey))
	}

	r.Route("/domains", func(r chi.Router) {
		r.Get("/", h.listDomains)
		r.Get("/claims", h.listClaims)
		r.Get("/stats", h.stats)
	})
	r.Post("/instances/{id}/domain", h.claimDomain)
	r.Post("/instances/{id}/domain/verify", h.verifyDomain)
	r.Delete("/cache", h.invalidateCache)
	r.Get("/resolve", h.resolve)

	return r
}

func requireAPIKey(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(APIKeyHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
