package tenant

import (
	"net/http"
	"strings"

	"github.com/agencyhq/tenancy/pkg/logger"
)

// SlugHeader carries the resolved tenant slug on responses.
const SlugHeader = "X-Tenant-Slug"

// Middleware resolves the tenant once per request from the Host header and
// stores it in the request context. Resolution never fails, so every request
// that is not skipped reaches next with a scope.
func Middleware(resolver HostResolver, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		exposeSlugHeader: true,
		logger:           logger.Discard(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			host := requestHost(r, cfg.trustForwardedHost)
			tenant := resolver.Resolve(r.Context(), host)
			if tenant == nil {
				// HostResolver implementations other than Resolver may return nil.
				tenant = DefaultConfig()
			}

			if cfg.exposeSlugHeader {
				w.Header().Set(SlugHeader, tenant.Slug)
			}

			ctx := WithTenant(r.Context(), tenant)
			cfg.logger.DebugContext(ctx, "tenant resolved",
				logger.Host(host),
				logger.TenantSlug(tenant.Slug),
				logger.OrganizationID(tenant.OrganizationID),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestHost(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
			// First entry is the client-facing host when proxies append.
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				fwd = fwd[:i]
			}
			return strings.TrimSpace(fwd)
		}
	}
	return r.Host
}

// RequireOrganization guards routes that read tenant-owned data. Requests
// whose scope is missing or degraded are rejected with ErrTenantUnavailable
// or ErrNoTenantInContext instead of running with an empty organization filter.
func RequireOrganization(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = defaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, ok := FromContext(r.Context())
			if !ok {
				errorHandler(w, r, ErrNoTenantInContext)
				return
			}
			if scope.IsDegraded() {
				errorHandler(w, r, ErrTenantUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
