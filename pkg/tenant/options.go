package tenant

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

// ErrorHandler handles errors raised by the tenant middleware.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// HostResolver is what the middleware needs from a Resolver.
type HostResolver interface {
	Resolve(ctx context.Context, host string) *Config
}

// middlewareConfig holds middleware configuration.
type middlewareConfig struct {
	skipPaths          []string
	trustForwardedHost bool
	exposeSlugHeader   bool
	logger             *slog.Logger
}

// MiddlewareOption configures the middleware.
type MiddlewareOption func(*middlewareConfig)

// WithSkipPaths sets path prefixes that skip tenant resolution.
func WithSkipPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.skipPaths = append(c.skipPaths, paths...)
	}
}

// WithTrustForwardedHost resolves from X-Forwarded-Host when present.
// Enable only behind a proxy that overwrites the header.
func WithTrustForwardedHost(trust bool) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.trustForwardedHost = trust
	}
}

// WithSlugHeader controls whether the resolved slug is echoed in the
// X-Tenant-Slug response header. Enabled by default.
func WithSlugHeader(enabled bool) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.exposeSlugHeader = enabled
	}
}

// WithMiddlewareLogger sets a logger for the middleware.
func WithMiddlewareLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNoTenantInContext):
		http.Error(w, "Tenant context missing", http.StatusInternalServerError)
	case errors.Is(err, ErrTenantUnavailable):
		http.Error(w, "Tenant unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
