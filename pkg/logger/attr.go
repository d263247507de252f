package logger

import (
	"log/slog"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Host records a request hostname under the key "host".
func Host(host string) slog.Attr {
	return slog.String("host", host)
}

// CacheKey records a tenant cache key under the key "cache_key".
func CacheKey(key string) slog.Attr {
	return slog.String("cache_key", key)
}

// TenantSlug records the resolved tenant slug under the key "tenant_slug".
func TenantSlug(slug string) slog.Attr {
	return slog.String("tenant_slug", slug)
}

// OrganizationID records the organization scope under the key "organization_id".
// An empty id is logged as-is: it marks a degraded resolution.
func OrganizationID(id string) slog.Attr {
	return slog.String("organization_id", id)
}

// InstanceID records a client instance id under the key "instance_id".
func InstanceID(id string) slog.Attr {
	return slog.String("instance_id", id)
}

// Domain records a custom domain under the key "domain".
func Domain(domain string) slog.Attr {
	return slog.String("domain", domain)
}

// Outcome records how an operation ended under the key "outcome".
func Outcome(outcome string) slog.Attr {
	return slog.String("outcome", outcome)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
