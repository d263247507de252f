package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhq/tenancy/pkg/logger"
)

func TestGroup(t *testing.T) {
	attr := logger.Group("tenant", logger.TenantSlug("acme"), logger.OrganizationID("org-1"))
	require.Equal(t, "tenant", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "tenant_slug", g[0].Key)
	assert.Equal(t, "organization_id", g[1].Key)
}

func TestError(t *testing.T) {
	err := errors.New("boom")
	attr := logger.Error(err)
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestDomainAttrs(t *testing.T) {
	tests := []struct {
		attr slog.Attr
		key  string
		want string
	}{
		{logger.Host("acme.spokestack.io"), "host", "acme.spokestack.io"},
		{logger.CacheKey("subdomain:acme"), "cache_key", "subdomain:acme"},
		{logger.InstanceID("inst-1"), "instance_id", "inst-1"},
		{logger.Domain("app.example.com"), "domain", "app.example.com"},
		{logger.Outcome("matched"), "outcome", "matched"},
		{logger.Component("resolver"), "component", "resolver"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.key, tt.attr.Key)
		assert.Equal(t, tt.want, tt.attr.Value.String())
	}

	d := logger.Duration(150 * time.Millisecond)
	assert.Equal(t, "duration", d.Key)
	assert.Equal(t, 150*time.Millisecond, d.Value.Duration())
}
