package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhq/tenancy/pkg/httpserver"
	"github.com/agencyhq/tenancy/pkg/logger"
	"github.com/agencyhq/tenancy/pkg/tenant"
	"github.com/agencyhq/tenancy/pkg/tenant/seed"
)

func testResolverConfig() tenant.ResolverConfig {
	return tenant.ResolverConfig{
		BaseDomains:        tenant.DefaultBaseDomains(),
		CacheTTL:           tenant.DefaultCacheTTL,
		LookupTimeout:      time.Second,
		VerificationSecret: "test",
	}
}

func newTestRouter(t *testing.T, app appConfig) http.Handler {
	t.Helper()
	return newTestRouterWith(t, app, testResolverConfig())
}

func newTestRouterWith(t *testing.T, app appConfig, rcfg tenant.ResolverConfig) http.Handler {
	t.Helper()

	ctx := context.Background()
	store := tenant.NewMemoryStore()
	file, err := seed.Load("../../pkg/tenant/seed/testdata/tenants.yaml")
	require.NoError(t, err)
	_, err = seed.Apply(ctx, store, file, nil)
	require.NoError(t, err)

	cache := tenant.NewInMemoryCache(tenant.WithCleanupInterval(0))
	t.Cleanup(func() { _ = cache.Close() })

	reg := prometheus.NewRegistry()
	metrics, err := tenant.NewMetrics(reg)
	require.NoError(t, err)

	d := &deps{registry: reg, checks: map[string]httpserver.Check{}}
	d.resolver, d.verifier = newTenantServices(store, cache, rcfg, logger.Discard(), metrics)
	return newRouter(d, app, logger.Discard())
}

func get(t *testing.T, h http.Handler, host, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = host
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_CurrentTenant(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, appConfig{})

	tests := []struct {
		name    string
		host    string
		slug    string
		orgID   string
		white   bool
		isDeflt bool
	}{
		{"platform domain", "spokestack.io", "spokestack", "", false, true},
		{"instance subdomain", "acme.spokestack.io", "acme", "org-1", true, false},
		{"verified custom domain", "portal.acme.com", "acme", "org-1", true, false},
		{"pending custom domain", "app.globex.com", "spokestack", "", false, true},
		{"organization domain", "agency.com", "agency", "org-1", true, false},
		{"organization subdomain", "studio.spokestack.io", "studio", "org-2", false, false},
		{"reserved label", "www.spokestack.io", "spokestack", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := get(t, h, tt.host, "/", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.slug, rec.Header().Get(tenant.SlugHeader))

			var view tenantView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
			assert.Equal(t, tt.slug, view.Slug)
			assert.Equal(t, tt.orgID, view.OrganizationID)
			assert.Equal(t, tt.white, view.WhiteLabeled)
			assert.Equal(t, tt.isDeflt, view.Default)
		})
	}
}

func TestRouter_ForwardedHost(t *testing.T) {
	t.Parallel()

	forwarded := http.Header{"X-Forwarded-Host": {"portal.acme.com"}}

	rec := get(t, newTestRouter(t, appConfig{}), "spokestack.io", "/", forwarded)
	assert.Equal(t, "spokestack", rec.Header().Get(tenant.SlugHeader))

	rec = get(t, newTestRouter(t, appConfig{TrustForwardedHost: true}), "spokestack.io", "/", forwarded)
	assert.Equal(t, "acme", rec.Header().Get(tenant.SlugHeader))
}

func TestRouter_ModuleGating(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, appConfig{})

	assert.Equal(t, http.StatusOK, get(t, h, "acme.spokestack.io", "/modules/crm", nil).Code)
	assert.Equal(t, http.StatusForbidden, get(t, h, "acme.spokestack.io", "/modules/mediabuying", nil).Code)
	// Organizations without a module list get the default set.
	assert.Equal(t, http.StatusOK, get(t, h, "studio.spokestack.io", "/modules/mediabuying", nil).Code)
	// The platform tenant has no organization to scope data to.
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "spokestack.io", "/modules/crm", nil).Code)
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, appConfig{AdminAPIKey: "key"})

	rec := get(t, h, "acme.spokestack.io", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(tenant.SlugHeader))

	assert.Equal(t, http.StatusOK, get(t, h, "localhost", "/readyz", nil).Code)

	get(t, h, "acme.spokestack.io", "/", nil)
	rec = get(t, h, "localhost", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tenant_resolutions_total"))

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "localhost", "/admin/domains", nil).Code)
	rec = get(t, h, "localhost", "/admin/domains", http.Header{"X-Admin-Api-Key": {"key"}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ConfiguredBaseDomain(t *testing.T) {
	t.Parallel()

	rcfg := testResolverConfig()
	rcfg.BaseDomains = []string{"platform.io"}
	h := newTestRouterWith(t, appConfig{}, rcfg)

	rec := get(t, h, "localhost", "/admin/domains", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Data, "acme.platform.io")
	assert.NotContains(t, body.Data, "acme.spokestack.io")

	// Listed subdomains are the ones that resolve.
	assert.Equal(t, "acme", get(t, h, "acme.platform.io", "/", nil).Header().Get(tenant.SlugHeader))
	assert.Equal(t, "spokestack", get(t, h, "acme.spokestack.io", "/", nil).Header().Get(tenant.SlugHeader))
}

func TestAppConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := appConfig{StoreDriver: driverMemory, CacheDriver: driverRedis}
	require.NoError(t, valid.Validate())

	bad := appConfig{StoreDriver: "sqlite", CacheDriver: driverMemory}
	require.ErrorIs(t, bad.Validate(), errUnknownDriver)

	bad = appConfig{StoreDriver: driverPostgres, CacheDriver: "memcached"}
	require.ErrorIs(t, bad.Validate(), errUnknownDriver)

	for _, env := range []string{logger.EnvProduction, "prod"} {
		prod := appConfig{Env: env, StoreDriver: driverPostgres, CacheDriver: driverRedis}
		require.ErrorIs(t, prod.Validate(), errMissingAdminKey, env)

		prod.AdminAPIKey = "key"
		require.NoError(t, prod.Validate(), env)
	}

	// Development keeps the admin API open for local use.
	dev := appConfig{Env: "development", StoreDriver: driverMemory, CacheDriver: driverMemory}
	require.NoError(t, dev.Validate())
}
