package domains_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhq/tenancy/modules/domains"
	"github.com/agencyhq/tenancy/pkg/tenant"
)

type fixture struct {
	store    *tenant.MemoryStore
	resolver *tenant.Resolver
	verifier *tenant.DomainVerifier
	handler  http.Handler
}

func newFixture(t *testing.T, apiKey string) fixture {
	t.Helper()

	ctx := context.Background()
	store := tenant.NewMemoryStore()
	require.NoError(t, store.SaveOrganization(ctx, &tenant.Organization{ID: "org-1", Slug: "agency", Name: "Agency"}))
	require.NoError(t, store.SaveClientInstance(ctx, &tenant.ClientInstance{
		ID:             "inst-1",
		OrganizationID: "org-1",
		Slug:           "acme",
		Name:           "Acme",
		EnabledModules: []string{"crm"},
		Active:         true,
	}))

	cache := tenant.NewInMemoryCache(tenant.WithCleanupInterval(0))
	t.Cleanup(func() { _ = cache.Close() })

	resolver := tenant.NewResolver(store, tenant.WithCache(cache))
	verifier := tenant.NewDomainVerifier(store, cache,
		tenant.WithTokenSecret("test-secret"),
		tenant.WithVerifierHostParser(resolver.Parser()),
	)

	return fixture{
		store:    store,
		resolver: resolver,
		verifier: verifier,
		handler: domains.Router(domains.RouterOptions{
			Verifier: verifier,
			Resolver: resolver,
			APIKey:   apiKey,
		}),
	}
}

func (f fixture) do(t *testing.T, method, target, body string, header http.Header) (*httptest.ResponseRecorder, domains.Response) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var resp domains.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestRouter_APIKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "s3cret")

	rec, resp := f.do(t, http.MethodGet, "/domains/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unauthorized", resp.Error.Code)

	rec, _ = f.do(t, http.MethodGet, "/domains/stats", "", http.Header{domains.APIKeyHeader: {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/domains/stats", "", http.Header{domains.APIKeyHeader: {"s3cret"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, resp.Error)
}

func TestRouter_DomainLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()

	// The unverified domain resolves to the default tenant and that result is cached.
	rec, resp := f.do(t, http.MethodGet, "/resolve?host=portal.acme.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp.Meta["default"])
	assert.Equal(t, "custom", resp.Meta["kind"])
	assert.Equal(t, "custom:portal.acme.com", resp.Meta["cache_key"])

	rec, resp = f.do(t, http.MethodPost, "/instances/inst-1/domain", `{"domain":"Portal.Acme.com."}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, f.verifier.VerificationToken("inst-1"), data["verification_token"])

	_, resp = f.do(t, http.MethodGet, "/domains/claims", "", nil)
	claims := resp.Data.([]any)
	require.Len(t, claims, 1)
	assert.Equal(t, string(tenant.StatePending), claims[0].(map[string]any)["state"])

	rec, resp = f.do(t, http.MethodPost, "/instances/inst-1/domain/verify", `{"domain":"portal.acme.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp.Data.(map[string]any)["verified"])

	cfg := f.resolver.Resolve(ctx, "portal.acme.com")
	assert.Equal(t, "inst-1", cfg.ID)

	_, resp = f.do(t, http.MethodGet, "/domains", "", nil)
	assert.ElementsMatch(t, []any{"acme.spokestack.io", "portal.acme.com"}, resp.Data)
	assert.EqualValues(t, 2, resp.Meta["count"])

	_, resp = f.do(t, http.MethodGet, "/domains/stats", "", nil)
	assert.Equal(t, map[string]any{"total": 1.0, "verified": 1.0, "pending": 0.0}, resp.Data)
}

func TestRouter_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"malformed body", "/instances/inst-1/domain", `{`, http.StatusBadRequest, "invalid_body"},
		{"empty domain", "/instances/inst-1/domain", `{"domain":" "}`, http.StatusUnprocessableEntity, "invalid_domain"},
		{"platform domain", "/instances/inst-1/domain", `{"domain":"acme.spokestack.io"}`, http.StatusUnprocessableEntity, "invalid_domain"},
		{"unknown instance", "/instances/missing/domain", `{"domain":"portal.acme.com"}`, http.StatusNotFound, "not_found"},
		{"verify without claim", "/instances/inst-1/domain/verify", `{"domain":"portal.acme.com"}`, http.StatusConflict, "no_pending_claim"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, "")
			rec, resp := f.do(t, http.MethodPost, tt.target, tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	t.Run("domain mismatch and taken", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		ctx := context.Background()
		require.NoError(t, f.store.SaveClientInstance(ctx, &tenant.ClientInstance{
			ID: "inst-2", OrganizationID: "org-1", Slug: "globex", Name: "Globex", Active: true,
		}))

		_, err := f.verifier.ClaimDomain(ctx, "inst-1", "portal.acme.com")
		require.NoError(t, err)

		rec, resp := f.do(t, http.MethodPost, "/instances/inst-1/domain/verify", `{"domain":"other.acme.com"}`, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "domain_mismatch", resp.Error.Code)

		require.NoError(t, f.verifier.Verify(ctx, "inst-1", "portal.acme.com"))

		rec, resp = f.do(t, http.MethodPost, "/instances/inst-2/domain", `{"domain":"portal.acme.com"}`, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "domain_taken", resp.Error.Code)
	})
}

func TestRouter_Cache(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()

	require.Equal(t, "inst-1", f.resolver.Resolve(ctx, "acme.spokestack.io").ID)
	_, ok := f.resolver.Cache().Get(ctx, "subdomain:acme")
	require.True(t, ok)

	rec, resp := f.do(t, http.MethodDelete, "/cache?identifier=acme", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"invalidated": "acme"}, resp.Data)
	_, ok = f.resolver.Cache().Get(ctx, "subdomain:acme")
	assert.False(t, ok)

	f.resolver.Resolve(ctx, "acme.spokestack.io")
	_, resp = f.do(t, http.MethodDelete, "/cache", "", nil)
	assert.Equal(t, map[string]any{"invalidated": "all"}, resp.Data)
	_, ok = f.resolver.Cache().Get(ctx, "subdomain:acme")
	assert.False(t, ok)
}

type failingResolver struct{ domains.Resolver }

func (failingResolver) Invalidate(context.Context, string) error {
	return errors.Join(tenant.ErrCacheInvalidation, errors.New("redis down"))
}

func TestRouter_InternalErrorsHideDetails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	h := domains.Router(domains.RouterOptions{Verifier: f.verifier, Resolver: failingResolver{f.resolver}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/cache", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "redis down"))
}

func TestRouter_ResolveRequiresHost(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	rec, resp := f.do(t, http.MethodGet, "/resolve", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_host", resp.Error.Code)
}
