package tenant_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agencyhq/tenancy/pkg/tenant"
)

var errStoreDown = errors.New("connection refused")

func newTestResolver(store tenant.Store, opts ...tenant.ResolverOption) *tenant.Resolver {
	opts = append([]tenant.ResolverOption{
		tenant.WithCache(tenant.NewInMemoryCache(tenant.WithCleanupInterval(0))),
	}, opts...)
	return tenant.NewResolver(store, opts...)
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("base domain resolves to default without store access", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		r := newTestResolver(store)

		for _, host := range []string{"spokestack.io", "www.spokestack.io", "app.spokestack.io", "localhost:3000", ""} {
			cfg := r.Resolve(ctx, host)
			assert.True(t, cfg.IsDefault(), host)
			assert.Empty(t, cfg.OrganizationID, host)
		}
		store.AssertExpectations(t)
	})

	t.Run("client instance wins over organization for custom domain", func(t *testing.T) {
		t.Parallel()

		ci := testInstance("inst-1", "acme")
		ci.CustomDomain = strPtr("portal.acme.com")
		ci.CustomDomainVerified = true

		store := new(mockStore)
		store.On("FindClientInstanceByCustomDomain", mock.Anything, "portal.acme.com").Return(ci, nil).Once()

		cfg := newTestResolver(store).Resolve(ctx, "Portal.Acme.com:443")

		assert.Equal(t, "inst-1", cfg.ID)
		assert.Equal(t, "org-inst-1", cfg.OrganizationID)
		require.NotNil(t, cfg.CustomDomain)
		assert.Equal(t, "portal.acme.com", *cfg.CustomDomain)
		assert.Nil(t, cfg.Subdomain)
		assert.Equal(t, tenant.TierEnterprise, cfg.Tier)
		assert.Equal(t, []string{"crm", "analytics"}, cfg.EnabledModules)
		assert.Equal(t, tenant.DefaultPrimaryColor, cfg.PrimaryColor)
		store.AssertNotCalled(t, "FindOrganizationByDomain", mock.Anything, mock.Anything)
		store.AssertExpectations(t)
	})

	t.Run("custom domain falls through to organization", func(t *testing.T) {
		t.Parallel()

		org := testOrganization("org-1", "agency")
		org.Domain = strPtr("agency.com")
		org.Theme.PrimaryColor = "#000000"

		store := new(mockStore)
		store.On("FindClientInstanceByCustomDomain", mock.Anything, "agency.com").Return(nil, tenant.ErrTenantNotFound).Once()
		store.On("FindOrganizationByDomain", mock.Anything, "agency.com").Return(org, nil).Once()

		cfg := newTestResolver(store).Resolve(ctx, "agency.com")

		assert.Equal(t, "org-1", cfg.ID)
		assert.Equal(t, "org-1", cfg.OrganizationID)
		assert.Equal(t, "#000000", cfg.PrimaryColor)
		require.NotNil(t, cfg.SecondaryColor)
		assert.Equal(t, tenant.DefaultSecondaryColor, *cfg.SecondaryColor)
		assert.Equal(t, tenant.DefaultModules(), cfg.EnabledModules)
		assert.Equal(t, tenant.TierPro, cfg.Tier)
		require.NotNil(t, cfg.CustomDomain)
		assert.Equal(t, "agency.com", *cfg.CustomDomain)
		store.AssertExpectations(t)
	})

	t.Run("subdomain prefers client instance slug", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		store.On("FindClientInstanceBySlug", mock.Anything, "acme").Return(testInstance("inst-1", "acme"), nil).Once()

		cfg := newTestResolver(store).Resolve(ctx, "acme.spokestack.io")

		assert.Equal(t, "inst-1", cfg.ID)
		require.NotNil(t, cfg.Subdomain)
		assert.Equal(t, "acme", *cfg.Subdomain)
		assert.Nil(t, cfg.CustomDomain)
		store.AssertNotCalled(t, "FindOrganizationBySlug", mock.Anything, mock.Anything)
	})

	t.Run("subdomain falls through to organization slug", func(t *testing.T) {
		t.Parallel()

		org := testOrganization("org-1", "agency")
		org.EnabledModules = []string{"crm"}
		org.Tier = "free"

		store := new(mockStore)
		store.On("FindClientInstanceBySlug", mock.Anything, "agency").Return(nil, tenant.ErrTenantNotFound).Once()
		store.On("FindOrganizationBySlug", mock.Anything, "agency").Return(org, nil).Once()

		cfg := newTestResolver(store).Resolve(ctx, "agency.spokestack.io")

		assert.Equal(t, "org-1", cfg.OrganizationID)
		assert.Equal(t, []string{"crm"}, cfg.EnabledModules)
		assert.Equal(t, tenant.TierFree, cfg.Tier)
		store.AssertExpectations(t)
	})

	t.Run("no match resolves to default and is cached", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		store.On("FindClientInstanceBySlug", mock.Anything, "ghost").Return(nil, tenant.ErrTenantNotFound).Once()
		store.On("FindOrganizationBySlug", mock.Anything, "ghost").Return(nil, tenant.ErrTenantNotFound).Once()

		r := newTestResolver(store)
		assert.True(t, r.Resolve(ctx, "ghost.spokestack.io").IsDefault())
		assert.True(t, r.Resolve(ctx, "ghost.spokestack.io").IsDefault())
		store.AssertExpectations(t)
	})

	t.Run("nil record without error counts as no match", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		store.On("FindClientInstanceBySlug", mock.Anything, "ghost").Return(nil, nil).Once()
		store.On("FindOrganizationBySlug", mock.Anything, "ghost").Return(nil, nil).Once()

		assert.True(t, newTestResolver(store).Resolve(ctx, "ghost.spokestack.io").IsDefault())
	})

	t.Run("cache hit skips the store", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		store.On("FindClientInstanceBySlug", mock.Anything, "acme").Return(testInstance("inst-1", "acme"), nil).Once()

		r := newTestResolver(store)
		first := r.Resolve(ctx, "acme.spokestack.io")
		second := r.Resolve(ctx, "ACME.spokestack.io")
		assert.Same(t, first, second)
		store.AssertExpectations(t)
	})
}

func TestResolver_FallbackResilience(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store := new(mockStore)
	store.On("FindClientInstanceByCustomDomain", mock.Anything, mock.Anything).Return(nil, errStoreDown)
	store.On("FindClientInstanceBySlug", mock.Anything, mock.Anything).Return(nil, errStoreDown)
	store.On("FindOrganizationByDomain", mock.Anything, mock.Anything).Return(nil, errStoreDown)
	store.On("FindOrganizationBySlug", mock.Anything, mock.Anything).Return(nil, errStoreDown)

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	r := newTestResolver(store, tenant.WithLogger(log))

	for _, host := range []string{"acme.spokestack.io", "portal.acme.com", "x.localhost", "other.example.org"} {
		var cfg *tenant.Config
		require.NotPanics(t, func() { cfg = r.Resolve(ctx, host) })
		require.NotNil(t, cfg, host)
		assert.True(t, cfg.IsDefault(), host)
		assert.Empty(t, cfg.OrganizationID, host)
	}

	assert.Contains(t, buf.String(), "tenant lookup failed")
	assert.Contains(t, buf.String(), "connection refused")

	// A failed instance lookup ends resolution instead of counting as a miss.
	store.AssertNotCalled(t, "FindOrganizationBySlug", mock.Anything, mock.Anything)
}

func TestResolver_StoreErrorIsNotCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store := new(mockStore)
	store.On("FindClientInstanceBySlug", mock.Anything, "acme").Return(nil, errStoreDown).Once()
	store.On("FindClientInstanceBySlug", mock.Anything, "acme").Return(testInstance("inst-1", "acme"), nil).Once()

	r := newTestResolver(store)
	assert.True(t, r.Resolve(ctx, "acme.spokestack.io").IsDefault())
	assert.Equal(t, "inst-1", r.Resolve(ctx, "acme.spokestack.io").ID)
	store.AssertExpectations(t)
}

func TestResolver_LookupTimeout(t *testing.T) {
	t.Parallel()

	store := new(mockStore)
	store.On("FindClientInstanceBySlug", mock.Anything, "slow").
		Return(nil, context.DeadlineExceeded).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		})

	r := newTestResolver(store, tenant.WithLookupTimeout(20*time.Millisecond))

	start := time.Now()
	cfg := r.Resolve(context.Background(), "slow.spokestack.io")

	assert.True(t, cfg.IsDefault())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolver_Lookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store := new(mockStore)
	store.On("FindClientInstanceBySlug", mock.Anything, "acme").Return(nil, errStoreDown)

	r := newTestResolver(store)

	cfg, err := r.Lookup(ctx, "acme.spokestack.io")
	assert.Nil(t, cfg)
	require.ErrorIs(t, err, errStoreDown)

	cfg, err = r.Lookup(ctx, "spokestack.io")
	require.NoError(t, err)
	assert.True(t, cfg.IsDefault())
}

func TestResolver_VerifiedOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store := tenant.NewMemoryStore()
	pending := testInstance("inst-1", "acme")
	pending.CustomDomain = strPtr("pending.acme.com")
	require.NoError(t, store.SaveClientInstance(ctx, pending))

	inactive := testInstance("inst-2", "gone")
	inactive.Active = false
	inactive.CustomDomain = strPtr("gone.example.com")
	inactive.CustomDomainVerified = true
	require.NoError(t, store.SaveClientInstance(ctx, inactive))

	r := newTestResolver(store)
	assert.True(t, r.Resolve(ctx, "pending.acme.com").IsDefault())
	assert.True(t, r.Resolve(ctx, "gone.example.com").IsDefault())
	assert.True(t, r.Resolve(ctx, "gone.spokestack.io").IsDefault())

	// A pending claim is not exposed through the subdomain either.
	cfg := r.Resolve(ctx, "acme.spokestack.io")
	assert.Equal(t, "inst-1", cfg.ID)
	assert.Nil(t, cfg.CustomDomain)
}

func TestResolver_Invalidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store := tenant.NewMemoryStore()
	ci := testInstance("inst-1", "acme")
	require.NoError(t, store.SaveClientInstance(ctx, ci))

	r := newTestResolver(store)
	assert.Equal(t, "Instance acme", r.Resolve(ctx, "acme.spokestack.io").Name)

	ci.Name = "Acme Renamed"
	require.NoError(t, store.SaveClientInstance(ctx, ci))
	assert.Equal(t, "Instance acme", r.Resolve(ctx, "acme.spokestack.io").Name, "served from cache until invalidated")

	require.NoError(t, r.Invalidate(ctx, "acme"))
	assert.Equal(t, "Acme Renamed", r.Resolve(ctx, "acme.spokestack.io").Name)

	ci.Name = "Acme Again"
	require.NoError(t, store.SaveClientInstance(ctx, ci))
	require.NoError(t, r.Invalidate(ctx, ""))
	assert.Equal(t, "Acme Again", r.Resolve(ctx, "acme.spokestack.io").Name)
}

func TestResolver_MissCacheTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	newResolver := func(store tenant.Store, opts ...tenant.ResolverOption) *tenant.Resolver {
		cache := tenant.NewInMemoryCache(tenant.WithCleanupInterval(0), tenant.WithCacheClock(clock.Now))
		return tenant.NewResolver(store, append([]tenant.ResolverOption{tenant.WithCache(cache)}, opts...)...)
	}

	t.Run("misses expire before matches", func(t *testing.T) {
		store := new(mockStore)
		store.On("FindClientInstanceBySlug", mock.Anything, "ghost").Return(nil, tenant.ErrTenantNotFound).Twice()
		store.On("FindOrganizationBySlug", mock.Anything, "ghost").Return(nil, tenant.ErrTenantNotFound).Twice()
		store.On("FindClientInstanceBySlug", mock.Anything, "acme").Return(testInstance("inst-1", "acme"), nil).Once()

		r := newResolver(store, tenant.WithCacheTTL(5*time.Minute), tenant.WithMissCacheTTL(10*time.Second))
		assert.True(t, r.Resolve(ctx, "ghost.spokestack.io").IsDefault())
		assert.Equal(t, "inst-1", r.Resolve(ctx, "acme.spokestack.io").ID)

		clock.Advance(11 * time.Second)
		// The miss is looked up again, the match is still cached.
		assert.True(t, r.Resolve(ctx, "ghost.spokestack.io").IsDefault())
		assert.Equal(t, "inst-1", r.Resolve(ctx, "acme.spokestack.io").ID)
		store.AssertExpectations(t)
	})

	t.Run("never longer than the cache ttl", func(t *testing.T) {
		store := new(mockStore)
		store.On("FindClientInstanceBySlug", mock.Anything, "ghost").Return(nil, tenant.ErrTenantNotFound).Twice()
		store.On("FindOrganizationBySlug", mock.Anything, "ghost").Return(nil, tenant.ErrTenantNotFound).Twice()

		r := newResolver(store, tenant.WithCacheTTL(time.Second), tenant.WithMissCacheTTL(time.Hour))
		r.Resolve(ctx, "ghost.spokestack.io")
		clock.Advance(2 * time.Second)
		r.Resolve(ctx, "ghost.spokestack.io")
		store.AssertExpectations(t)
	})
}

func TestResolver_Options(t *testing.T) {
	t.Parallel()

	custom := &tenant.Config{ID: tenant.DefaultTenantID, Slug: "platform", Name: "Platform"}
	parser := tenant.NewHostParser([]string{"platform.io"})
	cache := tenant.NewNoOpCache()

	r := tenant.NewResolver(new(mockStore),
		tenant.WithDefaultConfig(custom),
		tenant.WithHostParser(parser),
		tenant.WithCache(cache),
		tenant.WithCacheTTL(time.Second),
		tenant.WithLogger(nil),
	)

	assert.Same(t, custom, r.Default())
	assert.Same(t, parser, r.Parser())
	assert.Equal(t, cache, r.Cache())
	assert.Same(t, custom, r.Resolve(context.Background(), "platform.io"))
}
