package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhq/tenancy/pkg/tenant"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("generates id and creation time", func(t *testing.T) {
		t.Parallel()

		store := tenant.NewMemoryStore()
		ci := &tenant.ClientInstance{Slug: "acme", Active: true}
		require.NoError(t, store.SaveClientInstance(ctx, ci))

		_, err := uuid.Parse(ci.ID)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), ci.CreatedAt, time.Minute)

		org := &tenant.Organization{Slug: "agency"}
		require.NoError(t, store.SaveOrganization(ctx, org))
		_, err = uuid.Parse(org.ID)
		require.NoError(t, err)
	})

	t.Run("rejects records without slug", func(t *testing.T) {
		t.Parallel()

		store := tenant.NewMemoryStore()
		require.ErrorIs(t, store.SaveClientInstance(ctx, &tenant.ClientInstance{}), tenant.ErrInvalidRecord)
		require.ErrorIs(t, store.SaveOrganization(ctx, nil), tenant.ErrInvalidRecord)
	})

	t.Run("returns copies", func(t *testing.T) {
		t.Parallel()

		store := tenant.NewMemoryStore()
		require.NoError(t, store.SaveClientInstance(ctx, testInstance("inst-1", "acme")))

		got, err := store.GetClientInstance(ctx, "inst-1")
		require.NoError(t, err)
		got.EnabledModules[0] = "mutated"
		got.Name = "mutated"

		again, err := store.GetClientInstance(ctx, "inst-1")
		require.NoError(t, err)
		assert.Equal(t, "crm", again.EnabledModules[0])
		assert.Equal(t, "Instance acme", again.Name)
	})

	t.Run("custom domain lookup requires verified and active", func(t *testing.T) {
		t.Parallel()

		store := tenant.NewMemoryStore()
		ci := testInstance("inst-1", "acme")
		ci.CustomDomain = strPtr("portal.acme.com")
		require.NoError(t, store.SaveClientInstance(ctx, ci))

		_, err := store.FindClientInstanceByCustomDomain(ctx, "portal.acme.com")
		require.ErrorIs(t, err, tenant.ErrTenantNotFound)

		now := time.Now()
		require.NoError(t, store.UpdateClientInstanceDomain(ctx, "inst-1", tenant.DomainUpdate{
			CustomDomain: strPtr("portal.acme.com"),
			Verified:     true,
			VerifiedAt:   &now,
		}))
		got, err := store.FindClientInstanceByCustomDomain(ctx, "portal.acme.com")
		require.NoError(t, err)
		assert.Equal(t, "inst-1", got.ID)

		ci.Active = false
		ci.CustomDomainVerified = true
		require.NoError(t, store.SaveClientInstance(ctx, ci))
		_, err = store.FindClientInstanceByCustomDomain(ctx, "portal.acme.com")
		require.ErrorIs(t, err, tenant.ErrTenantNotFound)
		_, err = store.FindClientInstanceBySlug(ctx, "acme")
		require.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})

	t.Run("organizations", func(t *testing.T) {
		t.Parallel()

		store := tenant.NewMemoryStore()
		org := testOrganization("org-1", "agency")
		org.Domain = strPtr("agency.com")
		require.NoError(t, store.SaveOrganization(ctx, org))
		require.NoError(t, store.SaveOrganization(ctx, testOrganization("org-2", "plain")))

		got, err := store.FindOrganizationByDomain(ctx, "agency.com")
		require.NoError(t, err)
		assert.Equal(t, "org-1", got.ID)

		got, err = store.FindOrganizationBySlug(ctx, "plain")
		require.NoError(t, err)
		assert.Equal(t, "org-2", got.ID)

		_, err = store.FindOrganizationBySlug(ctx, "missing")
		require.ErrorIs(t, err, tenant.ErrTenantNotFound)

		domains, err := store.ListOrganizationDomains(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"agency.com"}, domains)
	})

	t.Run("one verified instance per domain", func(t *testing.T) {
		t.Parallel()

		store := tenant.NewMemoryStore()
		require.NoError(t, store.SaveClientInstance(ctx, testInstance("inst-1", "acme")))
		require.NoError(t, store.SaveClientInstance(ctx, testInstance("inst-2", "rival")))

		now := time.Now()
		verified := tenant.DomainUpdate{CustomDomain: strPtr("app.example.com"), Verified: true, VerifiedAt: &now}
		require.NoError(t, store.UpdateClientInstanceDomain(ctx, "inst-1", verified))
		require.ErrorIs(t, store.UpdateClientInstanceDomain(ctx, "inst-2", verified), tenant.ErrDomainTaken)

		// Pending claims and re-verifying the owner are fine.
		require.NoError(t, store.UpdateClientInstanceDomain(ctx, "inst-2", tenant.DomainUpdate{CustomDomain: strPtr("app.example.com")}))
		require.NoError(t, store.UpdateClientInstanceDomain(ctx, "inst-1", verified))

		dup := testInstance("inst-3", "copy")
		dup.CustomDomain = strPtr("app.example.com")
		dup.CustomDomainVerified = true
		require.ErrorIs(t, store.SaveClientInstance(ctx, dup), tenant.ErrDomainTaken)

		got, err := store.FindClientInstanceByCustomDomain(ctx, "app.example.com")
		require.NoError(t, err)
		assert.Equal(t, "inst-1", got.ID)
	})

	t.Run("update unknown instance", func(t *testing.T) {
		t.Parallel()

		store := tenant.NewMemoryStore()
		require.ErrorIs(t, store.UpdateClientInstanceDomain(ctx, "missing", tenant.DomainUpdate{}), tenant.ErrTenantNotFound)
	})

	t.Run("list active instances by slug", func(t *testing.T) {
		t.Parallel()

		store := tenant.NewMemoryStore()
		inactive := testInstance("inst-3", "charlie")
		inactive.Active = false
		for _, ci := range []*tenant.ClientInstance{testInstance("inst-2", "bravo"), testInstance("inst-1", "alpha"), inactive} {
			require.NoError(t, store.SaveClientInstance(ctx, ci))
		}

		list, err := store.ListActiveClientInstances(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "alpha", list[0].Slug)
		assert.Equal(t, "bravo", list[1].Slug)
	})
}
