package tenant_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/agencyhq/tenancy/pkg/tenant"
)

// mockStore is a testify mock of tenant.Store.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindClientInstanceByCustomDomain(ctx context.Context, domain string) (*tenant.ClientInstance, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.ClientInstance), args.Error(1)
}

func (m *mockStore) FindClientInstanceBySlug(ctx context.Context, slug string) (*tenant.ClientInstance, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.ClientInstance), args.Error(1)
}

func (m *mockStore) FindOrganizationByDomain(ctx context.Context, domain string) (*tenant.Organization, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Organization), args.Error(1)
}

func (m *mockStore) FindOrganizationBySlug(ctx context.Context, slug string) (*tenant.Organization, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Organization), args.Error(1)
}

// fakeClock is a settable clock shared by cache and verifier tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func strPtr(s string) *string {
	return &s
}

func testInstance(id, slug string) *tenant.ClientInstance {
	return &tenant.ClientInstance{
		ID:             id,
		OrganizationID: "org-" + id,
		Slug:           slug,
		Name:           "Instance " + slug,
		EnabledModules: []string{"crm", "analytics"},
		Tier:           "ENTERPRISE",
		Active:         true,
	}
}

func testOrganization(id, slug string) *tenant.Organization {
	return &tenant.Organization{
		ID:   id,
		Slug: slug,
		Name: "Org " + slug,
	}
}
