package tenant

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements DomainStore in memory. It backs local development
// and tests; production uses the Postgres store. Like the Postgres schema, it
// allows at most one verified instance per custom domain.
type MemoryStore struct {
	mu            sync.RWMutex
	instances     map[string]*ClientInstance
	organizations map[string]*Organization
	now           func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:     make(map[string]*ClientInstance),
		organizations: make(map[string]*Organization),
		now:           time.Now,
	}
}

// SaveClientInstance inserts or replaces an instance. A missing ID is generated.
func (m *MemoryStore) SaveClientInstance(_ context.Context, ci *ClientInstance) error {
	if ci == nil || ci.Slug == "" {
		return ErrInvalidRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ci.ID == "" {
		ci.ID = uuid.NewString()
	}
	if ci.CustomDomainVerified {
		if err := m.checkDomainLocked(ci.ID, ci.CustomDomain); err != nil {
			return err
		}
	}
	if ci.CreatedAt.IsZero() {
		ci.CreatedAt = m.now()
	}
	m.instances[ci.ID] = copyInstance(ci)
	return nil
}

// SaveOrganization inserts or replaces an organization. A missing ID is generated.
func (m *MemoryStore) SaveOrganization(_ context.Context, org *Organization) error {
	if org == nil || org.Slug == "" {
		return ErrInvalidRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = m.now()
	}
	m.organizations[org.ID] = copyOrganization(org)
	return nil
}

func (m *MemoryStore) FindClientInstanceByCustomDomain(_ context.Context, domain string) (*ClientInstance, error) {
	return m.findInstance(func(ci *ClientInstance) bool {
		return ci.Active && ci.CustomDomainVerified && ci.CustomDomain != nil && *ci.CustomDomain == domain
	})
}

func (m *MemoryStore) FindClientInstanceBySlug(_ context.Context, slug string) (*ClientInstance, error) {
	return m.findInstance(func(ci *ClientInstance) bool {
		return ci.Active && ci.Slug == slug
	})
}

func (m *MemoryStore) FindOrganizationByDomain(_ context.Context, domain string) (*Organization, error) {
	return m.findOrganization(func(org *Organization) bool {
		return org.Domain != nil && *org.Domain == domain
	})
}

func (m *MemoryStore) FindOrganizationBySlug(_ context.Context, slug string) (*Organization, error) {
	return m.findOrganization(func(org *Organization) bool {
		return org.Slug == slug
	})
}

func (m *MemoryStore) GetClientInstance(_ context.Context, id string) (*ClientInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ci, ok := m.instances[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return copyInstance(ci), nil
}

func (m *MemoryStore) UpdateClientInstanceDomain(_ context.Context, id string, update DomainUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ci, ok := m.instances[id]
	if !ok {
		return ErrTenantNotFound
	}
	if update.Verified {
		if err := m.checkDomainLocked(id, update.CustomDomain); err != nil {
			return err
		}
	}
	ci.CustomDomain = copyPtr(update.CustomDomain)
	ci.CustomDomainVerified = update.Verified
	ci.CustomDomainVerifiedAt = copyPtr(update.VerifiedAt)
	return nil
}

func (m *MemoryStore) ListActiveClientInstances(_ context.Context) ([]ClientInstance, error) {
	return m.listInstances(func(ci *ClientInstance) bool { return ci.Active }), nil
}

func (m *MemoryStore) ListClientInstancesWithDomain(_ context.Context) ([]ClientInstance, error) {
	out := m.listInstances(func(ci *ClientInstance) bool { return nonEmpty(ci.CustomDomain) != nil })
	slices.SortStableFunc(out, func(a, b ClientInstance) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListOrganizationDomains(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, org := range m.organizations {
		if d := nonEmpty(org.Domain); d != nil {
			out = append(out, *d)
		}
	}
	slices.Sort(out)
	return out, nil
}

// checkDomainLocked fails when an instance other than id holds domain verified.
// It must be called with m.mu held.
func (m *MemoryStore) checkDomainLocked(id string, domain *string) error {
	d := nonEmpty(domain)
	if d == nil {
		return nil
	}
	for _, other := range m.instances {
		if other.ID != id && other.CustomDomainVerified && nonEmpty(other.CustomDomain) != nil && *other.CustomDomain == *d {
			return fmt.Errorf("%w: %q", ErrDomainTaken, *d)
		}
	}
	return nil
}

func (m *MemoryStore) findInstance(match func(*ClientInstance) bool) (*ClientInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ci := range m.instances {
		if match(ci) {
			return copyInstance(ci), nil
		}
	}
	return nil, ErrTenantNotFound
}

func (m *MemoryStore) findOrganization(match func(*Organization) bool) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, org := range m.organizations {
		if match(org) {
			return copyOrganization(org), nil
		}
	}
	return nil, ErrTenantNotFound
}

// listInstances returns matching instances ordered by slug.
func (m *MemoryStore) listInstances(match func(*ClientInstance) bool) []ClientInstance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ClientInstance, 0, len(m.instances))
	for _, ci := range m.instances {
		if match(ci) {
			out = append(out, *copyInstance(ci))
		}
	}
	slices.SortFunc(out, func(a, b ClientInstance) int {
		return cmp.Compare(a.Slug, b.Slug)
	})
	return out
}

func copyInstance(ci *ClientInstance) *ClientInstance {
	c := *ci
	c.EnabledModules = slices.Clone(ci.EnabledModules)
	c.Settings = maps.Clone(ci.Settings)
	c.CustomDomain = copyPtr(ci.CustomDomain)
	c.CustomDomainVerifiedAt = copyPtr(ci.CustomDomainVerifiedAt)
	return &c
}

func copyOrganization(org *Organization) *Organization {
	c := *org
	c.EnabledModules = slices.Clone(org.EnabledModules)
	c.Settings = maps.Clone(org.Settings)
	c.Domain = copyPtr(org.Domain)
	return &c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
