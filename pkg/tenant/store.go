package tenant

import (
	"context"
	"time"
)

// ClientInstance is a white-label client portal provisioned under an organization.
type ClientInstance struct {
	ID             string         `json:"id" yaml:"id"`
	OrganizationID string         `json:"organization_id" yaml:"organization_id"`
	Slug           string         `json:"slug" yaml:"slug"`
	Name           string         `json:"name" yaml:"name"`
	Logo           *string        `json:"logo,omitempty" yaml:"logo,omitempty"`
	LogoMark       *string        `json:"logo_mark,omitempty" yaml:"logo_mark,omitempty"`
	Favicon        *string        `json:"favicon,omitempty" yaml:"favicon,omitempty"`
	PrimaryColor   *string        `json:"primary_color,omitempty" yaml:"primary_color,omitempty"`
	SecondaryColor *string        `json:"secondary_color,omitempty" yaml:"secondary_color,omitempty"`
	EnabledModules []string       `json:"enabled_modules" yaml:"enabled_modules"`
	Settings       map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	Tier           string         `json:"tier" yaml:"tier"`
	Active         bool           `json:"active" yaml:"active"`

	CustomDomain           *string    `json:"custom_domain,omitempty" yaml:"custom_domain,omitempty"`
	CustomDomainVerified   bool       `json:"custom_domain_verified" yaml:"custom_domain_verified"`
	CustomDomainVerifiedAt *time.Time `json:"custom_domain_verified_at,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Organization is an agency account. Its slug doubles as a platform subdomain
// and Domain, when set, is an organization-level custom domain.
type Organization struct {
	ID             string         `json:"id" yaml:"id"`
	Slug           string         `json:"slug" yaml:"slug"`
	Name           string         `json:"name" yaml:"name"`
	Logo           *string        `json:"logo,omitempty" yaml:"logo,omitempty"`
	LogoMark       *string        `json:"logo_mark,omitempty" yaml:"logo_mark,omitempty"`
	Favicon        *string        `json:"favicon,omitempty" yaml:"favicon,omitempty"`
	Domain         *string        `json:"domain,omitempty" yaml:"domain,omitempty"`
	Theme          Theme          `json:"theme" yaml:"theme"`
	EnabledModules []string       `json:"enabled_modules,omitempty" yaml:"enabled_modules,omitempty"`
	Settings       map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	Tier           string         `json:"tier,omitempty" yaml:"tier,omitempty"`
	CreatedAt      time.Time      `json:"created_at" yaml:"-"`
}

// Theme holds organization theme settings.
type Theme struct {
	PrimaryColor   string `json:"primaryColor,omitempty" yaml:"primary_color,omitempty"`
	SecondaryColor string `json:"secondaryColor,omitempty" yaml:"secondary_color,omitempty"`
}

// DomainUpdate is the set of domain fields written by the verification workflow.
type DomainUpdate struct {
	CustomDomain *string
	Verified     bool
	VerifiedAt   *time.Time
}

// Store loads backing records for tenant resolution.
// Every method returns ErrTenantNotFound when no record matches.
type Store interface {
	// FindClientInstanceByCustomDomain must only match active instances whose
	// custom domain is verified. The filter belongs in the query itself.
	FindClientInstanceByCustomDomain(ctx context.Context, domain string) (*ClientInstance, error)

	// FindClientInstanceBySlug must only match active instances.
	FindClientInstanceBySlug(ctx context.Context, slug string) (*ClientInstance, error)

	FindOrganizationByDomain(ctx context.Context, domain string) (*Organization, error)
	FindOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
}

// DomainStore extends Store with what the domain verification workflow needs.
type DomainStore interface {
	Store

	GetClientInstance(ctx context.Context, id string) (*ClientInstance, error)
	UpdateClientInstanceDomain(ctx context.Context, id string, update DomainUpdate) error

	// ListActiveClientInstances returns every active instance.
	ListActiveClientInstances(ctx context.Context) ([]ClientInstance, error)

	// ListOrganizationDomains returns every non-empty organization domain.
	ListOrganizationDomains(ctx context.Context) ([]string, error)

	// ListClientInstancesWithDomain returns instances that have a custom domain,
	// verified or not, newest first.
	ListClientInstancesWithDomain(ctx context.Context) ([]ClientInstance, error)
}

// configFromClientInstance projects a client instance resolved via host h.
func configFromClientInstance(ci *ClientInstance, h Host) *Config {
	primary := DefaultPrimaryColor
	if c := nonEmpty(ci.PrimaryColor); c != nil {
		primary = *c
	}

	cfg := &Config{
		ID:             ci.ID,
		Slug:           ci.Slug,
		Name:           ci.Name,
		OrganizationID: ci.OrganizationID,
		Logo:           nonEmpty(ci.Logo),
		LogoMark:       nonEmpty(ci.LogoMark),
		Favicon:        nonEmpty(ci.Favicon),
		PrimaryColor:   primary,
		SecondaryColor: nonEmpty(ci.SecondaryColor),
		EnabledModules: cloneModules(ci.EnabledModules),
		Settings:       cloneSettings(ci.Settings),
		Tier:           ParseTier(ci.Tier),
	}

	switch h.Kind {
	case KindCustom:
		cfg.CustomDomain = ptr(h.Identifier)
	case KindSubdomain:
		cfg.Subdomain = ptr(h.Identifier)
		// Only a verified domain is part of the instance's identity; a pending
		// claim must not mark the tenant as white-labeled.
		if ci.CustomDomainVerified {
			cfg.CustomDomain = nonEmpty(ci.CustomDomain)
		}
	}

	return cfg
}

// configFromOrganization projects an organization resolved via host h.
func configFromOrganization(org *Organization, h Host) *Config {
	primary := DefaultPrimaryColor
	if org.Theme.PrimaryColor != "" {
		primary = org.Theme.PrimaryColor
	}
	secondary := DefaultSecondaryColor
	if org.Theme.SecondaryColor != "" {
		secondary = org.Theme.SecondaryColor
	}

	modules := cloneModules(org.EnabledModules)
	if len(modules) == 0 {
		modules = DefaultModules()
	}

	cfg := &Config{
		ID:             org.ID,
		Slug:           org.Slug,
		Name:           org.Name,
		OrganizationID: org.ID,
		Logo:           nonEmpty(org.Logo),
		LogoMark:       nonEmpty(org.LogoMark),
		Favicon:        nonEmpty(org.Favicon),
		PrimaryColor:   primary,
		SecondaryColor: ptr(secondary),
		Domain:         nonEmpty(org.Domain),
		EnabledModules: modules,
		Settings:       cloneSettings(org.Settings),
		Tier:           ParseTier(org.Tier),
	}

	switch h.Kind {
	case KindCustom:
		cfg.CustomDomain = ptr(h.Identifier)
	case KindSubdomain:
		cfg.Subdomain = ptr(h.Identifier)
	}

	return cfg
}
