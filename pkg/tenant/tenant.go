package tenant

import (
	"slices"
	"strings"
)

// Tier is the billing tier of a tenant.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Platform branding used by the default tenant and as fallback for
// records that leave their colors empty.
const (
	DefaultPrimaryColor   = "#52EDC7"
	DefaultSecondaryColor = "#1BA098"
)

// DefaultTenantID identifies the platform's own tenant.
const DefaultTenantID = "default"

// Config is the resolved tenant identity used for rendering and for scoping
// every downstream data query.
//
// A Config is projected from a ClientInstance or an Organization at resolution
// time and must be treated as read-only: cached values are shared between
// concurrent requests.
type Config struct {
	ID             string  `json:"id"`
	Slug           string  `json:"slug"`
	Name           string  `json:"name"`
	OrganizationID string  `json:"organization_id"`
	Logo           *string `json:"logo,omitempty"`
	LogoMark       *string `json:"logo_mark,omitempty"`
	Favicon        *string `json:"favicon,omitempty"`
	PrimaryColor   string  `json:"primary_color"`
	SecondaryColor *string `json:"secondary_color,omitempty"`

	// Domain is set for the platform tenant and for organizations that own a
	// domain. CustomDomain and Subdomain describe how the tenant was resolved.
	Domain       *string `json:"domain,omitempty"`
	CustomDomain *string `json:"custom_domain,omitempty"`
	Subdomain    *string `json:"subdomain,omitempty"`

	EnabledModules []string       `json:"enabled_modules"`
	Settings       map[string]any `json:"settings"`
	Tier           Tier           `json:"tier"`
}

// IsDefault reports whether c is the platform tenant.
func (c *Config) IsDefault() bool {
	return c != nil && c.ID == DefaultTenantID
}

// DefaultModules returns the module set a plain organization starts with.
func DefaultModules() []string {
	return []string{"admin", "crm", "listening", "mediabuying", "analytics", "builder"}
}

// DefaultConfig returns the platform tenant served for base domains and
// whenever resolution degrades. OrganizationID is always empty.
func DefaultConfig() *Config {
	return &Config{
		ID:             DefaultTenantID,
		Slug:           "spokestack",
		Name:           "SpokeStack",
		PrimaryColor:   DefaultPrimaryColor,
		SecondaryColor: ptr(DefaultSecondaryColor),
		Domain:         ptr("spokestack.io"),
		EnabledModules: DefaultModules(),
		Settings:       map[string]any{},
		Tier:           TierPro,
	}
}

// ParseTier maps a stored tier value (FREE, PRO, ENTERPRISE, any case) to a Tier.
// Unknown values map to TierPro.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return TierFree
	case "enterprise":
		return TierEnterprise
	default:
		return TierPro
	}
}

func ptr[T any](v T) *T {
	return &v
}

// nonEmpty returns nil for blank strings so optional columns stay optional.
func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// cloneModules copies a module list, dropping blanks and duplicates while
// keeping the stored order.
func cloneModules(modules []string) []string {
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		m = strings.TrimSpace(m)
		if m == "" || slices.Contains(out, m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func cloneSettings(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		out[k] = v
	}
	return out
}
