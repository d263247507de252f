package tenant

import (
	"context"
	"log/slog"
	"slices"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// Scope is the read-only view of the resolved tenant for one request.
type Scope struct {
	cfg *Config
}

// NewScope wraps cfg. A nil cfg yields the zero Scope, which reports degraded.
func NewScope(cfg *Config) Scope {
	return Scope{cfg: cfg}
}

// Config returns the underlying tenant config. Callers must not modify it.
func (s Scope) Config() *Config {
	return s.cfg
}

// OrganizationID is the scope every tenant-owned data query must filter on.
// It is empty for the platform tenant.
func (s Scope) OrganizationID() string {
	if s.cfg == nil {
		return ""
	}
	return s.cfg.OrganizationID
}

// IsDegraded reports whether the request carries no organization scope,
// which happens for base domains and whenever resolution fell back.
func (s Scope) IsDegraded() bool {
	return s.OrganizationID() == ""
}

// IsWhiteLabeled reports whether the tenant is served from a verified custom domain.
func (s Scope) IsWhiteLabeled() bool {
	return s.cfg != nil && s.cfg.CustomDomain != nil
}

// IsEnterprise reports whether the tenant is on the enterprise tier.
func (s Scope) IsEnterprise() bool {
	return s.cfg != nil && s.cfg.Tier == TierEnterprise
}

// HasModule reports whether module id is enabled for the tenant.
func (s Scope) HasModule(id string) bool {
	return s.cfg != nil && slices.Contains(s.cfg.EnabledModules, id)
}

// Branding is the subset of the tenant config used for theming.
type Branding struct {
	Name           string  `json:"name"`
	Logo           *string `json:"logo,omitempty"`
	LogoMark       *string `json:"logo_mark,omitempty"`
	Favicon        *string `json:"favicon,omitempty"`
	PrimaryColor   string  `json:"primary_color"`
	SecondaryColor *string `json:"secondary_color,omitempty"`
}

// Branding returns the tenant's theming values.
func (s Scope) Branding() Branding {
	if s.cfg == nil {
		return Branding{}
	}
	return Branding{
		Name:           s.cfg.Name,
		Logo:           s.cfg.Logo,
		LogoMark:       s.cfg.LogoMark,
		Favicon:        s.cfg.Favicon,
		PrimaryColor:   s.cfg.PrimaryColor,
		SecondaryColor: s.cfg.SecondaryColor,
	}
}

// WithTenant adds the resolved tenant to the context.
func WithTenant(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, Scope{cfg: cfg})
}

// FromContext retrieves the tenant scope from the context.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(contextKey{}).(Scope)
	if !ok || s.cfg == nil {
		return Scope{}, false
	}
	return s, true
}

// MustFromContext retrieves the tenant scope from the context.
// It panics with ErrNoTenantInContext when the middleware was not installed.
func MustFromContext(ctx context.Context) Scope {
	s, ok := FromContext(ctx)
	if !ok {
		panic(ErrNoTenantInContext)
	}
	return s
}

// LoggerExtractor returns a logger ContextExtractor that adds the tenant slug
// and organization id to every record logged with a tenant-scoped context.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		s, ok := FromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return slog.Group("tenant",
			slog.String("slug", s.cfg.Slug),
			slog.String("organization_id", s.cfg.OrganizationID),
		), true
	}
}
