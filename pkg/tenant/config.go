package tenant

import (
	"slices"
	"time"
)

// ResolverConfig holds the environment settings for resolution and domain verification.
type ResolverConfig struct {
	BaseDomains        []string      `env:"TENANT_BASE_DOMAINS" envDefault:"spokestack.io,spokestack.vercel.app,localhost" envSeparator:","`
	PrimaryDomain      string        `env:"TENANT_PRIMARY_DOMAIN"`                      // PrimaryDomain hosts instance subdomains in domain listings.
	ReservedLabels     []string      `env:"TENANT_RESERVED_LABELS" envDefault:"www,app,api" envSeparator:","`
	CacheTTL           time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`           // CacheTTL is how long a resolved tenant is cached.
	MissCacheTTL       time.Duration `env:"TENANT_MISS_CACHE_TTL" envDefault:"30s"`     // MissCacheTTL is how long an unmatched host is cached.
	CacheSize          int           `env:"TENANT_CACHE_SIZE" envDefault:"1000"`
	LookupTimeout      time.Duration `env:"TENANT_LOOKUP_TIMEOUT" envDefault:"3s"`
	VerificationSecret string        `env:"TENANT_VERIFICATION_SECRET"`
	TokenPrefix        string        `env:"TENANT_TOKEN_PREFIX" envDefault:"spokestack-verify-"`
}

// HostParser builds the parser described by the config. PrimaryDomain is
// always a base domain, so every listed subdomain also resolves.
func (c ResolverConfig) HostParser() *HostParser {
	opts := []HostParserOption{}
	if len(c.ReservedLabels) > 0 {
		opts = append(opts, WithReservedLabels(c.ReservedLabels...))
	}
	bases := c.BaseDomains
	if c.PrimaryDomain != "" {
		bases = append(slices.Clone(bases), c.PrimaryDomain)
	}
	return NewHostParser(bases, opts...)
}

// BaseDomain returns the domain instance subdomains are published under:
// PrimaryDomain when set, otherwise the first usable entry of BaseDomains in
// the order given.
func (c ResolverConfig) BaseDomain() string {
	if d, ok := NormalizeDomain(c.PrimaryDomain); ok {
		return d
	}
	for _, d := range c.BaseDomains {
		if d, ok := NormalizeDomain(d); ok {
			return d
		}
	}
	return DefaultBaseDomains()[0]
}
