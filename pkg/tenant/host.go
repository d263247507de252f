package tenant

import (
	"cmp"
	"net"
	"regexp"
	"slices"
	"strings"
)

// Kind classifies how a hostname maps to a tenant.
type Kind string

const (
	KindDefault   Kind = "default"
	KindSubdomain Kind = "subdomain"
	KindCustom    Kind = "custom"
)

const (
	// maxLabelLength and maxHostLength follow DNS limits.
	maxLabelLength = 63
	maxHostLength  = 253
)

// labelPattern ensures DNS-safe labels: alphanumeric start, allows hyphens and underscores.
var labelPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// DefaultBaseDomains are the platform's own apex domains.
func DefaultBaseDomains() []string {
	return []string{"spokestack.io", "spokestack.vercel.app", "localhost"}
}

// DefaultReservedLabels are subdomains of a base domain that serve the platform itself.
func DefaultReservedLabels() []string {
	return []string{"www", "app", "api"}
}

// Host is the classification of a request hostname.
type Host struct {
	Kind       Kind
	Identifier string
}

var defaultHost = Host{Kind: KindDefault, Identifier: DefaultTenantID}

// CacheKey returns the key used for the tenant cache: "{kind}:{identifier}".
func (h Host) CacheKey() string {
	return string(h.Kind) + ":" + h.Identifier
}

// HostParser classifies hostnames against a fixed list of base domains.
// It is safe for concurrent use.
type HostParser struct {
	baseDomains []string
	reserved    map[string]struct{}
}

// HostParserOption configures a HostParser.
type HostParserOption func(*HostParser)

// WithReservedLabels replaces the labels that classify as the default tenant
// when used as a subdomain of a base domain.
func WithReservedLabels(labels ...string) HostParserOption {
	return func(p *HostParser) {
		p.reserved = make(map[string]struct{}, len(labels))
		for _, l := range labels {
			if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
				p.reserved[l] = struct{}{}
			}
		}
	}
}

// NewHostParser creates a parser for the given base domains.
// DefaultBaseDomains are used when none are given.
func NewHostParser(baseDomains []string, opts ...HostParserOption) *HostParser {
	p := &HostParser{}
	for _, d := range baseDomains {
		if d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), "."); d != "" && !slices.Contains(p.baseDomains, d) {
			p.baseDomains = append(p.baseDomains, d)
		}
	}
	if len(p.baseDomains) == 0 {
		p.baseDomains = DefaultBaseDomains()
	}
	// Longest first, so "eu.platform.io" wins over "platform.io".
	slices.SortStableFunc(p.baseDomains, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})

	WithReservedLabels(DefaultReservedLabels()...)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BaseDomains returns the configured base domains, most specific first.
func (p *HostParser) BaseDomains() []string {
	return slices.Clone(p.baseDomains)
}

// Classify maps a Host header value to a tenant classification.
// Malformed or unrecognized input classifies as KindDefault; it never panics.
func (p *HostParser) Classify(host string) Host {
	hostname, ok := normalizeHostname(host)
	if !ok {
		return defaultHost
	}

	for _, base := range p.baseDomains {
		if hostname == base || hostname == "www."+base {
			return defaultHost
		}
		if label, found := strings.CutSuffix(hostname, "."+base); found {
			if _, reserved := p.reserved[label]; reserved {
				return defaultHost
			}
			return Host{Kind: KindSubdomain, Identifier: label}
		}
	}

	return Host{Kind: KindCustom, Identifier: hostname}
}

// NormalizeDomain lowercases a domain and strips any port and trailing dot.
// It reports false when the result is not a valid DNS hostname.
func NormalizeDomain(domain string) (string, bool) {
	return normalizeHostname(domain)
}

func normalizeHostname(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return "", false
	}

	// Bracketed IPv6 literal, with or without port.
	if strings.HasPrefix(host, "[") {
		return "", false
	}
	if idx := strings.LastIndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}
	host = strings.TrimSuffix(host, ".")

	if host == "" || len(host) > maxHostLength || net.ParseIP(host) != nil {
		return "", false
	}

	for _, label := range strings.Split(host, ".") {
		if len(label) == 0 || len(label) > maxLabelLength || !labelPattern.MatchString(label) {
			return "", false
		}
	}

	return host, true
}
