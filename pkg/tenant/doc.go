// Package tenant maps inbound request hostnames to a resolved tenant identity
// and manages the custom domain lifecycle that feeds that mapping.
//
// Every request passes through the Resolver once. The resolved Config carries
// branding, enabled modules, billing tier and, most importantly, the
// organization id that scopes every downstream data query.
//
// # Architecture
//
// The package is built around four pieces:
//
//  1. HostParser classifies a Host header as the platform itself (KindDefault),
//     a subdomain of a base domain (KindSubdomain) or a custom domain (KindCustom).
//  2. Resolver looks the classification up in a Cache and, on miss, in a Store.
//     A client instance always wins over an organization. Anything that matches
//     nothing, or fails, resolves to the platform tenant whose OrganizationID is
//     empty.
//  3. Middleware stores the result in the request context as a Scope.
//  4. DomainVerifier moves a client instance's custom domain through
//     unclaimed, pending and verified, and invalidates the cache on verify.
//
// Only verified domains of active instances are ever matched. Stores enforce
// that in the query itself, see Store.FindClientInstanceByCustomDomain.
//
// # Usage
//
//	import "github.com/agencyhq/tenancy/pkg/tenant"
//
//	resolver := tenant.NewResolver(store,
//		tenant.WithCacheTTL(5*time.Minute),
//		tenant.WithLogger(log),
//	)
//
//	router.Use(tenant.Middleware(resolver, tenant.WithSkipPaths("/healthz", "/metrics")))
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		scope := tenant.MustFromContext(r.Context())
//		if !scope.HasModule("crm") {
//			http.NotFound(w, r)
//			return
//		}
//		rows := loadContacts(r.Context(), scope.OrganizationID())
//		// ...
//	}
//
// Routes that read tenant-owned data should be wrapped with RequireOrganization,
// which rejects requests that resolved to the platform tenant.
//
// # Domain verification
//
//	verifier := tenant.NewDomainVerifier(store, resolver.Cache(),
//		tenant.WithTokenSecret(secret),
//	)
//
//	token, err := verifier.ClaimDomain(ctx, instanceID, "portal.acme.com")
//	// the customer publishes token, then:
//	err = verifier.Verify(ctx, instanceID, "portal.acme.com")
//
// Verify returns only after every cached entry for the domain is gone, so the
// next request for it resolves to the instance.
//
// # Caching
//
// NewInMemoryCache is a per-process LRU with TTL. NewRedisCache shares
// entries and invalidations between replicas. Entries are keyed by
// Host.CacheKey, "{kind}:{identifier}".
package tenant
