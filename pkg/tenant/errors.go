package tenant

import "errors"

var (
	// ErrTenantNotFound is returned by stores when no record matches.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrNoTenantInContext is returned when no tenant is found in context.
	ErrNoTenantInContext = errors.New("no tenant in context")

	// ErrTenantUnavailable is returned when a route needs an organization scope
	// but the request resolved to the platform tenant.
	ErrTenantUnavailable = errors.New("tenant unavailable")

	// ErrInvalidDomain is returned when a domain cannot be claimed as a custom domain.
	ErrInvalidDomain = errors.New("invalid custom domain")

	// ErrNoPendingClaim is returned when verifying an instance without a claimed domain.
	ErrNoPendingClaim = errors.New("no pending domain claim")

	// ErrDomainMismatch is returned when the verified domain differs from the claimed one.
	ErrDomainMismatch = errors.New("domain does not match pending claim")

	// ErrDomainTaken is returned when another instance already serves the domain.
	ErrDomainTaken = errors.New("domain is already verified for another instance")

	// ErrInvalidRecord is returned when saving a record without a slug.
	ErrInvalidRecord = errors.New("invalid tenant record")

	// ErrCacheInvalidation is returned when cached tenants could not be removed.
	ErrCacheInvalidation = errors.New("tenant cache invalidation failed")

	// ErrInvalidTransition is returned when a domain lifecycle event is not allowed.
	ErrInvalidTransition = errors.New("invalid domain state transition")
)
