package tenant

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agencyhq/tenancy/pkg/logger"
	"github.com/agencyhq/tenancy/pkg/statemachine"
)

// DefaultTokenPrefix is prepended to domain verification tokens.
const DefaultTokenPrefix = "spokestack-verify-"

// tokenLength is the number of hex characters kept from the HMAC.
const tokenLength = 16

// DomainState is the lifecycle state of a client instance's custom domain.
type DomainState string

const (
	StateUnclaimed DomainState = "unclaimed"
	StatePending   DomainState = "pending"
	StateVerified  DomainState = "verified"
)

// Name implements statemachine.State.
func (s DomainState) Name() string { return string(s) }

type domainEvent string

const (
	eventClaim  domainEvent = "claim"
	eventVerify domainEvent = "verify"
)

func (e domainEvent) Name() string { return string(e) }

// domainChange is the payload fired with a domain event.
type domainChange struct {
	instanceID string
	update     DomainUpdate
}

// StateOf derives the domain state of an instance.
func StateOf(ci *ClientInstance) DomainState {
	switch {
	case ci == nil || nonEmpty(ci.CustomDomain) == nil:
		return StateUnclaimed
	case ci.CustomDomainVerified:
		return StateVerified
	default:
		return StatePending
	}
}

// PendingResult is the outcome of SetPendingCustomDomain.
type PendingResult struct {
	Success           bool   `json:"success"`
	VerificationToken string `json:"verification_token,omitempty"`
}

// DomainClaim describes an instance that has a custom domain, verified or not.
type DomainClaim struct {
	InstanceID        string      `json:"instance_id"`
	OrganizationID    string      `json:"organization_id"`
	Name              string      `json:"name"`
	Slug              string      `json:"slug"`
	Domain            string      `json:"domain"`
	State             DomainState `json:"state"`
	VerifiedAt        *time.Time  `json:"verified_at,omitempty"`
	VerificationToken string      `json:"verification_token,omitempty"`
}

// DomainStats counts custom domain claims.
type DomainStats struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Pending  int `json:"pending"`
}

// DomainVerifier runs the claim and verify lifecycle of custom domains.
type DomainVerifier struct {
	store      DomainStore
	cache      Cache
	secret     []byte
	prefix     string
	now        func() time.Time
	baseDomain string
	parser     *HostParser
	logger     *slog.Logger
	metrics    *Metrics
}

// VerifierOption configures a DomainVerifier.
type VerifierOption func(*DomainVerifier)

// WithTokenSecret sets the HMAC key for verification tokens.
func WithTokenSecret(secret string) VerifierOption {
	return func(v *DomainVerifier) {
		v.secret = []byte(secret)
	}
}

// WithTokenPrefix sets the prefix of verification tokens.
func WithTokenPrefix(prefix string) VerifierOption {
	return func(v *DomainVerifier) {
		if prefix != "" {
			v.prefix = prefix
		}
	}
}

// WithVerifierClock replaces time.Now for verification timestamps.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *DomainVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithBaseDomain sets the domain under which instance subdomains are listed.
func WithBaseDomain(domain string) VerifierOption {
	return func(v *DomainVerifier) {
		if domain != "" {
			v.baseDomain = domain
		}
	}
}

// WithVerifierHostParser sets the parser used to reject platform domains as custom domains.
func WithVerifierHostParser(p *HostParser) VerifierOption {
	return func(v *DomainVerifier) {
		if p != nil {
			v.parser = p
		}
	}
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *DomainVerifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithVerifierMetrics enables prometheus counters.
func WithVerifierMetrics(m *Metrics) VerifierOption {
	return func(v *DomainVerifier) {
		v.metrics = m
	}
}

// NewDomainVerifier creates a verifier. cache must be the cache the Resolver
// reads from, otherwise verified domains keep resolving to stale entries.
func NewDomainVerifier(store DomainStore, cache Cache, opts ...VerifierOption) *DomainVerifier {
	v := &DomainVerifier{
		store:      store,
		cache:      cache,
		prefix:     DefaultTokenPrefix,
		now:        time.Now,
		baseDomain: DefaultBaseDomains()[0],
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.cache == nil {
		v.cache = NewNoOpCache()
	}
	if v.parser == nil {
		v.parser = NewHostParser(nil)
	}
	v.logger = v.logger.With(logger.Component("tenant.verifier"))
	return v
}

// VerificationToken returns the token an instance must publish to prove
// ownership of its claimed domain. It is stable per instance.
func (v *DomainVerifier) VerificationToken(instanceID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(instanceID))
	return v.prefix + hex.EncodeToString(mac.Sum(nil))[:tokenLength]
}

// ClaimDomain records domain as the instance's pending custom domain and
// returns the verification token. The domain does not resolve until verified.
func (v *DomainVerifier) ClaimDomain(ctx context.Context, instanceID, domain string) (token string, err error) {
	defer func() { v.metrics.domainOperation(string(eventClaim), err) }()

	d, err := v.normalize(domain)
	if err != nil {
		return "", err
	}

	ci, err := v.store.GetClientInstance(ctx, instanceID)
	if err != nil {
		return "", fmt.Errorf("get client instance %q: %w", instanceID, err)
	}
	if err := v.checkAvailable(ctx, ci.ID, d); err != nil {
		return "", err
	}

	prev := StateOf(ci)
	if err := v.fire(ctx, ci, eventClaim, DomainUpdate{CustomDomain: &d}); err != nil {
		return "", err
	}

	// A previously verified domain stops resolving right away. The claim is
	// already stored, so a failed invalidation is logged rather than returned;
	// the stale entry expires with the cache TTL. The new domain's cache is
	// left alone: it cannot hold this instance before verification.
	if prev == StateVerified {
		if err := v.invalidateInstance(ctx, ci, *ci.CustomDomain); err != nil {
			v.logger.ErrorContext(ctx, "previous custom domain still cached",
				logger.InstanceID(ci.ID),
				logger.Domain(*ci.CustomDomain),
				logger.Error(err),
			)
		}
	}

	v.logger.InfoContext(ctx, "custom domain claimed",
		logger.InstanceID(ci.ID),
		logger.Domain(d),
	)
	return v.VerificationToken(ci.ID), nil
}

// SetPendingCustomDomain is ClaimDomain reduced to a success flag.
func (v *DomainVerifier) SetPendingCustomDomain(ctx context.Context, instanceID, domain string) PendingResult {
	token, err := v.ClaimDomain(ctx, instanceID, domain)
	if err != nil {
		v.logger.WarnContext(ctx, "custom domain claim rejected",
			logger.InstanceID(instanceID),
			logger.Domain(domain),
			logger.Error(err),
		)
		return PendingResult{}
	}
	return PendingResult{Success: true, VerificationToken: token}
}

// Verify marks the instance's pending domain as verified and invalidates
// every cached tenant for that domain before returning.
func (v *DomainVerifier) Verify(ctx context.Context, instanceID, domain string) (err error) {
	defer func() { v.metrics.domainOperation(string(eventVerify), err) }()

	d, err := v.normalize(domain)
	if err != nil {
		return err
	}

	ci, err := v.store.GetClientInstance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("get client instance %q: %w", instanceID, err)
	}

	state := StateOf(ci)
	if state == StateUnclaimed {
		return ErrNoPendingClaim
	}
	if *ci.CustomDomain != d {
		return fmt.Errorf("%w: claimed %q, got %q", ErrDomainMismatch, *ci.CustomDomain, d)
	}
	if err := v.checkAvailable(ctx, ci.ID, d); err != nil {
		return err
	}

	now := v.now()
	if err := v.fire(ctx, ci, eventVerify, DomainUpdate{CustomDomain: &d, Verified: true, VerifiedAt: &now}); err != nil {
		return err
	}

	if err := v.invalidateInstance(ctx, ci, d); err != nil {
		return err
	}

	v.logger.InfoContext(ctx, "custom domain verified",
		logger.InstanceID(ci.ID),
		logger.Domain(d),
	)
	return nil
}

// VerifyCustomDomain is Verify reduced to a success flag.
func (v *DomainVerifier) VerifyCustomDomain(ctx context.Context, instanceID, domain string) bool {
	if err := v.Verify(ctx, instanceID, domain); err != nil {
		v.logger.WarnContext(ctx, "custom domain verification rejected",
			logger.InstanceID(instanceID),
			logger.Domain(domain),
			logger.Error(err),
		)
		return false
	}
	return true
}

// ListRegisteredDomains returns every hostname the platform serves: instance
// subdomains, verified custom domains of active instances and organization
// domains. The result is sorted and free of duplicates.
func (v *DomainVerifier) ListRegisteredDomains(ctx context.Context) ([]string, error) {
	var (
		instances []ClientInstance
		orgs      []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		instances, err = v.store.ListActiveClientInstances(gctx)
		if err != nil {
			return fmt.Errorf("list active client instances: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		orgs, err = v.store.ListOrganizationDomains(gctx)
		if err != nil {
			return fmt.Errorf("list organization domains: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	domains := make([]string, 0, len(instances)*2+len(orgs))
	for _, ci := range instances {
		domains = append(domains, ci.Slug+"."+v.baseDomain)
		if StateOf(&ci) == StateVerified {
			domains = append(domains, *ci.CustomDomain)
		}
	}
	domains = append(domains, orgs...)

	slices.Sort(domains)
	return slices.Compact(domains), nil
}

// DomainClaims lists instances with a custom domain, newest first.
func (v *DomainVerifier) DomainClaims(ctx context.Context) ([]DomainClaim, error) {
	instances, err := v.store.ListClientInstancesWithDomain(ctx)
	if err != nil {
		return nil, fmt.Errorf("list client instances with domain: %w", err)
	}

	claims := make([]DomainClaim, 0, len(instances))
	for _, ci := range instances {
		state := StateOf(&ci)
		if state == StateUnclaimed {
			continue
		}
		claim := DomainClaim{
			InstanceID:     ci.ID,
			OrganizationID: ci.OrganizationID,
			Name:           ci.Name,
			Slug:           ci.Slug,
			Domain:         *ci.CustomDomain,
			State:          state,
			VerifiedAt:     ci.CustomDomainVerifiedAt,
		}
		if state == StatePending {
			claim.VerificationToken = v.VerificationToken(ci.ID)
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// Stats counts custom domain claims by state.
func (v *DomainVerifier) Stats(ctx context.Context) (DomainStats, error) {
	claims, err := v.DomainClaims(ctx)
	if err != nil {
		return DomainStats{}, err
	}

	stats := DomainStats{Total: len(claims)}
	for _, c := range claims {
		switch c.State {
		case StateVerified:
			stats.Verified++
		case StatePending:
			stats.Pending++
		}
	}
	return stats, nil
}

// machine returns the domain lifecycle seeded from the instance's stored
// state. Transitions that change the record persist it in their action, so
// the state only advances once the store accepted the write. Verify on a
// verified domain is allowed so that a verification whose cache
// invalidation failed can be retried.
func (v *DomainVerifier) machine(ci *ClientInstance) statemachine.StateMachine {
	persist := statemachine.WithAction(v.persist)
	return statemachine.MustNew(StateOf(ci),
		statemachine.WithTransition(StateUnclaimed, StatePending, eventClaim, persist),
		statemachine.WithTransition(StatePending, StatePending, eventClaim, persist),
		statemachine.WithTransition(StateVerified, StatePending, eventClaim, persist),
		statemachine.WithTransition(StatePending, StateVerified, eventVerify, persist),
		statemachine.WithTransition(StateVerified, StateVerified, eventVerify),
	)
}

func (v *DomainVerifier) fire(ctx context.Context, ci *ClientInstance, ev domainEvent, update DomainUpdate) error {
	err := v.machine(ci).Fire(ctx, ev, domainChange{instanceID: ci.ID, update: update})
	if statemachine.IsNoTransitionAvailableError(err) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, StateOf(ci))
	}
	return err
}

func (v *DomainVerifier) persist(ctx context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	change, ok := data.(domainChange)
	if !ok {
		return fmt.Errorf("%w: unexpected payload %T", ErrInvalidTransition, data)
	}
	if err := v.store.UpdateClientInstanceDomain(ctx, change.instanceID, change.update); err != nil {
		return fmt.Errorf("update client instance %q: %w", change.instanceID, err)
	}
	return nil
}

func (v *DomainVerifier) normalize(domain string) (string, error) {
	d, ok := NormalizeDomain(domain)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	// Platform hostnames classify as default or subdomain and can never be
	// served as a custom domain.
	if v.parser.Classify(d).Kind != KindCustom {
		return "", fmt.Errorf("%w: %q is a platform domain", ErrInvalidDomain, d)
	}
	return d, nil
}

// checkAvailable fails when another instance already serves d.
func (v *DomainVerifier) checkAvailable(ctx context.Context, instanceID, d string) error {
	other, err := v.store.FindClientInstanceByCustomDomain(ctx, d)
	switch {
	case errors.Is(err, ErrTenantNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("find client instance by domain %q: %w", d, err)
	case other != nil && other.ID != instanceID:
		return fmt.Errorf("%w: %q", ErrDomainTaken, d)
	default:
		return nil
	}
}

// invalidateInstance drops cached tenants for domain and the instance's
// subdomain, whose projection carries the verified custom domain.
func (v *DomainVerifier) invalidateInstance(ctx context.Context, ci *ClientInstance, domain string) error {
	if err := invalidate(ctx, v.cache, v.metrics, v.logger, domain); err != nil {
		return err
	}
	key := Host{Kind: KindSubdomain, Identifier: ci.Slug}.CacheKey()
	if err := v.cache.Delete(ctx, key); err != nil {
		return errors.Join(ErrCacheInvalidation, err)
	}
	return nil
}
