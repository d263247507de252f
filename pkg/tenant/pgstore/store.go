// Package pgstore implements tenant.DomainStore on Postgres using pgx.
//
// The schema lives in the top-level migrations package.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agencyhq/tenancy/pkg/pg"
	"github.com/agencyhq/tenancy/pkg/tenant"
)

// ErrNilDB is returned by New when no database handle is given.
var ErrNilDB = errors.New("pgstore: db is required")

// DB is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes client instances and organizations.
type Store struct {
	db DB
}

var _ tenant.DomainStore = (*Store)(nil)

// New creates a store; it assumes migrations already ran.
func New(db DB) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &Store{db: db}, nil
}

const instanceColumns = `id, organization_id, slug, name, logo, logo_mark, favicon,
	primary_color, secondary_color, enabled_modules, settings, tier, is_active,
	custom_domain, custom_domain_verified, custom_domain_verified_at, created_at`

const organizationColumns = `id, slug, name, logo, logo_mark, favicon, domain,
	COALESCE(primary_color, ''), COALESCE(secondary_color, ''),
	enabled_modules, settings, tier, created_at`

// FindClientInstanceByCustomDomain matches active instances whose domain is verified.
func (s *Store) FindClientInstanceByCustomDomain(ctx context.Context, domain string) (*tenant.ClientInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM client_instances
		WHERE custom_domain = $1 AND custom_domain_verified AND is_active`
	return s.getInstance(ctx, query, domain)
}

// FindClientInstanceBySlug matches active instances.
func (s *Store) FindClientInstanceBySlug(ctx context.Context, slug string) (*tenant.ClientInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM client_instances WHERE slug = $1 AND is_active`
	return s.getInstance(ctx, query, slug)
}

func (s *Store) GetClientInstance(ctx context.Context, id string) (*tenant.ClientInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM client_instances WHERE id = $1`
	return s.getInstance(ctx, query, id)
}

func (s *Store) FindOrganizationByDomain(ctx context.Context, domain string) (*tenant.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE domain = $1`
	return s.getOrganization(ctx, query, domain)
}

func (s *Store) FindOrganizationBySlug(ctx context.Context, slug string) (*tenant.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE slug = $1`
	return s.getOrganization(ctx, query, slug)
}

// UpdateClientInstanceDomain writes the domain fields. A second verified
// instance for the same domain violates a unique index and maps to
// tenant.ErrDomainTaken.
func (s *Store) UpdateClientInstanceDomain(ctx context.Context, id string, update tenant.DomainUpdate) error {
	tag, err := s.db.Exec(ctx, `UPDATE client_instances
		SET custom_domain = $2, custom_domain_verified = $3, custom_domain_verified_at = $4
		WHERE id = $1`,
		id, update.CustomDomain, update.Verified, update.VerifiedAt,
	)
	switch {
	case pg.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s", tenant.ErrDomainTaken, pg.ConstraintName(err))
	case err != nil:
		return fmt.Errorf("update client instance domain: %w", err)
	case tag.RowsAffected() == 0:
		return tenant.ErrTenantNotFound
	}
	return nil
}

func (s *Store) ListActiveClientInstances(ctx context.Context) ([]tenant.ClientInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM client_instances WHERE is_active ORDER BY slug`
	return s.listInstances(ctx, query)
}

// ListClientInstancesWithDomain returns every instance with a domain, newest first.
func (s *Store) ListClientInstancesWithDomain(ctx context.Context) ([]tenant.ClientInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM client_instances
		WHERE custom_domain IS NOT NULL AND custom_domain <> ''
		ORDER BY created_at DESC`
	return s.listInstances(ctx, query)
}

func (s *Store) ListOrganizationDomains(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT domain FROM organizations
		WHERE domain IS NOT NULL AND domain <> '' ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("list organization domains: %w", err)
	}
	domains, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list organization domains: %w", err)
	}
	return domains, nil
}

// SaveClientInstance upserts an instance by id. A missing ID is generated.
func (s *Store) SaveClientInstance(ctx context.Context, ci *tenant.ClientInstance) error {
	if ci == nil || ci.Slug == "" {
		return tenant.ErrInvalidRecord
	}
	if ci.ID == "" {
		ci.ID = uuid.NewString()
	}

	err := s.db.QueryRow(ctx, `INSERT INTO client_instances (
			id, organization_id, slug, name, logo, logo_mark, favicon,
			primary_color, secondary_color, enabled_modules, settings, tier, is_active,
			custom_domain, custom_domain_verified, custom_domain_verified_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			logo = EXCLUDED.logo,
			logo_mark = EXCLUDED.logo_mark,
			favicon = EXCLUDED.favicon,
			primary_color = EXCLUDED.primary_color,
			secondary_color = EXCLUDED.secondary_color,
			enabled_modules = EXCLUDED.enabled_modules,
			settings = EXCLUDED.settings,
			tier = EXCLUDED.tier,
			is_active = EXCLUDED.is_active,
			custom_domain = EXCLUDED.custom_domain,
			custom_domain_verified = EXCLUDED.custom_domain_verified,
			custom_domain_verified_at = EXCLUDED.custom_domain_verified_at
		RETURNING created_at`,
		ci.ID, ci.OrganizationID, ci.Slug, ci.Name, ci.Logo, ci.LogoMark, ci.Favicon,
		ci.PrimaryColor, ci.SecondaryColor, nonNilModules(ci.EnabledModules), nonNilSettings(ci.Settings),
		tierOrDefault(ci.Tier), ci.Active,
		ci.CustomDomain, ci.CustomDomainVerified, ci.CustomDomainVerifiedAt,
	).Scan(&ci.CreatedAt)
	if err != nil {
		return fmt.Errorf("save client instance %q: %w", ci.Slug, err)
	}
	return nil
}

// SaveOrganization upserts an organization by id. A missing ID is generated.
func (s *Store) SaveOrganization(ctx context.Context, org *tenant.Organization) error {
	if org == nil || org.Slug == "" {
		return tenant.ErrInvalidRecord
	}
	if org.ID == "" {
		org.ID = uuid.NewString()
	}

	err := s.db.QueryRow(ctx, `INSERT INTO organizations (
			id, slug, name, logo, logo_mark, favicon, domain,
			primary_color, secondary_color, enabled_modules, settings, tier
		) VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8, ''),NULLIF($9, ''),$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			logo = EXCLUDED.logo,
			logo_mark = EXCLUDED.logo_mark,
			favicon = EXCLUDED.favicon,
			domain = EXCLUDED.domain,
			primary_color = EXCLUDED.primary_color,
			secondary_color = EXCLUDED.secondary_color,
			enabled_modules = EXCLUDED.enabled_modules,
			settings = EXCLUDED.settings,
			tier = EXCLUDED.tier
		RETURNING created_at`,
		org.ID, org.Slug, org.Name, org.Logo, org.LogoMark, org.Favicon, org.Domain,
		org.Theme.PrimaryColor, org.Theme.SecondaryColor,
		nonNilModules(org.EnabledModules), nonNilSettings(org.Settings), tierOrDefault(org.Tier),
	).Scan(&org.CreatedAt)
	if err != nil {
		return fmt.Errorf("save organization %q: %w", org.Slug, err)
	}
	return nil
}

func (s *Store) getInstance(ctx context.Context, query string, arg string) (*tenant.ClientInstance, error) {
	ci, err := scanInstance(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("query client instance: %w", err)
	}
	return &ci, nil
}

func (s *Store) listInstances(ctx context.Context, query string) ([]tenant.ClientInstance, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list client instances: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (tenant.ClientInstance, error) {
		return scanInstance(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list client instances: %w", err)
	}
	return out, nil
}

func (s *Store) getOrganization(ctx context.Context, query string, arg string) (*tenant.Organization, error) {
	var org tenant.Organization
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&org.ID, &org.Slug, &org.Name, &org.Logo, &org.LogoMark, &org.Favicon, &org.Domain,
		&org.Theme.PrimaryColor, &org.Theme.SecondaryColor,
		&org.EnabledModules, &org.Settings, &org.Tier, &org.CreatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("query organization: %w", err)
	}
	return &org, nil
}

func scanInstance(row pgx.Row) (tenant.ClientInstance, error) {
	var ci tenant.ClientInstance
	err := row.Scan(
		&ci.ID, &ci.OrganizationID, &ci.Slug, &ci.Name, &ci.Logo, &ci.LogoMark, &ci.Favicon,
		&ci.PrimaryColor, &ci.SecondaryColor, &ci.EnabledModules, &ci.Settings, &ci.Tier, &ci.Active,
		&ci.CustomDomain, &ci.CustomDomainVerified, &ci.CustomDomainVerifiedAt, &ci.CreatedAt,
	)
	return ci, err
}

func nonNilModules(m []string) []string {
	if m == nil {
		return []string{}
	}
	return m
}

func nonNilSettings(s map[string]any) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return s
}

func tierOrDefault(t string) string {
	if t == "" {
		return "PRO"
	}
	return t
}
