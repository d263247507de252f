// Package seed loads organizations and client instances from a YAML file into
// a tenant store. tenantctl uses it against Postgres; tenantd uses it to fill
// the in-memory store in development.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agencyhq/tenancy/pkg/tenant"
)

var (
	ErrReadFile      = errors.New("seed: failed to read file")
	ErrDecode        = errors.New("seed: failed to decode yaml")
	ErrUnknownParent = errors.New("seed: instance references unknown organization")
)

// File is the seed document:
//
//	organizations:
//	  - id: org-1
//	    slug: agency
//	    name: Agency
//	    domain: agency.com
//	instances:
//	  - id: inst-1
//	    organization_id: org-1
//	    slug: acme
//	    name: Acme
//	    active: true
//	    custom_domain: portal.acme.com
//	    custom_domain_verified: true
type File struct {
	Organizations []tenant.Organization   `yaml:"organizations"`
	Instances     []tenant.ClientInstance `yaml:"instances"`
}

// Saver is implemented by tenant.MemoryStore and pgstore.Store.
type Saver interface {
	SaveOrganization(ctx context.Context, org *tenant.Organization) error
	SaveClientInstance(ctx context.Context, ci *tenant.ClientInstance) error
}

// Result counts the records written by Apply.
type Result struct {
	Organizations int `json:"organizations"`
	Instances     int `json:"instances"`
}

// Load reads a seed file from path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrReadFile, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a seed document. Unknown fields are rejected so that typos do
// not silently drop data.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrDecode, err)
	}
	return &file, nil
}

// Apply writes organizations first, then instances. Instances must reference
// an organization from the same file by id. Verified domains without a
// timestamp are stamped with now.
func Apply(ctx context.Context, s Saver, file *File, now func() time.Time) (Result, error) {
	var res Result
	if file == nil {
		return res, nil
	}
	if now == nil {
		now = time.Now
	}

	known := make(map[string]struct{}, len(file.Organizations))
	for i := range file.Organizations {
		org := &file.Organizations[i]
		if err := s.SaveOrganization(ctx, org); err != nil {
			return res, fmt.Errorf("seed organization %q: %w", org.Slug, err)
		}
		known[org.ID] = struct{}{}
		res.Organizations++
	}

	for i := range file.Instances {
		ci := &file.Instances[i]
		if _, ok := known[ci.OrganizationID]; !ok {
			return res, fmt.Errorf("%w: instance %q, organization %q", ErrUnknownParent, ci.Slug, ci.OrganizationID)
		}
		if ci.CustomDomainVerified && ci.CustomDomainVerifiedAt == nil {
			t := now()
			ci.CustomDomainVerifiedAt = &t
		}
		if err := s.SaveClientInstance(ctx, ci); err != nil {
			return res, fmt.Errorf("seed instance %q: %w", ci.Slug, err)
		}
		res.Instances++
	}

	return res, nil
}
