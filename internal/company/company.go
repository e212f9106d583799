// Package company defines the reconciled company record and the store
// contract the import and export paths are written against.
package company

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/JonMunkholm/crm/internal/milestone"
)

// NoIndustryLabel is the bucket used for companies without an industry when
// grouping and ordering exports.
const NoIndustryLabel = "No Industry Specified"

var (
	// ErrNotFound is returned when no company matches the lookup.
	ErrNotFound = errors.New("company not found")

	// ErrDuplicateKey is returned by Create when the name is already taken,
	// typically because a concurrent writer created it first.
	ErrDuplicateKey = errors.New("duplicate key: company name already exists")
)

// Company is a uniquely named organization record.
type Company struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Website  *string `json:"website,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Address  *string `json:"address,omitempty"`
	Industry *string `json:"industry,omitempty"`

	// PrimaryContactID is a weak back-reference to a contact record. It is
	// never owned by the company and may be nil.
	PrimaryContactID *int64 `json:"primary_contact_id,omitempty"`

	Milestone milestone.Milestone `json:"milestone"`
	Notes     *string             `json:"notes,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// IndustryBucket returns the grouping key for exports: the trimmed industry,
// or NoIndustryLabel when it is absent or blank.
func (c Company) IndustryBucket() string {
	if c.Industry == nil {
		return NoIndustryLabel
	}
	if s := strings.TrimSpace(*c.Industry); s != "" {
		return s
	}
	return NoIndustryLabel
}

// Patch carries candidate values for a create or update. A nil field is
// absent and leaves the stored value untouched.
type Patch struct {
	Name      string
	Website   *string
	Email     *string
	Phone     *string
	Address   *string
	Industry  *string
	Notes     *string
	Milestone *milestone.Milestone
}

// ApplyTo overwrites the fields of c for which the patch carries a value.
// Name and timestamps are never touched.
func (p Patch) ApplyTo(c *Company) {
	if p.Website != nil {
		c.Website = p.Website
	}
	if p.Email != nil {
		c.Email = p.Email
	}
	if p.Phone != nil {
		c.Phone = p.Phone
	}
	if p.Address != nil {
		c.Address = p.Address
	}
	if p.Industry != nil {
		c.Industry = p.Industry
	}
	if p.Notes != nil {
		c.Notes = p.Notes
	}
	if p.Milestone != nil {
		c.Milestone = *p.Milestone
	}
}

// Filter selects companies for a scan. Zero value matches everything.
type Filter struct {
	// Milestone restricts to an exact milestone when set.
	Milestone *milestone.Milestone

	// Search is a case-insensitive substring matched against name,
	// industry and email.
	Search string
}

// IsZero reports whether the filter matches every company.
func (f Filter) IsZero() bool {
	return f.Milestone == nil && strings.TrimSpace(f.Search) == ""
}

// Matches applies the filter to c in memory. Store implementations that
// filter in their query language must agree with this.
func (f Filter) Matches(c Company) bool {
	if f.Milestone != nil && c.Milestone != *f.Milestone {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Name), q) {
		return true
	}
	for _, v := range []*string{c.Industry, c.Email} {
		if v != nil && strings.Contains(strings.ToLower(*v), q) {
			return true
		}
	}
	return false
}

// Less orders companies by (industry bucket, name) using byte-wise string
// comparison so the result does not depend on locale.
func Less(a, b Company) bool {
	ab, bb := a.IndustryBucket(), b.IndustryBucket()
	if ab != bb {
		return ab < bb
	}
	return a.Name < b.Name
}

// Store is the persistence contract used by the reconciliation engine, the
// exporter and the interactive update path. Each call is its own atomic unit;
// no transaction spans multiple calls.
type Store interface {
	// FindByName returns the company with the exact name or ErrNotFound.
	FindByName(ctx context.Context, name string) (Company, error)

	// Get returns the company with the given id or ErrNotFound.
	Get(ctx context.Context, id int64) (Company, error)

	// Create inserts a new company. p.Name and p.Milestone must be set.
	// Returns ErrDuplicateKey if the name already exists.
	Create(ctx context.Context, p Patch) (Company, error)

	// Update applies p to c sparsely and returns the stored result.
	Update(ctx context.Context, c Company, p Patch) (Company, error)

	// Scan calls fn for every company matching f in (industry bucket, name)
	// order. Iteration stops at the first error returned by fn.
	Scan(ctx context.Context, f Filter, fn func(Company) error) error

	// CountByMilestone returns the number of companies per milestone.
	CountByMilestone(ctx context.Context) (map[milestone.Milestone]int64, error)

	// DeleteAll removes every company and returns the number removed.
	DeleteAll(ctx context.Context) (int64, error)
}
