package core

import (
	"strings"

	"github.com/JonMunkholm/crm/internal/company"
	"github.com/JonMunkholm/crm/internal/milestone"
)

// MsgNameRequired is the row error for a record without a company name.
const MsgNameRequired = "Company name is required"

// Candidate is a normalized import row: a resolved name plus optional
// values. Empty cells are nil so they never overwrite stored data.
type Candidate struct {
	Name     string
	Website  *string
	Email    *string
	Phone    *string
	Address  *string
	Industry *string
	Notes    *string

	// Milestone is the raw trimmed value, nil when the cell was empty.
	// Validity is decided by CreatePatch and UpdatePatch.
	Milestone *string
}

// Normalize trims every field of rec and resolves it into a Candidate.
// A record without a name returns a RowError for row.
func Normalize(row int, rec Record) (Candidate, *RowError) {
	name := strings.TrimSpace(rec[ColName])
	if name == "" {
		return Candidate{}, &RowError{Row: row, Message: MsgNameRequired}
	}
	return Candidate{
		Name:      name,
		Website:   optional(rec, ColWebsite),
		Email:     optional(rec, ColEmail),
		Phone:     optional(rec, ColPhone),
		Address:   optional(rec, ColAddress),
		Industry:  optional(rec, ColIndustry),
		Notes:     optional(rec, ColNotes),
		Milestone: optional(rec, ColMilestone),
	}, nil
}

// CreatePatch builds the patch for a new company. An absent or unknown
// milestone becomes the default.
func (c Candidate) CreatePatch() company.Patch {
	p := c.basePatch()
	m := milestone.Default()
	if c.Milestone != nil && milestone.IsValid(*c.Milestone) {
		m = milestone.Milestone(*c.Milestone)
	}
	p.Milestone = &m
	return p
}

// UpdatePatch builds the sparse patch for an existing company. An unknown
// milestone is dropped and the stored one is kept.
func (c Candidate) UpdatePatch() company.Patch {
	p := c.basePatch()
	if c.Milestone != nil && milestone.IsValid(*c.Milestone) {
		m := milestone.Milestone(*c.Milestone)
		p.Milestone = &m
	}
	return p
}

func (c Candidate) basePatch() company.Patch {
	return company.Patch{
		Name:     c.Name,
		Website:  c.Website,
		Email:    c.Email,
		Phone:    c.Phone,
		Address:  c.Address,
		Industry: c.Industry,
		Notes:    c.Notes,
	}
}

func optional(rec Record, col string) *string {
	v := strings.TrimSpace(rec[col])
	if v == "" {
		return nil
	}
	return &v
}
