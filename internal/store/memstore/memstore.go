// Package memstore provides an in-memory company.Store. It backs tests and
// dry-run imports and mirrors the semantics of the Postgres store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/crm/internal/company"
	"github.com/JonMunkholm/crm/internal/milestone"
)

// Store is a mutex-guarded map of companies keyed by id with a name index.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]company.Company
	byName map[string]int64

	// Now returns the time used for CreatedAt/UpdatedAt. Defaults to time.Now.
	Now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:   make(map[int64]company.Company),
		byName: make(map[string]int64),
		Now:    time.Now,
	}
}

var _ company.Store = (*Store)(nil)

// FindByName implements company.Store.
func (s *Store) FindByName(ctx context.Context, name string) (company.Company, error) {
	if err := ctx.Err(); err != nil {
		return company.Company{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[name]
	if !ok {
		return company.Company{}, company.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

// Get implements company.Store.
func (s *Store) Get(ctx context.Context, id int64) (company.Company, error) {
	if err := ctx.Err(); err != nil {
		return company.Company{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return company.Company{}, company.ErrNotFound
	}
	return clone(c), nil
}

// Create implements company.Store.
func (s *Store) Create(ctx context.Context, p company.Patch) (company.Company, error) {
	if err := ctx.Err(); err != nil {
		return company.Company{}, err
	}
	if p.Name == "" {
		return company.Company{}, fmt.Errorf("create company: name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[p.Name]; exists {
		return company.Company{}, fmt.Errorf("create company %q: %w", p.Name, company.ErrDuplicateKey)
	}

	now := s.now()
	s.nextID++
	c := company.Company{
		ID:        s.nextID,
		Name:      p.Name,
		Milestone: milestone.Default(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.ApplyTo(&c)
	c = clone(c) // detach from the caller's patch pointers
	if !c.Milestone.Valid() {
		return company.Company{}, fmt.Errorf("create company %q: %w", p.Name, milestone.ErrInvalid)
	}

	s.byID[c.ID] = c
	s.byName[c.Name] = c.ID
	return clone(c), nil
}

// Update implements company.Store.
func (s *Store) Update(ctx context.Context, c company.Company, p company.Patch) (company.Company, error) {
	if err := ctx.Err(); err != nil {
		return company.Company{}, err
	}
	if p.Milestone != nil && !p.Milestone.Valid() {
		return company.Company{}, fmt.Errorf("update company %d: %w", c.ID, milestone.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[c.ID]
	if !ok {
		return company.Company{}, company.ErrNotFound
	}
	p.ApplyTo(&stored)
	stored = clone(stored)
	stored.UpdatedAt = s.now()
	s.byID[stored.ID] = stored
	return clone(stored), nil
}

// Scan implements company.Store. Matching rows are snapshotted under the read
// lock so fn may call back into the store.
func (s *Store) Scan(ctx context.Context, f company.Filter, fn func(company.Company) error) error {
	s.mu.RLock()
	matched := make([]company.Company, 0, len(s.byID))
	for _, c := range s.byID {
		if f.Matches(c) {
			matched = append(matched, clone(c))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return company.Less(matched[i], matched[j]) })

	for _, c := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// CountByMilestone implements company.Store.
func (s *Store) CountByMilestone(ctx context.Context) (map[milestone.Milestone]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[milestone.Milestone]int64)
	for _, c := range s.byID {
		counts[c.Milestone]++
	}
	return counts, nil
}

// DeleteAll implements company.Store.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.byID))
	s.byID = make(map[int64]company.Company)
	s.byName = make(map[string]int64)
	return n, nil
}

// Len returns the number of stored companies.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// clone copies pointer fields so neither patches nor returned values share
// memory with stored state.
func clone(c company.Company) company.Company {
	c.Website = copyStr(c.Website)
	c.Email = copyStr(c.Email)
	c.Phone = copyStr(c.Phone)
	c.Address = copyStr(c.Address)
	c.Industry = copyStr(c.Industry)
	c.Notes = copyStr(c.Notes)
	if c.PrimaryContactID != nil {
		id := *c.PrimaryContactID
		c.PrimaryContactID = &id
	}
	return c
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
