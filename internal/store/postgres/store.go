// Package postgres implements company.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/crm/internal/company"
	"github.com/JonMunkholm/crm/internal/milestone"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store is a company.Store backed by the companies table.
type Store struct {
	db DBTX
}

// New returns a Store using db for all queries.
func New(db DBTX) *Store {
	return &Store{db: db}
}

var _ company.Store = (*Store)(nil)

// EnsureSchema creates the companies table and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const selectColumns = `id, name, website, email, phone, address, industry,
	primary_contact_id, milestone, notes, created_at, updated_at`

// bucketExpr mirrors company.Company.IndustryBucket.
const bucketExpr = `COALESCE(NULLIF(BTRIM(industry), ''), '` + company.NoIndustryLabel + `')`

// FindByName implements company.Store.
func (s *Store) FindByName(ctx context.Context, name string) (company.Company, error) {
	row := s.db.QueryRow(ctx, "SELECT "+selectColumns+" FROM companies WHERE name = $1", name)
	c, err := scanCompany(row)
	if err != nil {
		return company.Company{}, fmt.Errorf("find company %q: %w", name, err)
	}
	return c, nil
}

// Get implements company.Store.
func (s *Store) Get(ctx context.Context, id int64) (company.Company, error) {
	row := s.db.QueryRow(ctx, "SELECT "+selectColumns+" FROM companies WHERE id = $1", id)
	c, err := scanCompany(row)
	if err != nil {
		return company.Company{}, fmt.Errorf("get company %d: %w", id, err)
	}
	return c, nil
}

// Create implements company.Store.
func (s *Store) Create(ctx context.Context, p company.Patch) (company.Company, error) {
	m := milestone.Default()
	if p.Milestone != nil {
		m = *p.Milestone
	}
	if !m.Valid() {
		return company.Company{}, fmt.Errorf("create company %q: %w", p.Name, milestone.ErrInvalid)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO companies (name, website, email, phone, address, industry, milestone, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+selectColumns,
		p.Name, p.Website, p.Email, p.Phone, p.Address, p.Industry, string(m), p.Notes,
	)
	c, err := scanCompany(row)
	if err != nil {
		return company.Company{}, fmt.Errorf("create company %q: %w", p.Name, err)
	}
	return c, nil
}

// Update implements company.Store. Absent patch fields are passed as NULL and
// COALESCE keeps the stored value, so the merge happens in one statement.
func (s *Store) Update(ctx context.Context, c company.Company, p company.Patch) (company.Company, error) {
	var m *string
	if p.Milestone != nil {
		if !p.Milestone.Valid() {
			return company.Company{}, fmt.Errorf("update company %d: %w", c.ID, milestone.ErrInvalid)
		}
		v := string(*p.Milestone)
		m = &v
	}

	row := s.db.QueryRow(ctx, `
		UPDATE companies SET
			website    = COALESCE($2, website),
			email      = COALESCE($3, email),
			phone      = COALESCE($4, phone),
			address    = COALESCE($5, address),
			industry   = COALESCE($6, industry),
			notes      = COALESCE($7, notes),
			milestone  = COALESCE($8, milestone),
			updated_at = now()
		WHERE id = $1
		RETURNING `+selectColumns,
		c.ID, p.Website, p.Email, p.Phone, p.Address, p.Industry, p.Notes, m,
	)
	updated, err := scanCompany(row)
	if err != nil {
		return company.Company{}, fmt.Errorf("update company %d: %w", c.ID, err)
	}
	return updated, nil
}

// Scan implements company.Store.
func (s *Store) Scan(ctx context.Context, f company.Filter, fn func(company.Company) error) error {
	where, args := buildWhere(f)
	query := "SELECT " + selectColumns + " FROM companies" + where +
		" ORDER BY " + bucketExpr + ` COLLATE "C" ASC, name COLLATE "C" ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scan companies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return fmt.Errorf("scan companies: %w", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountByMilestone implements company.Store.
func (s *Store) CountByMilestone(ctx context.Context) (map[milestone.Milestone]int64, error) {
	rows, err := s.db.Query(ctx, "SELECT milestone, count(*) FROM companies GROUP BY milestone")
	if err != nil {
		return nil, fmt.Errorf("count by milestone: %w", err)
	}
	defer rows.Close()

	counts := make(map[milestone.Milestone]int64)
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("count by milestone: %w", err)
		}
		counts[milestone.Milestone(key)] = n
	}
	return counts, rows.Err()
}

// DeleteAll implements company.Store.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM companies")
	if err != nil {
		return 0, fmt.Errorf("delete companies: %w", err)
	}
	return tag.RowsAffected(), nil
}

// buildWhere returns the WHERE clause and positional args for f.
func buildWhere(f company.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Milestone != nil {
		args = append(args, string(*f.Milestone))
		conds = append(conds, fmt.Sprintf("milestone = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR industry ILIKE $%d OR email ILIKE $%d)", n, n, n))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE wildcards so search is a literal substring match.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// scanCompany reads one row in selectColumns order and maps driver errors to
// the company package sentinels.
func scanCompany(row pgx.Row) (company.Company, error) {
	var (
		c   company.Company
		key string
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Website, &c.Email, &c.Phone, &c.Address, &c.Industry,
		&c.PrimaryContactID, &key, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return company.Company{}, mapError(err)
	}
	c.Milestone = milestone.Milestone(key)
	return c, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return company.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w (%s)", company.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}
