package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/crm/internal/company"
	"github.com/JonMunkholm/crm/internal/milestone"
)

func TestBuildWhere(t *testing.T) {
	sent := milestone.EmailSent

	tests := []struct {
		name      string
		filter    company.Filter
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "no filter",
			filter:    company.Filter{},
			wantWhere: "",
			wantArgs:  nil,
		},
		{
			name:      "milestone only",
			filter:    company.Filter{Milestone: &sent},
			wantWhere: " WHERE milestone = $1",
			wantArgs:  []any{"email_sent"},
		},
		{
			name:      "search only",
			filter:    company.Filter{Search: " acme "},
			wantWhere: " WHERE (name ILIKE $1 OR industry ILIKE $1 OR email ILIKE $1)",
			wantArgs:  []any{"%acme%"},
		},
		{
			name:      "both",
			filter:    company.Filter{Milestone: &sent, Search: "50%_off"},
			wantWhere: " WHERE milestone = $1 AND (name ILIKE $2 OR industry ILIKE $2 OR email ILIKE $2)",
			wantArgs:  []any{"email_sent", `%50\%\_off%`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildWhere(tt.filter)
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if fmt.Sprint(args) != fmt.Sprint(tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	if err := mapError(pgx.ErrNoRows); !errors.Is(err, company.ErrNotFound) {
		t.Errorf("mapError(ErrNoRows) = %v, want ErrNotFound", err)
	}

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "companies_name_key"}
	err := mapError(fmt.Errorf("insert: %w", dup))
	if !errors.Is(err, company.ErrDuplicateKey) {
		t.Errorf("mapError(unique violation) = %v, want ErrDuplicateKey", err)
	}
	if !strings.Contains(err.Error(), "companies_name_key") {
		t.Errorf("mapError should keep the constraint name, got %q", err.Error())
	}

	other := errors.New("connection refused")
	if got := mapError(other); got != other {
		t.Errorf("mapError(other) = %v, want passthrough", got)
	}
}

func TestSchemaMatchesMilestones(t *testing.T) {
	for _, key := range milestone.Keys() {
		if !strings.Contains(schemaSQL, "'"+key+"'") {
			t.Errorf("schema CHECK constraint missing milestone %q", key)
		}
	}
	if !strings.Contains(bucketExpr, company.NoIndustryLabel) {
		t.Errorf("bucket expression must use %q", company.NoIndustryLabel)
	}
}
