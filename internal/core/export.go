package core

// export.go writes the grouped company report.
//
// Layout:
//
//	row 1: Generated: <ts>, Total Records: <n>, Filter: <desc|None>
//	row 2: column headers
//	data rows ordered by (industry bucket, name), with one blank row
//	between industry groups and none before the first or after the last.

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/crm/internal/company"
	"github.com/JonMunkholm/crm/internal/milestone"
)

// TimestampLayout is used for every timestamp in the export.
const TimestampLayout = "2006-01-02 15:04:05"

// exportFilenameLayout matches companies_export_YYYYMMDD_HHMMSS.csv.
const exportFilenameLayout = "20060102_150405"

// ExportHeaders is the fixed column header row.
var ExportHeaders = []string{
	"ID",
	"Name",
	"Website",
	"Email",
	"Phone",
	"Address",
	"Industry",
	"Milestone",
	"Milestone Label",
	"Primary Contact ID",
	"Notes",
	"Created At",
	"Updated At",
}

// ExportFilename returns the attachment name for an export generated at t.
func ExportFilename(t time.Time) string {
	return "companies_export_" + t.Format(exportFilenameLayout) + ".csv"
}

// ParseExportFilter validates raw query values into a company.Filter. An
// unknown milestone fails with ErrInvalidFilter. Empty values mean no filter.
func ParseExportFilter(milestoneValue, search string) (company.Filter, error) {
	var f company.Filter
	if v := strings.TrimSpace(milestoneValue); v != "" {
		m, err := milestone.Parse(v)
		if err != nil {
			return company.Filter{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		f.Milestone = &m
	}
	f.Search = strings.TrimSpace(search)
	return f, nil
}

// DescribeFilter renders f for the metadata row.
func DescribeFilter(f company.Filter) string {
	if f.IsZero() {
		return "None"
	}
	var parts []string
	if f.Milestone != nil {
		parts = append(parts, "milestone="+f.Milestone.Label())
	}
	if f.Search != "" {
		parts = append(parts, fmt.Sprintf("search=%q", f.Search))
	}
	return strings.Join(parts, "; ")
}

// Exporter renders companies from a store as grouped CSV.
type Exporter struct {
	store company.Store

	// Now is the clock used for the Generated timestamp.
	Now func() time.Time
}

// NewExporter returns an Exporter reading from store.
func NewExporter(store company.Store) *Exporter {
	return &Exporter{store: store, Now: time.Now}
}

// Report is a collected export ready to be written. Companies are in
// (industry bucket, name) order.
type Report struct {
	GeneratedAt time.Time
	Filter      company.Filter
	Companies   []company.Company
}

// Collect scans every company matching f. Matches are buffered because the
// metadata row carries the total count.
func (e *Exporter) Collect(ctx context.Context, f company.Filter) (*Report, error) {
	rep := &Report{GeneratedAt: e.Now(), Filter: f}
	err := e.store.Scan(ctx, f, func(c company.Company) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep.Companies = append(rep.Companies, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan companies: %w", err)
	}
	slices.SortStableFunc(rep.Companies, func(a, b company.Company) int {
		switch {
		case company.Less(a, b):
			return -1
		case company.Less(b, a):
			return 1
		}
		return 0
	})
	return rep, nil
}

// Filename returns the attachment name for the report.
func (r *Report) Filename() string {
	return ExportFilename(r.GeneratedAt)
}

// Groups returns the number of industry groups in the report.
func (r *Report) Groups() int {
	n := 0
	for i, c := range r.Companies {
		if i == 0 || c.IndustryBucket() != r.Companies[i-1].IndustryBucket() {
			n++
		}
	}
	return n
}

// WriteCSV writes the metadata row, the header row and the grouped data rows.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	meta := []string{
		"Generated: " + r.GeneratedAt.Format(TimestampLayout),
		"Total Records: " + strconv.Itoa(len(r.Companies)),
		"Filter: " + DescribeFilter(r.Filter),
	}
	if err := cw.Write(meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := cw.Write(ExportHeaders); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}

	blank := make([]string, len(ExportHeaders))
	for i, c := range r.Companies {
		if i > 0 && c.IndustryBucket() != r.Companies[i-1].IndustryBucket() {
			if err := cw.Write(blank); err != nil {
				return fmt.Errorf("write separator: %w", err)
			}
		}
		if err := cw.Write(exportRow(c)); err != nil {
			return fmt.Errorf("write company %d: %w", c.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}

func exportRow(c company.Company) []string {
	contact := ""
	if c.PrimaryContactID != nil {
		contact = strconv.FormatInt(*c.PrimaryContactID, 10)
	}
	return []string{
		strconv.FormatInt(c.ID, 10),
		c.Name,
		deref(c.Website),
		deref(c.Email),
		deref(c.Phone),
		deref(c.Address),
		deref(c.Industry),
		string(c.Milestone),
		c.Milestone.Label(),
		contact,
		deref(c.Notes),
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}
