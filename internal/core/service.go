package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/crm/internal/company"
	"github.com/JonMunkholm/crm/internal/logging"
	"github.com/JonMunkholm/crm/internal/milestone"
)

// DefaultImportTimeout bounds a single import run.
const DefaultImportTimeout = 10 * time.Minute

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	MaxConcurrentImports int
	ImportWait           time.Duration
	ImportTimeout        time.Duration
}

// Service is the entry point for import, export and milestone updates. It is
// shared by the HTTP server and the CLI.
type Service struct {
	store      company.Store
	limiter    *ImportLimiter
	reconciler *Reconciler
	exporter   *Exporter

	importTimeout time.Duration
}

// NewService wires a Service over store.
func NewService(store company.Store, opts Options) *Service {
	timeout := opts.ImportTimeout
	if timeout <= 0 {
		timeout = DefaultImportTimeout
	}
	return &Service{
		store:         store,
		limiter:       NewImportLimiter(opts.MaxConcurrentImports, opts.ImportWait),
		reconciler:    NewReconciler(store),
		exporter:      NewExporter(store),
		importTimeout: timeout,
	}
}

// Import decodes r as CSV and reconciles every row. Decoding failures are
// returned as an error; row failures are reported in the result.
// Returns ErrTooManyImports when no import slot frees up in time.
func (s *Service) Import(ctx context.Context, fileName string, r io.Reader) (*ImportResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	start := time.Now()
	importID := uuid.New().String()
	logger := logging.WithFields(ctx,
		"import_id", importID,
		"file", fileName,
		"ip", IPAddressFromContext(ctx),
		"user_agent", UserAgentFromContext(ctx),
	)

	rs, err := DecodeCSV(r)
	if err != nil {
		logger.Warn("import rejected", "error", err)
		return nil, err
	}
	if !rs.HasColumn(ColName) {
		logger.Warn("import header has no name column; every row will fail",
			"header", rs.Header,
			"expected", ImportColumns,
		)
	}
	if extra := rs.UnknownColumns(); len(extra) > 0 {
		logger.Info("ignoring unknown columns", "columns", extra)
	}
	logger.Info("import started", "rows", rs.Len())

	runCtx, cancel := context.WithTimeout(ctx, s.importTimeout)
	defer cancel()

	sum := s.reconciler.Reconcile(runCtx, rs.Rows())

	res := &ImportResult{
		ImportID: importID,
		FileName: fileName,
		Phase:    PhaseComplete,
		Rows:     rs.Len(),
		Summary:  sum,
		Duration: time.Since(start),
	}
	if sum.Aborted {
		res.Phase = PhaseAborted
		if errors.Is(ctx.Err(), context.Canceled) {
			res.Phase = PhaseCancelled
		}
	}

	logger.Info("import finished",
		"phase", res.Phase,
		"created", sum.Created,
		"updated", sum.Updated,
		"errors", len(sum.Errors),
		"duration", res.Duration,
	)
	return res, nil
}

// CollectExport gathers the report for f. The caller writes it with
// Report.WriteCSV once response headers are set.
func (s *Service) CollectExport(ctx context.Context, f company.Filter) (*Report, error) {
	rep, err := s.exporter.Collect(ctx, f)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("export collected",
		"filter", DescribeFilter(f),
		"rows", len(rep.Companies),
		"groups", rep.Groups(),
	)
	return rep, nil
}

// Export collects and writes the report for f to w.
func (s *Service) Export(ctx context.Context, w io.Writer, f company.Filter) (*Report, error) {
	rep, err := s.CollectExport(ctx, f)
	if err != nil {
		return nil, err
	}
	return rep, rep.WriteCSV(w)
}

// UpdateMilestone sets the milestone of one company. A value outside the
// enum is a ValidationError; store failures are returned unchanged.
func (s *Service) UpdateMilestone(ctx context.Context, id int64, value string) (company.Company, error) {
	m, err := milestone.Parse(value)
	if err != nil {
		return company.Company{}, &ValidationError{
			Field:   "milestone",
			Value:   value,
			Message: err.Error(),
			Err:     err,
		}
	}

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return company.Company{}, err
	}
	updated, err := s.store.Update(ctx, c, company.Patch{Milestone: &m})
	if err != nil {
		return company.Company{}, err
	}

	logging.WithFields(ctx,
		"company_id", id,
		"ip", IPAddressFromContext(ctx),
		"user_agent", UserAgentFromContext(ctx),
	).Info("milestone updated",
		"from", c.Milestone,
		"to", updated.Milestone,
	)
	return updated, nil
}

// Milestones returns the choice list in milestone order.
func (s *Service) Milestones() []MilestoneOption {
	all := milestone.All()
	opts := make([]MilestoneOption, len(all))
	for i, m := range all {
		opts[i] = optionFor(m)
	}
	return opts
}

// MilestoneStats counts companies per milestone. Every milestone is listed,
// including those with no companies.
func (s *Service) MilestoneStats(ctx context.Context) (MilestoneStats, error) {
	counts, err := s.store.CountByMilestone(ctx)
	if err != nil {
		return MilestoneStats{}, fmt.Errorf("milestone stats: %w", err)
	}

	var stats MilestoneStats
	for _, m := range milestone.All() {
		n := counts[m]
		stats.Total += n
		stats.Counts = append(stats.Counts, MilestoneCount{MilestoneOption: optionFor(m), Count: n})
	}
	return stats, nil
}

// ClearAll deletes every company. Used by the CLI before a fresh import.
func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	logging.FromContext(ctx).Warn("all companies deleted", "count", n, "ip", IPAddressFromContext(ctx))
	return n, nil
}

// ImportStatus reports import slot usage.
func (s *Service) ImportStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
