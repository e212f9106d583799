package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/crm/internal/company"
	"github.com/JonMunkholm/crm/internal/logging"
)

// Summary is the outcome of one reconciliation call.
type Summary struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors"`

	// Aborted is set when the caller's context ended before every row was
	// processed. Counts cover the rows handled until then.
	Aborted bool `json:"aborted,omitempty"`
}

// Processed returns the number of rows that were created or updated.
func (s Summary) Processed() int {
	return s.Created + s.Updated
}

type rowOutcome int

const (
	rowFailed rowOutcome = iota
	rowCreated
	rowUpdated
)

// Reconciler applies import records to a store with find-or-create by name
// and sparse overwrite of existing companies. Rows are processed one at a
// time in input order.
type Reconciler struct {
	store company.Store
}

// NewReconciler returns a Reconciler writing to store.
func NewReconciler(store company.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile processes every record from rows. A failing row is recorded in
// Summary.Errors and never stops the batch.
func (r *Reconciler) Reconcile(ctx context.Context, rows RecordSource) Summary {
	logger := logging.FromContext(ctx)
	sum := Summary{Errors: []RowError{}}

	for row, rec := range rows {
		if ctx.Err() != nil {
			sum.Aborted = true
			break
		}

		outcome, err := r.reconcileRow(ctx, row, rec)
		switch outcome {
		case rowCreated:
			sum.Created++
			continue
		case rowUpdated:
			sum.Updated++
			continue
		}

		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			sum.Aborted = true
			break
		}
		var rowErr *RowError
		if !errors.As(err, &rowErr) {
			rowErr = &RowError{Row: row, Message: err.Error()}
		}
		logger.Warn("import row failed", "row", rowErr.Row, "error", rowErr.Message)
		sum.Errors = append(sum.Errors, *rowErr)
	}

	if sum.Aborted {
		logger.Warn("reconciliation aborted",
			slog.Int("created", sum.Created),
			slog.Int("updated", sum.Updated),
			slog.Any("cause", ctx.Err()),
		)
	}
	return sum
}

func (r *Reconciler) reconcileRow(ctx context.Context, row int, rec Record) (outcome rowOutcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			outcome = rowFailed
			err = &RowError{Row: row, Message: fmt.Sprintf("internal error: %v", p)}
		}
	}()

	cand, rowErr := Normalize(row, rec)
	if rowErr != nil {
		return rowFailed, rowErr
	}

	existing, err := r.store.FindByName(ctx, cand.Name)
	switch {
	case errors.Is(err, company.ErrNotFound):
		if _, err := r.store.Create(ctx, cand.CreatePatch()); err != nil {
			return rowFailed, err
		}
		return rowCreated, nil
	case err != nil:
		return rowFailed, err
	}

	if _, err := r.store.Update(ctx, existing, cand.UpdatePatch()); err != nil {
		return rowFailed, err
	}
	return rowUpdated, nil
}
