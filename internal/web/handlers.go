package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/logging"
	"github.com/JonMunkholm/crm/internal/web/templates"
)

// maxFormMemory caps the part of a multipart upload held in memory; the rest
// spills to temp files.
const maxFormMemory = 8 << 20

// maxJSONBody caps small JSON request bodies.
const maxJSONBody = 64 << 10

// handleDashboard renders the main page: milestone breakdown, import form and
// export form.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.service.MilestoneStats(ctx)
	if err != nil {
		// Render the page anyway; the forms still work.
		logging.FromContext(ctx).Error("dashboard stats failed", "error", err)
	}

	page := templates.DashboardData{
		Stats:       stats,
		Milestones:  s.service.Milestones(),
		Imports:     s.service.ImportStatus(),
		MaxFileSize: s.cfg.Import.MaxFileSize,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Dashboard(page).Render(ctx, w); err != nil {
		logging.FromContext(ctx).Error("dashboard render failed", "error", err)
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImport reconciles an uploaded CSV (multipart field "file") into the
// company table. Row failures are part of the 200 response; only a file that
// cannot be read as CSV at all is an error.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(min(maxSize, maxFormMemory)); err != nil {
		if isTooLarge(err) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err))
		return
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Import(ctx, header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = templates.ImportSummary(res).Render(ctx, w)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// isTooLarge reports whether err came from http.MaxBytesReader. Some
// multipart paths flatten the error, so the message is checked as well.
func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

// handleExport streams the grouped CSV export. The filter is validated before
// anything is read from the store, and response headers are only set once the
// data has been collected so a store failure can still return an error.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := core.ParseExportFilter(q.Get("milestone"), q.Get("search"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rep, err := s.service.CollectExport(r.Context(), f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, rep.Filename()))
	if err := rep.WriteCSV(w); err != nil {
		// Headers are already sent; all we can do is log.
		logging.FromContext(r.Context()).Error("export write failed", "error", err)
	}
}

// milestoneRequest is the JSON body of a milestone update.
type milestoneRequest struct {
	Milestone string `json:"milestone"`
}

// handleUpdateMilestone sets one company's milestone from a JSON body or a
// "milestone" form value.
func (s *Server) handleUpdateMilestone(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, r, &core.ValidationError{
			Field:   "id",
			Value:   rawID,
			Message: "must be a positive integer",
		})
		return
	}

	value, err := readMilestoneValue(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	c, err := s.service.UpdateMilestone(ctx, id, value)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = templates.MilestoneBadge(c.Milestone).Render(ctx, w)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func readMilestoneValue(r *http.Request) (string, error) {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var req milestoneRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
			return "", &core.ValidationError{Field: "body", Message: "invalid JSON body", Err: err}
		}
		return req.Milestone, nil
	}
	return r.FormValue("milestone"), nil
}

// handleListMilestones returns the milestone choice list.
func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.Milestones())
}

// handleMilestoneStats returns company counts per milestone.
func (s *Server) handleMilestoneStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.MilestoneStats(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// handleImportStatus returns import slot usage, for monitoring and for
// clients deciding whether to retry.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.ImportStatus())
}
