// Package templates holds the HTML components of the web UI, built as
// templ components.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/milestone"
)

// DashboardData is everything the dashboard page shows.
type DashboardData struct {
	Stats       core.MilestoneStats
	Milestones  []core.MilestoneOption
	Imports     core.ImportLimiterStatus
	MaxFileSize int64
}

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem auto;max-width:56rem;color:#1f2937}
table{border-collapse:collapse;width:100%}th,td{text-align:left;padding:.4rem .6rem;border-bottom:1px solid #e5e7eb}
section{margin-bottom:2rem}.muted{color:#6b7280}.badge{padding:.1rem .5rem;border-radius:9999px;background:#eef2ff}
.alert{border:1px solid #fca5a5;background:#fef2f2;padding:.75rem;border-radius:.375rem}`

// Layout wraps body in the page shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\">")
		fmt.Fprintf(&b, "<title>%s</title><style>%s</style></head><body>", templ.EscapeString(title), pageStyle)
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

// Dashboard renders the main page.
func Dashboard(d DashboardData) templ.Component {
	return Layout("Companies", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<h1>Companies</h1>")

		b.WriteString("<section><h2>Milestones</h2><table><thead><tr><th>Milestone</th><th>Companies</th></tr></thead><tbody>")
		for _, c := range d.Stats.Counts {
			fmt.Fprintf(&b, "<tr><td>%s %s</td><td>%d</td></tr>",
				templ.EscapeString(c.Emoji), templ.EscapeString(c.Label), c.Count)
		}
		fmt.Fprintf(&b, "</tbody><tfoot><tr><th>Total</th><th>%d</th></tr></tfoot></table></section>", d.Stats.Total)

		b.WriteString(`<section><h2>Import</h2>`)
		b.WriteString(`<form method="post" action="/api/companies/import" enctype="multipart/form-data">`)
		b.WriteString(`<input type="file" name="file" accept=".csv,text/csv" required> <button type="submit">Import</button></form>`)
		fmt.Fprintf(&b, `<p class="muted">Max file size %s. Imports running: %d of %d.</p></section>`,
			formatBytes(d.MaxFileSize), d.Imports.Active, d.Imports.MaxConcurrent)

		b.WriteString(`<section><h2>Export</h2><form method="get" action="/api/companies/export">`)
		b.WriteString(`<label>Milestone <select name="milestone"><option value="">All</option>`)
		for _, m := range d.Milestones {
			fmt.Fprintf(&b, `<option value="%s">%s</option>`, templ.EscapeString(m.Key), templ.EscapeString(m.Label))
		}
		b.WriteString(`</select></label> <label>Search <input type="search" name="search"></label> `)
		b.WriteString(`<button type="submit">Download CSV</button></form></section>`)

		_, err := io.WriteString(w, b.String())
		return err
	}))
}

// ImportSummary renders the outcome of one import as a fragment.
func ImportSummary(res *core.ImportResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<div class="import-summary" data-phase="%s">`, templ.EscapeString(string(res.Phase)))
		fmt.Fprintf(&b, "<p>%s: %d created, %d updated, %d errors.</p>",
			templ.EscapeString(res.FileName), res.Created, res.Updated, len(res.Errors))
		if len(res.Errors) > 0 {
			b.WriteString("<ul>")
			for _, e := range res.Errors {
				fmt.Fprintf(&b, "<li>Row %d: %s</li>", e.Row, templ.EscapeString(e.Message))
			}
			b.WriteString("</ul>")
		}
		b.WriteString("</div>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// MilestoneBadge renders a milestone as an inline badge.
func MilestoneBadge(m milestone.Milestone) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<span class="badge" data-milestone="%s">%s</span>`,
			templ.EscapeString(string(m)), templ.EscapeString(m.DisplayWithEmoji()))
		return err
	})
}

// ErrorAlert renders a user-facing error fragment.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<div class="alert" role="alert"><strong>%s</strong>`, templ.EscapeString(message))
		if action != "" {
			fmt.Fprintf(&b, " <span>%s</span>", templ.EscapeString(action))
		}
		fmt.Fprintf(&b, ` <span class="muted">(Code: %s)</span></div>`, templ.EscapeString(code))
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
