// Package templates renders the HTML pages and fragments served by the web
// package. Components are templ.Components so handlers can render them the
// same way whether they are full pages or HTMX partials.
package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/JonMunkholm/csvjob/internal/core"
	"github.com/a-h/templ"
)

// PageData is everything the index page needs.
type PageData struct {
	Snapshot core.Snapshot
	Table    *core.PageView
	Error    *core.UserMessage
}

// htmlWriter accumulates the first write error so components can be written
// as straight-line code.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (hw *htmlWriter) raw(s string) {
	if hw.err != nil {
		return
	}
	_, hw.err = io.WriteString(hw.w, s)
}

func (hw *htmlWriter) text(s string) {
	hw.raw(templ.EscapeString(s))
}

func (hw *htmlWriter) rawf(format string, args ...any) {
	if hw.err != nil {
		return
	}
	_, hw.err = fmt.Fprintf(hw.w, format, args...)
}

// Page renders the full index page.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		hw.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		hw.raw(`<title>CSV Job</title></head><body><main>`)
		hw.raw(`<h1>CSV Job</h1>`)

		if data.Error != nil {
			if err := ErrorAlert(data.Error.Message, data.Error.Action, data.Error.Code).Render(ctx, w); err != nil {
				return err
			}
		}

		hw.raw(`<section id="upload">`)
		if data.Snapshot.State.Active() {
			hw.raw(`<form method="post" action="/cancel"><button type="submit">Cancel</button></form>`)
		} else {
			hw.raw(`<form method="post" action="/upload" enctype="multipart/form-data">`)
			hw.raw(`<input type="file" name="file" accept=".csv,text/csv,application/vnd.ms-excel" required>`)
			hw.raw(`<button type="submit">Upload</button></form>`)
		}
		hw.raw(`</section>`)
		if hw.err != nil {
			return hw.err
		}

		if err := JobStatus(data.Snapshot).Render(ctx, w); err != nil {
			return err
		}
		if data.Table != nil {
			if err := ResultTable(*data.Table).Render(ctx, w); err != nil {
				return err
			}
		}

		hw.raw(`</main></body></html>`)
		return hw.err
	})
}

// JobStatus renders the job state panel.
func JobStatus(s core.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.rawf(`<section id="job" data-state="%s">`, templ.EscapeString(string(s.State)))

		switch s.State {
		case core.StateIdle:
			hw.raw(`<p>Select a CSV file to process.</p>`)
		case core.StateSubmitting:
			hw.raw(`<p>Uploading file...</p>`)
		case core.StatePolling:
			hw.raw(`<p>Processing`)
			if s.Job != nil {
				hw.raw(` job <code>`)
				hw.text(s.Job.ID)
				hw.raw(`</code>`)
			}
			hw.raw(`...</p>`)
		case core.StateCompleted:
			hw.raw(`<p>Processing complete.</p>`)
			if s.Summary != "" {
				hw.raw(`<p class="summary">`)
				hw.text(s.Summary)
				hw.raw(`</p>`)
			}
			if s.FileName != "" {
				hw.raw(`<p><a href="/api/job/download">Download `)
				hw.text(s.FileName)
				hw.raw(`</a></p>`)
			}
		case core.StateFailed:
			hw.raw(`<p>Processing failed.</p>`)
		}

		if s.State.Terminal() {
			hw.raw(`<form method="post" action="/reset"><button type="submit">Start over</button></form>`)
		}
		hw.raw(`</section>`)
		return hw.err
	})
}

// ResultTable renders one page of the parsed table with a search box and
// pager links.
func ResultTable(p core.PageView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<section id="table">`)

		hw.raw(`<form method="get" action="/"><input type="search" name="search" value="`)
		hw.text(p.SearchTerm)
		hw.raw(`" placeholder="Search..."><button type="submit">Search</button></form>`)

		hw.raw(`<table><thead><tr>`)
		for _, h := range p.Headers {
			hw.raw(`<th>`)
			hw.text(h)
			hw.raw(`</th>`)
		}
		hw.raw(`</tr></thead><tbody>`)
		if len(p.Rows) == 0 {
			hw.rawf(`<tr><td colspan="%d">No results</td></tr>`, len(p.Headers))
		}
		for _, row := range p.Rows {
			hw.raw(`<tr>`)
			for _, cell := range row {
				hw.raw(`<td>`)
				hw.text(core.DisplayCell(cell))
				hw.raw(`</td>`)
			}
			hw.raw(`</tr>`)
		}
		hw.raw(`</tbody></table>`)

		hw.raw(`<nav class="pager"><span>`)
		hw.text(p.Summary)
		hw.raw(`</span> `)
		if p.HasPrevious() {
			hw.rawf(`<a href="%s">Previous</a> `, pageLink(p.SearchTerm, p.Page-1))
		}
		hw.rawf(`<span>Page %d of %d</span>`, p.Page, p.TotalPages)
		if p.HasNext() {
			hw.rawf(` <a href="%s">Next</a>`, pageLink(p.SearchTerm, p.Page+1))
		}
		hw.raw(`</nav>`)

		hw.rawf(`<p><a href="%s">Export CSV</a> <a href="%s">Export Excel</a></p>`,
			exportLink("csv", p.SearchTerm), exportLink("xlsx", p.SearchTerm))
		hw.raw(`</section>`)
		return hw.err
	})
}

// ErrorAlert renders a user-facing error with its suggested action.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div class="alert alert-error" role="alert"><strong>`)
		hw.text(message)
		hw.raw(`</strong>`)
		if action != "" {
			hw.raw(` <span>`)
			hw.text(action)
			hw.raw(`</span>`)
		}
		if code != "" {
			hw.raw(` <small>(`)
			hw.text(code)
			hw.raw(`)</small>`)
		}
		hw.raw(`</div>`)
		return hw.err
	})
}

func pageLink(search string, page int) string {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	q.Set("page", strconv.Itoa(page))
	return templ.EscapeString("/?" + q.Encode())
}

func exportLink(format, search string) string {
	q := url.Values{}
	q.Set("format", format)
	if search != "" {
		q.Set("search", search)
	}
	return templ.EscapeString("/api/table/export?" + q.Encode())
}
