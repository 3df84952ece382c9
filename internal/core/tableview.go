package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// DefaultRowsPerPage is the page size used when none is configured.
const DefaultRowsPerPage = 10

// ExportFileName is the name given to exported CSV files.
const ExportFileName = "parsed-data.csv"

// TableView holds search and pagination state over an immutable
// StructuredTable. A TableView is not safe for concurrent use; build one per
// request or per session.
type TableView struct {
	table       *StructuredTable
	rowsPerPage int
	searchTerm  string
	currentPage int
	filtered    [][]string
}

// NewTableView creates a view on table. A nil table behaves as an empty one.
// rowsPerPage values below 1 fall back to DefaultRowsPerPage.
func NewTableView(table *StructuredTable, rowsPerPage int) *TableView {
	if table == nil {
		table = &StructuredTable{}
	}
	if rowsPerPage < 1 {
		rowsPerPage = DefaultRowsPerPage
	}
	v := &TableView{
		table:       table,
		rowsPerPage: rowsPerPage,
		currentPage: 1,
	}
	v.filtered = FilterRows(table.Rows, "")
	return v
}

// SetSearchTerm filters rows and returns to page 1.
func (v *TableView) SetSearchTerm(term string) {
	v.searchTerm = term
	v.filtered = FilterRows(v.table.Rows, term)
	v.currentPage = 1
}

func (v *TableView) SearchTerm() string { return v.searchTerm }

func (v *TableView) RowsPerPage() int { return v.rowsPerPage }

func (v *TableView) Headers() []string { return v.table.Headers }

// CurrentPage returns the 1-based page number.
func (v *TableView) CurrentPage() int { return v.currentPage }

// TotalPages returns the page count of the filtered rows, minimum 1.
func (v *TableView) TotalPages() int {
	return TotalPages(len(v.filtered), v.rowsPerPage)
}

// GoToPage moves to page n, clamped to [1, TotalPages].
func (v *TableView) GoToPage(n int) {
	v.currentPage = clamp(n, 1, v.TotalPages())
}

// NextPage advances one page; no-op on the last page.
func (v *TableView) NextPage() {
	v.GoToPage(v.currentPage + 1)
}

// PreviousPage goes back one page; no-op on the first page.
func (v *TableView) PreviousPage() {
	v.GoToPage(v.currentPage - 1)
}

// FilteredRows returns every row matching the search term.
func (v *TableView) FilteredRows() [][]string {
	return v.filtered
}

// PageView is one rendered page of a TableView.
type PageView struct {
	Headers     []string   `json:"headers"`
	Rows        [][]string `json:"rows"`
	Page        int        `json:"page"`
	TotalPages  int        `json:"totalPages"`
	RowsPerPage int        `json:"rowsPerPage"`
	Start       int        `json:"start"`
	End         int        `json:"end"`
	Filtered    int        `json:"filtered"`
	Total       int        `json:"total"`
	SearchTerm  string     `json:"searchTerm"`
	Summary     string     `json:"summary"`
}

// HasPrevious reports whether a previous page exists.
func (p PageView) HasPrevious() bool { return p.Page > 1 }

// HasNext reports whether a next page exists.
func (p PageView) HasNext() bool { return p.Page < p.TotalPages }

// Page returns the current page.
func (v *TableView) Page() PageView {
	rows := Paginate(v.filtered, v.currentPage, v.rowsPerPage)
	start, end := v.bounds(len(rows))
	return PageView{
		Headers:     v.table.Headers,
		Rows:        rows,
		Page:        v.currentPage,
		TotalPages:  v.TotalPages(),
		RowsPerPage: v.rowsPerPage,
		Start:       start,
		End:         end,
		Filtered:    len(v.filtered),
		Total:       len(v.table.Rows),
		SearchTerm:  v.searchTerm,
		Summary:     v.Summary(),
	}
}

// bounds returns the 1-based index of the first and last row shown.
func (v *TableView) bounds(pageLen int) (int, int) {
	if pageLen == 0 {
		return 0, 0
	}
	start := (v.currentPage-1)*v.rowsPerPage + 1
	return start, start + pageLen - 1
}

// Summary describes the visible range, e.g.
// "Showing 11 to 20 of 42 results (filtered from 300 total)".
func (v *TableView) Summary() string {
	start, end := v.bounds(len(Paginate(v.filtered, v.currentPage, v.rowsPerPage)))
	s := fmt.Sprintf("Showing %d to %d of %d results", start, end, len(v.filtered))
	if v.searchTerm != "" {
		s += fmt.Sprintf(" (filtered from %d total)", len(v.table.Rows))
	}
	return s
}

// ExportCSV writes the headers and all filtered rows as CSV with "\n" line
// endings. Fields containing a comma, quote or line break are quoted so the
// output parses back with DialectRFC4180.
func (v *TableView) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(v.table.Headers); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	if err := cw.WriteAll(v.filtered); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return nil
}

// FilterRows returns the rows where at least one cell contains term,
// ignoring case. An empty term returns rows unchanged.
func FilterRows(rows [][]string, term string) [][]string {
	if term == "" {
		return rows
	}
	needle := strings.ToLower(term)
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		for _, cell := range row {
			if strings.Contains(strings.ToLower(cell), needle) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// Paginate returns rows[(page-1)*perPage : page*perPage], clamped to len(rows).
func Paginate(rows [][]string, page, perPage int) [][]string {
	if perPage < 1 || page < 1 {
		return nil
	}
	start := (page - 1) * perPage
	if start >= len(rows) {
		return nil
	}
	end := start + perPage
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// TotalPages returns ceil(rowCount/perPage), minimum 1.
func TotalPages(rowCount, perPage int) int {
	if perPage < 1 || rowCount <= 0 {
		return 1
	}
	return (rowCount + perPage - 1) / perPage
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
