package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/csvjob/internal/core"
	"github.com/JonMunkholm/csvjob/internal/logging"
)

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// tableView returns a view over the current table with the search and page
// query parameters applied.
func (s *Server) tableView(r *http.Request) (*core.TableView, error) {
	view, err := s.jobs.View()
	if err != nil {
		return nil, err
	}
	view.SetSearchTerm(strings.TrimSpace(r.URL.Query().Get("search")))
	view.GoToPage(parseIntParam(r, "page", 1))
	return view, nil
}

// handleTable returns one page of the parsed table.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	view, err := s.tableView(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, view.Page())
}

// handleExport downloads every row matching the search term as CSV or XLSX.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", format), "EXP001")
		return
	}

	view, err := s.tableView(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	var (
		filename    string
		contentType string
		export      func(http.ResponseWriter) error
	)
	switch format {
	case "xlsx":
		filename = core.ExportXLSXFileName
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		export = func(w http.ResponseWriter) error { return view.ExportXLSX(w) }
	default:
		filename = core.ExportFileName
		contentType = "text/csv"
		export = func(w http.ResponseWriter) error { return view.ExportCSV(w) }
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))

	if err := export(w); err != nil {
		// Can't change status code after writing, just log
		logging.FromContext(r.Context()).Warn("export failed", "format", format, "error", err)
		return
	}

	logging.FromContext(r.Context()).Info("table exported",
		"format", format,
		"rows", len(view.FilteredRows()),
		"search", view.SearchTerm(),
	)
}
