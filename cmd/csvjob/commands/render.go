package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/csvjob/internal/core"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// Describe turns an error into the line printed before exiting. Known
// failures get the same message and code the web UI shows.
func Describe(err error) string {
	if core.IsUserFacing(err) {
		return "error: " + core.FormatUserError(err)
	}
	return "error: " + err.Error()
}

// applyView sets the search term and page from the command flags.
func applyView(view *core.TableView, cmd *cli.Command) {
	view.SetSearchTerm(strings.TrimSpace(cmd.String("search")))
	view.GoToPage(int(cmd.Int("page")))
}

// RenderPage prints one page as a table followed by the range summary.
func RenderPage(w io.Writer, p core.PageView) error {
	table := tablewriter.NewWriter(w)
	table.Header(toAny(p.Headers)...)

	for _, row := range p.Rows {
		cells := make([]any, len(row))
		for i, cell := range row {
			cells[i] = core.DisplayCell(cell)
		}
		if err := table.Append(cells...); err != nil {
			return fmt.Errorf("render row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}

	_, err := fmt.Fprintf(w, "%s (page %d of %d)\n", p.Summary, p.Page, p.TotalPages)
	return err
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// exportFormat picks the export format from the flag, falling back to the
// file extension and then csv.
func exportFormat(path, flag string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(flag))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case "", "csv":
		return "csv", nil
	case "xlsx":
		return "xlsx", nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want csv or xlsx)", format)
	}
}

// exportView writes every filtered row to path.
func exportView(view *core.TableView, path, formatFlag string) (err error) {
	format, err := exportFormat(path, formatFlag)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if format == "xlsx" {
		return view.ExportXLSX(f)
	}
	return view.ExportCSV(f)
}

// finish renders the current page and writes the export if one was asked for.
func finish(cmd *cli.Command, view *core.TableView) error {
	applyView(view, cmd)

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	if err := RenderPage(out, view.Page()); err != nil {
		return err
	}

	if path := cmd.String("export"); path != "" {
		if err := exportView(view, path, cmd.String("format")); err != nil {
			return err
		}
		fmt.Fprintf(out, "exported %d rows to %s\n", len(view.FilteredRows()), path)
	}
	return nil
}
