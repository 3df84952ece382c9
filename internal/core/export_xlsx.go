package core

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExportXLSXFileName is the name given to exported workbooks.
const ExportXLSXFileName = "parsed-data.xlsx"

const xlsxSheet = "Data"

// ExportXLSX writes the headers and all filtered rows as a single-sheet
// workbook. Cells are written as text.
func (v *TableView) ExportXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with a single default sheet; rename it.
	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return fmt.Errorf("export xlsx: rename sheet: %w", err)
	}
	if index, _ := f.GetSheetIndex(xlsxSheet); index >= 0 {
		f.SetActiveSheet(index)
	}

	for i, h := range v.table.Headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}
		if err := f.SetCellStr(xlsxSheet, cell, h); err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}
	}

	for r, row := range v.filtered {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return fmt.Errorf("export xlsx: %w", err)
			}
			if err := f.SetCellStr(xlsxSheet, cell, value); err != nil {
				return fmt.Errorf("export xlsx: %w", err)
			}
		}
	}

	if n := len(v.table.Headers); n > 0 {
		last, _ := excelize.ColumnNumberToName(n)
		_ = f.SetColWidth(xlsxSheet, "A", last, 24)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export xlsx: write: %w", err)
	}
	return nil
}
