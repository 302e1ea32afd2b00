// Package xlsxexport renders consolidated tables as Excel workbooks.
package xlsxexport

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"docdash/internal/domain"
)

// SheetName is the worksheet holding the exported rows.
const SheetName = "Results"

// WriteTable writes table as a single-sheet workbook with a bold, frozen header row.
func WriteTable(out io.Writer, table domain.Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}

	if len(table.Columns) > 0 {
		if err := setRow(f, 1, table.Columns); err != nil {
			return err
		}
	}
	for i, row := range table.Rows {
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}

	if len(table.Columns) > 0 {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("creating header style: %w", err)
		}
		last, err := excelize.CoordinatesToCellName(len(table.Columns), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
			return fmt.Errorf("styling header: %w", err)
		}
		if err := f.SetPanes(SheetName, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("freezing header: %w", err)
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
		return fmt.Errorf("writing row %d: %w", rowNum, err)
	}
	return nil
}
