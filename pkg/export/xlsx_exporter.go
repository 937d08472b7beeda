package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXExporter renders multi-sheet workbooks via excelize.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render builds a workbook with one tab per sheet. The first sheet replaces
// the default "Sheet1".
func (e *XLSXExporter) Render(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one sheet")
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, sheet := range sheets {
		if len(sheet.Dataset.Headers) == 0 {
			return nil, fmt.Errorf("sheet %q requires at least one header", sheet.Name)
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				return nil, fmt.Errorf("rename first sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheet.Name); err != nil {
				return nil, fmt.Errorf("create sheet %q: %w", sheet.Name, err)
			}
		}
		if err := writeSheet(f, sheet, headerStyle); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet Sheet, headerStyle int) error {
	for col, header := range sheet.Dataset.Headers {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("resolve column %d: %w", col+1, err)
		}
		cell := fmt.Sprintf("%s1", name)
		if err := f.SetCellValue(sheet.Name, cell, header); err != nil {
			return fmt.Errorf("write header %q: %w", header, err)
		}
		if err := f.SetCellStyle(sheet.Name, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header %q: %w", header, err)
		}
		if col < len(sheet.ColWidths) && sheet.ColWidths[col] > 0 {
			if err := f.SetColWidth(sheet.Name, name, name, sheet.ColWidths[col]); err != nil {
				return fmt.Errorf("set column width: %w", err)
			}
		}
	}

	for rowIdx, row := range sheet.Dataset.Rows {
		for col := range sheet.Dataset.Headers {
			if col >= len(row) {
				break
			}
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return fmt.Errorf("resolve cell: %w", err)
			}
			if err := f.SetCellValue(sheet.Name, cell, row[col]); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}

	if sheet.AutoFilter {
		lastCol, err := excelize.ColumnNumberToName(len(sheet.Dataset.Headers))
		if err != nil {
			return fmt.Errorf("resolve filter column: %w", err)
		}
		ref := fmt.Sprintf("A1:%s1", lastCol)
		if err := f.AutoFilter(sheet.Name, ref, nil); err != nil {
			return fmt.Errorf("set autofilter: %w", err)
		}
	}
	return nil
}
