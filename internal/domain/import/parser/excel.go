package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsxMagic is the zip local file header every .xlsx starts with.
var xlsxMagic = []byte("PK\x03\x04")

// IsWorkbook reports whether data looks like an XLSX workbook rather than text.
func IsWorkbook(data []byte) bool {
	return bytes.HasPrefix(data, xlsxMagic)
}

// ParseWorkbook reads the sales sheet of an XLSX workbook into a RawTable.
// Cells are already Unicode, so no charset resolution applies. Rows shorter
// than the header are padded since spreadsheets drop trailing empty cells;
// rows with values beyond the header width are counted as malformed.
func ParseWorkbook(r io.Reader) (*RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("failed to open workbook: %v", err), Err: err}
	}
	defer f.Close()

	sheetName := findSalesSheet(f)
	if sheetName == "" {
		return nil, &ParseError{Message: "workbook has no sheets", Err: ErrEmptyFile}
	}

	rows, err := f.Rows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create row iterator: %w", err)
	}
	defer rows.Close()

	var table *RawTable
	for rows.Next() {
		row, err := rows.Columns()
		if err != nil {
			if table != nil {
				table.Malformed++
			}
			continue
		}
		if isBlankRow(row) {
			continue
		}

		// First non-blank row is the header
		if table == nil {
			table = &RawTable{Header: cleanHeader(row), Rows: make([][]string, 0, 256)}
			continue
		}

		if len(row) > len(table.Header) {
			table.Malformed++
			continue
		}
		if len(row) < len(table.Header) {
			padded := make([]string, len(table.Header))
			copy(padded, row)
			row = padded
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate sheet %s: %w", sheetName, err)
	}

	if table == nil {
		return nil, &ParseError{Message: "workbook is empty", Err: ErrEmptyFile}
	}
	if len(table.Rows) == 0 {
		return nil, &ParseError{
			Message: fmt.Sprintf("no usable rows (%d malformed)", table.Malformed),
			Err:     ErrNoRows,
		}
	}
	return table, nil
}

// findSalesSheet prefers a sheet named like sales data, else the first one.
func findSalesSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ""
	}

	preferredNames := []string{"ventas", "sales", "datos", "data", "hoja1", "sheet1"}
	for _, preferred := range preferredNames {
		for _, sheet := range sheets {
			if strings.EqualFold(strings.TrimSpace(sheet), preferred) {
				return sheet
			}
		}
	}
	return sheets[0]
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
