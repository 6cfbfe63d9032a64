package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/sales-report/pkg/money"
)

const (
	DefaultTitle    = "Reporte de Ventas"
	DefaultCurrency = money.ARS
	sheetName       = "Reporte"
	tableHeaderRow  = 8
)

// TableHeaders are the column labels of the region table.
var TableHeaders = []string{"Región", "Total Ventas", "Clientes Únicos"}

// WorkbookOptions controls how a Summary is rendered.
type WorkbookOptions struct {
	Title       string
	Currency    string // ISO-4217 code used to format totals
	SourceName  string // Original upload name, shown when set
	GeneratedAt time.Time
}

func (o WorkbookOptions) withDefaults() WorkbookOptions {
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	if o.GeneratedAt.IsZero() {
		o.GeneratedAt = time.Now()
	}
	return o
}

type cellValue struct {
	col, row int
	value    any
}

// WriteWorkbook renders s as an XLSX document: title, generation time,
// general totals and one table row per region.
func WriteWorkbook(w io.Writer, s Summary, opts WorkbookOptions) error {
	opts = opts.withDefaults()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return fmt.Errorf("failed to create title style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Horizontal: "right"}})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}

	// The general total is the sum of the rounded region totals, so the
	// printed rows always add up to it.
	regionTotals := make([]*money.Money, len(s.Regions))
	total := money.Zero(opts.Currency)
	for i, r := range s.Regions {
		regionTotals[i] = money.NewFromDecimal(r.TotalAmount, opts.Currency)
		if total, err = total.Add(regionTotals[i]); err != nil {
			return fmt.Errorf("failed to total region %s: %w", r.Region, err)
		}
	}

	set := func(col, row int, value any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheetName, cell, value)
	}

	cells := []cellValue{
		{1, 1, opts.Title},
		{1, 2, "Generado: " + opts.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")},
		{1, 4, "Filas procesadas"},
		{2, 4, s.TotalRows},
		{1, 5, "Total ventas"},
		{2, 5, total.Display()},
		{1, 6, "Clientes únicos"},
		{2, 6, s.UniqueCustomers},
	}
	if opts.SourceName != "" {
		cells = append(cells, cellValue{1, 3, "Archivo: " + opts.SourceName})
	}
	for _, c := range cells {
		if err := set(c.col, c.row, c.value); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}

	for i, h := range TableHeaders {
		if err := set(i+1, tableHeaderRow, h); err != nil {
			return fmt.Errorf("failed to write table header: %w", err)
		}
	}

	for i, r := range s.Regions {
		row := tableHeaderRow + 1 + i
		if err := set(1, row, r.Region); err != nil {
			return fmt.Errorf("failed to write region %s: %w", r.Region, err)
		}
		if err := set(2, row, regionTotals[i].Display()); err != nil {
			return fmt.Errorf("failed to write region %s: %w", r.Region, err)
		}
		if err := set(3, row, r.UniqueCustomers); err != nil {
			return fmt.Errorf("failed to write region %s: %w", r.Region, err)
		}
	}

	if err := f.SetCellStyle(sheetName, "A1", "A1", titleStyle); err != nil {
		return fmt.Errorf("failed to style title: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A8", "C8", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if len(s.Regions) > 0 {
		last, _ := excelize.CoordinatesToCellName(2, tableHeaderRow+len(s.Regions))
		if err := f.SetCellStyle(sheetName, "B9", last, amountStyle); err != nil {
			return fmt.Errorf("failed to style amounts: %w", err)
		}
	}
	if err := f.SetColWidth(sheetName, "A", "C", 22); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
