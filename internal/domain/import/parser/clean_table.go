package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/sales-report/internal/domain/import/mapper"
	"github.com/FACorreiaa/sales-report/internal/domain/import/normalizer"
)

// CleanDelimiter separates fields in the persisted clean file.
const CleanDelimiter = ';'

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CleanRecord is one validated sale.
type CleanRecord struct {
	Customer string
	Region   string
	Amount   decimal.Decimal // Always > 0
}

// CleanTable holds validated sales in input order.
type CleanTable []CleanRecord

// DropReason explains why a row was filtered out.
type DropReason string

const (
	DropInvalidAmount     DropReason = "invalid_amount"
	DropNonPositiveAmount DropReason = "non_positive_amount"
	DropEmptyCustomer     DropReason = "empty_customer"
	DropEmptyRegion       DropReason = "empty_region"
)

// CleanOutcome is the result of filtering projected rows.
type CleanOutcome struct {
	Table   CleanTable
	Dropped int
	Reasons map[DropReason]int
}

// ProjectedRow is a raw row reduced to the three mapped columns, trimmed.
type ProjectedRow struct {
	Customer string
	Region   string
	Amount   string
}

// Project reduces every row of table to the columns resolved in roles.
func Project(table *RawTable, roles *mapper.ColumnRoleMap) []ProjectedRow {
	rows := make([]ProjectedRow, len(table.Rows))
	for i, row := range table.Rows {
		field := func(c mapper.Column) string {
			if c.Index < 0 || c.Index >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[c.Index])
		}
		rows[i] = ProjectedRow{
			Customer: field(roles.Customer),
			Region:   field(roles.Region),
			Amount:   field(roles.Amount),
		}
	}
	return rows
}

// Filter coerces amounts and keeps only rows with a positive amount and
// non-empty customer and region. Every other row is counted as dropped.
func Filter(rows []ProjectedRow) CleanOutcome {
	out := CleanOutcome{
		Table:   make(CleanTable, 0, len(rows)),
		Reasons: make(map[DropReason]int),
	}

	for _, row := range rows {
		record, reason := validate(row)
		if reason != "" {
			out.Dropped++
			out.Reasons[reason]++
			continue
		}
		out.Table = append(out.Table, record)
	}
	return out
}

// Clean projects, coerces and filters table in one pass.
func Clean(table *RawTable, roles *mapper.ColumnRoleMap) CleanOutcome {
	return Filter(Project(table, roles))
}

func validate(row ProjectedRow) (CleanRecord, DropReason) {
	amount, ok := CoerceAmount(row.Amount)
	if !ok {
		return CleanRecord{}, DropInvalidAmount
	}
	if !amount.IsPositive() {
		return CleanRecord{}, DropNonPositiveAmount
	}
	if row.Customer == "" {
		return CleanRecord{}, DropEmptyCustomer
	}
	if row.Region == "" {
		return CleanRecord{}, DropEmptyRegion
	}
	return CleanRecord{Customer: row.Customer, Region: row.Region, Amount: amount}, ""
}

// cleanCSVRow is the persisted column layout.
type cleanCSVRow struct {
	Customer string `csv:"cliente"`
	Region   string `csv:"region"`
	Amount   string `csv:"monto"`
}

// WriteCleanTable writes table as UTF-8 with a BOM, ';' delimited, with the
// header cliente;region;monto. An empty table produces a header-only file.
func WriteCleanTable(w io.Writer, table CleanTable) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	rows := make([]cleanCSVRow, len(table))
	for i, r := range table {
		rows[i] = cleanCSVRow{Customer: r.Customer, Region: r.Region, Amount: r.Amount.String()}
	}

	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = CleanDelimiter
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return fmt.Errorf("failed to write clean table: %w", err)
	}
	return nil
}

// ReadCleanTable reads a file written by WriteCleanTable. Unlike uploads, a
// persisted file is trusted to be well formed, so any bad row is an error.
func ReadCleanTable(r io.Reader) (CleanTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read clean table: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = CleanDelimiter
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ParseError{Message: "clean table is empty", Err: ErrEmptyFile}
	}
	if err != nil {
		return nil, &ParseError{Row: 1, Message: fmt.Sprintf("failed to read header: %v", err), Err: err}
	}

	idx, err := cleanColumns(header)
	if err != nil {
		return nil, err
	}

	table := make(CleanTable, 0, 256)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Row: line, Message: err.Error(), Err: err}
		}
		if len(record) != len(header) {
			return nil, &ParseError{Row: line, Message: fmt.Sprintf("expected %d fields, got %d", len(header), len(record))}
		}

		amount, err := decimal.NewFromString(record[idx[mapper.RoleAmount]])
		if err != nil {
			return nil, &ParseError{Row: line, Message: fmt.Sprintf("invalid amount %q", record[idx[mapper.RoleAmount]]), Err: err}
		}
		table = append(table, CleanRecord{
			Customer: record[idx[mapper.RoleCustomer]],
			Region:   record[idx[mapper.RoleRegion]],
			Amount:   amount,
		})
	}
	return table, nil
}

// cleanColumns locates the canonical columns in a persisted header.
func cleanColumns(header []string) (map[mapper.Role]int, error) {
	normalized := normalizer.NormalizeAll(header)
	idx := make(map[mapper.Role]int, len(mapper.Roles))
	var missing []mapper.Role

	for _, role := range mapper.Roles {
		found := false
		for i, name := range normalized {
			if name == role.Canonical() {
				idx[role] = i
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, role)
		}
	}

	if len(missing) > 0 {
		return nil, mapper.NewMissingColumnsError(missing, header)
	}
	return idx, nil
}
