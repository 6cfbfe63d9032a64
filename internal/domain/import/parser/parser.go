// Package parser turns decoded sales CSV text into tables and cleaned records.
// It tolerates ragged input: rows that do not line up with the header are
// skipped and counted rather than aborting the parse.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/FACorreiaa/sales-report/internal/domain/import/sniffer"
)

// RawTable is a parsed file before column mapping.
type RawTable struct {
	Header    []string   // Column names as labeled in the file
	Rows      [][]string // Rows with exactly len(Header) fields
	Delimiter rune       // Delimiter the table was parsed with
	Malformed int        // Rows skipped because they were ragged or unparseable
}

// ParseTable parses data with the given delimiter. The first record is the header.
func ParseTable(data []byte, delimiter rune) (*RawTable, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Message: "file is empty", Err: ErrEmptyFile}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // Variable field count, ragged rows are filtered below

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &ParseError{Message: "file is empty", Err: ErrEmptyFile}
	}
	if err != nil {
		return nil, &ParseError{Row: 1, Message: fmt.Sprintf("failed to read header: %v", err), Err: err}
	}
	header = cleanHeader(header)

	table := &RawTable{
		Header:    header,
		Rows:      make([][]string, 0, 256),
		Delimiter: delimiter,
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				table.Malformed++
				continue
			}
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		if len(record) != len(header) {
			table.Malformed++
			continue
		}
		table.Rows = append(table.Rows, record)
	}

	if len(table.Rows) == 0 {
		return nil, &ParseError{
			Message: fmt.Sprintf("no usable rows (%d malformed)", table.Malformed),
			Err:     ErrNoRows,
		}
	}

	return table, nil
}

// ParseWithFallback parses with the sniffed delimiter first. When that yields a
// single-column header and the alternate delimiter splits the header into more
// columns, the alternate is used instead.
func ParseWithFallback(data []byte, sniffed rune) (*RawTable, error) {
	if headerColumns(data, sniffed) <= 1 {
		alternate := sniffer.Alternate(sniffed)
		if headerColumns(data, alternate) > 1 {
			return ParseTable(data, alternate)
		}
	}
	return ParseTable(data, sniffed)
}

// headerColumns counts the header fields produced by delimiter.
func headerColumns(data []byte, delimiter rune) int {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0
	}
	return len(header)
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}
