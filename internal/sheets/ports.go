package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Default sheet names of the finance workbook.
const (
	TransactionsSheet = "Transaction_Log"
	NetWorthSheet     = "Net_Worth_Log"
)

var ErrSheetNotFound = errors.New("sheet not found")

// Table is the raw text content of one sheet: a header row followed by
// data rows. Rows may be shorter than the header and may be blank.
type Table struct {
	Name      string
	Header    []string
	HeaderRow int // 1-based sheet row of the header
	Rows      [][]string
}

// SheetRow returns the 1-based sheet row number of Rows[i].
func (t Table) SheetRow(i int) int {
	return t.HeaderRow + i + 1
}

// Ports for inbound data sources.
type (
	// SheetReader returns the full content of a named sheet.
	SheetReader interface {
		ReadSheet(ctx context.Context, name string) (Table, error)
	}
)

// NewTable splits a value matrix into header and rows. Leading blank rows
// are skipped; an all-empty matrix yields a table without header.
func NewTable(name string, values [][]string) Table {
	t := Table{Name: name}
	for i, row := range values {
		if IsBlank(row) {
			continue
		}
		t.Header = row
		t.HeaderRow = i + 1
		t.Rows = values[i+1:]
		break
	}
	return t
}

// ParseCSV reads a CSV export of a sheet.
func ParseCSV(name string, r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse %s csv: %w", name, err)
	}
	return NewTable(name, records), nil
}

// IsBlank reports whether every cell of row is empty or whitespace.
func IsBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
