// Package ingest pulls raw sheets from a source, normalizes them into
// domain records and publishes them as a new storage snapshot.
package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"finboard/internal/core"
	"finboard/internal/sheets"
)

var ErrMissingColumn = errors.New("missing required column")

// MalformedRowError describes a source row that could not be normalized.
// Such rows are skipped and counted; they never fail a refresh.
type MalformedRowError struct {
	Sheet  string `json:"sheet"`
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

func (e *MalformedRowError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s row %d: %s %q: %s", e.Sheet, e.Row, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s row %d: %s: %s", e.Sheet, e.Row, e.Field, e.Reason)
}

// dateLayouts are tried in order. Sheets exports US style dates when the
// cell is formatted for display.
var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"1/2/2006 15:04:05",
}

func parseDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, fmt.Errorf("unrecognized date")
}

// columns maps canonical field names to header positions.
type columns map[string]int

// canonical lowercases a header and drops spaces, dashes and underscores so
// "Sub Category", "sub_category" and "Subcategory" all match.
func canonical(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// mapHeader resolves every field of schema to a column index. aliases lists
// accepted header spellings per field, canonical form.
func mapHeader(t sheets.Table, required, optional map[string][]string) (columns, error) {
	index := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		c := canonical(h)
		if _, dup := index[c]; !dup {
			index[c] = i
		}
	}
	cols := make(columns)
	var missing []string
	resolve := func(field string, aliases []string) bool {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				cols[field] = i
				return true
			}
		}
		return false
	}
	for field, aliases := range required {
		if !resolve(field, aliases) {
			missing = append(missing, field)
		}
	}
	for field, aliases := range optional {
		resolve(field, aliases)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w in %s: %s", ErrMissingColumn, t.Name, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columns) get(row []string, field string) string {
	i, ok := c[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

var (
	transactionRequired = map[string][]string{
		"date":     {"date"},
		"amount":   {"amount"},
		"group":    {"group"},
		"category": {"category"},
	}
	transactionOptional = map[string][]string{
		"merchant":    {"merchant", "payee", "description"},
		"subcategory": {"subcategory"},
		"account":     {"account"},
	}
	netWorthRequired = map[string][]string{
		"date":     {"date"},
		"account":  {"account"},
		"category": {"category"},
		"balance":  {"balance", "amount", "value"},
	}
	netWorthOptional = map[string][]string{
		"subcategory": {"subcategory"},
	}
)

// NormalizeTransactions converts a transaction sheet into records. A missing
// required column fails the whole sheet; a bad row is reported and skipped.
func NormalizeTransactions(t sheets.Table) ([]core.Transaction, []*MalformedRowError, error) {
	cols, err := mapHeader(t, transactionRequired, transactionOptional)
	if err != nil {
		return nil, nil, err
	}
	out := make([]core.Transaction, 0, len(t.Rows))
	var bad []*MalformedRowError
	for i, row := range t.Rows {
		if sheets.IsBlank(row) {
			continue
		}
		malformed := func(field, value, reason string) {
			bad = append(bad, &MalformedRowError{Sheet: t.Name, Row: t.SheetRow(i), Field: field, Value: value, Reason: reason})
		}

		raw := cols.get(row, "date")
		date, err := parseDate(raw)
		if err != nil {
			malformed("date", raw, err.Error())
			continue
		}
		raw = cols.get(row, "amount")
		amount, err := core.ParseCurrency(raw)
		if err != nil {
			malformed("amount", raw, err.Error())
			continue
		}
		raw = cols.get(row, "group")
		group, err := core.ParseGroup(raw)
		if err != nil {
			malformed("group", raw, err.Error())
			continue
		}
		tx := core.Transaction{
			Date:        date,
			Merchant:    cols.get(row, "merchant"),
			Amount:      core.NewMoney(amount),
			Group:       group,
			Category:    cols.get(row, "category"),
			Subcategory: cols.get(row, "subcategory"),
			Account:     cols.get(row, "account"),
		}
		if err := tx.Validate(); err != nil {
			malformed("category", tx.Category, err.Error())
			continue
		}
		out = append(out, tx)
	}
	return out, bad, nil
}

// NormalizeNetWorth converts a net worth sheet into records.
func NormalizeNetWorth(t sheets.Table) ([]core.NetWorthEntry, []*MalformedRowError, error) {
	cols, err := mapHeader(t, netWorthRequired, netWorthOptional)
	if err != nil {
		return nil, nil, err
	}
	out := make([]core.NetWorthEntry, 0, len(t.Rows))
	var bad []*MalformedRowError
	for i, row := range t.Rows {
		if sheets.IsBlank(row) {
			continue
		}
		malformed := func(field, value, reason string) {
			bad = append(bad, &MalformedRowError{Sheet: t.Name, Row: t.SheetRow(i), Field: field, Value: value, Reason: reason})
		}

		raw := cols.get(row, "date")
		date, err := parseDate(raw)
		if err != nil {
			malformed("date", raw, err.Error())
			continue
		}
		raw = cols.get(row, "category")
		category, err := core.ParseNetWorthCategory(raw)
		if err != nil {
			malformed("category", raw, err.Error())
			continue
		}
		raw = cols.get(row, "balance")
		balance, err := core.ParseCurrency(raw)
		if err != nil {
			malformed("balance", raw, err.Error())
			continue
		}
		entry := core.NetWorthEntry{
			Date:        date,
			Account:     cols.get(row, "account"),
			Category:    category,
			Subcategory: cols.get(row, "subcategory"),
			Balance:     core.NewMoney(balance),
		}
		if err := entry.Validate(); err != nil {
			malformed("account", entry.Account, err.Error())
			continue
		}
		out = append(out, entry)
	}
	return out, bad, nil
}
