package ingest

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/sheets"
)

func TestNormalizeTransactions(t *testing.T) {
	table := sheets.NewTable("Transaction_Log", [][]string{
		{"Date", "Merchant", "Amount", "Group", "Category", "Sub Category", "Account"},
		{"2025-01-05", "Grocer", "$1,234.56", "Expenses", "Food", "Groceries", "Card"},
		{"1/7/2025", "Employer", "$3,000.00", "income", "Salary", "", "Checking"},
		{"", "", "", "", "", "", ""},
		{"not a date", "Cafe", "$4.00", "Expenses", "Food", "Dining", "Card"},
		{"2025-01-09", "Cafe", "four", "Expenses", "Food", "Dining", "Card"},
		{"2025-01-10", "Cafe", "$4.00", "Transfers", "Food", "Dining", "Card"},
		{"01/11/2025", "Cafe", "($4.00)", "Expenses", "Food"},
	})

	got, bad, err := NormalizeTransactions(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(got), got)
	}
	if !got[0].Amount.Equal(decimal.RequireFromString("1234.56")) || got[0].Amount.Format() != "$1,234.56" {
		t.Fatalf("unexpected amount %s", got[0].Amount)
	}
	if got[0].Subcategory != "Groceries" {
		t.Fatalf("expected subcategory from spaced header, got %q", got[0].Subcategory)
	}
	if got[1].Date.String() != "2025-01-07" || got[1].Group != core.Income {
		t.Fatalf("unexpected second row %+v", got[1])
	}
	if got[2].Date.String() != "2025-01-11" || got[2].Account != "" || !got[2].Amount.IsNegative() {
		t.Fatalf("unexpected short row %+v", got[2])
	}

	if len(bad) != 3 {
		t.Fatalf("expected 3 malformed rows, got %d", len(bad))
	}
	want := []struct {
		row   int
		field string
	}{{6, "date"}, {7, "amount"}, {8, "group"}}
	for i, w := range want {
		if bad[i].Row != w.row || bad[i].Field != w.field || bad[i].Sheet != "Transaction_Log" {
			t.Fatalf("malformed %d: expected row %d field %s, got %+v", i, w.row, w.field, bad[i])
		}
	}
}

func TestNormalizeMissingColumn(t *testing.T) {
	table := sheets.NewTable("Transaction_Log", [][]string{
		{"Date", "Merchant", "Group", "Category"},
		{"2025-01-05", "Grocer", "Expenses", "Food"},
	})
	if _, _, err := NormalizeTransactions(table); !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	if _, _, err := NormalizeNetWorth(sheets.NewTable("Net_Worth_Log", nil)); !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn for empty sheet, got %v", err)
	}
}

func TestNormalizeNetWorth(t *testing.T) {
	table := sheets.NewTable("Net_Worth_Log", [][]string{
		{"date", "account", "category", "subcategory", "balance"},
		{"2025-01-31", "Checking", "Asset", "Cash", "$5,000.00"},
		{"2025-01-31", "Card", "liability", "Credit", "1,200"},
		{"2025-01-31", "Card", "Debt", "Credit", "$1.00"},
		{"2025-01-31", "", "Asset", "Cash", "$1.00"},
	})
	got, bad, err := NormalizeNetWorth(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1].Category != core.Liability || !got[1].Balance.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected entries %+v", got)
	}
	if len(bad) != 2 || bad[0].Field != "category" || bad[1].Field != "account" {
		t.Fatalf("unexpected malformed rows %+v", bad)
	}
}

func TestMalformedRowErrorMessage(t *testing.T) {
	e := &MalformedRowError{Sheet: "Transaction_Log", Row: 4, Field: "amount", Value: "x", Reason: "invalid amount"}
	if e.Error() != `Transaction_Log row 4: amount "x": invalid amount` {
		t.Fatalf("unexpected message %q", e.Error())
	}
}
