package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finboard/internal/core"
	"finboard/internal/filter"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func dataset(id string) Dataset {
	return Dataset{
		Batch: Batch{ID: id, Source: "test", LoadedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		Transactions: []core.Transaction{
			{Date: core.NewDate(2024, 1, 5), Merchant: "Grocer", Amount: core.MustMoney("100"), Group: core.Expenses, Category: "Food", Subcategory: "Groceries", Account: "Card"},
			{Date: core.NewDate(2024, 2, 10), Merchant: "Cafe", Amount: core.MustMoney("50"), Group: core.Expenses, Category: "Food", Subcategory: "Dining", Account: "Card"},
			{Date: core.NewDate(2024, 1, 31), Merchant: "Employer", Amount: core.MustMoney("1234.56"), Group: core.Income, Category: "Salary", Account: "Checking"},
		},
		NetWorth: []core.NetWorthEntry{
			{Date: core.NewDate(2024, 1, 31), Account: "Checking", Category: core.Asset, Subcategory: "Cash", Balance: core.MustMoney("3000")},
			{Date: core.NewDate(2024, 2, 29), Account: "Checking", Category: core.Asset, Subcategory: "Cash", Balance: core.MustMoney("3500")},
			{Date: core.NewDate(2024, 2, 29), Account: "Broker", Category: core.Asset, Subcategory: "Stocks", Balance: core.MustMoney("1500")},
			{Date: core.NewDate(2024, 2, 29), Account: "Card", Category: core.Liability, Subcategory: "Credit", Balance: core.MustMoney("1200")},
			{Date: core.NewDate(2024, 1, 31), Account: "Card", Category: core.Liability, Subcategory: "Credit", Balance: core.MustMoney("800.10")},
		},
	}
}

func TestEmptyStoreReturnsEmptyResults(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	if s.Ready() {
		t.Fatalf("store should not be ready before publish")
	}
	txs, err := s.Transactions(ctx, filter.Predicate{}, Options{})
	if err != nil || txs == nil || len(txs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v, %v", txs, err)
	}
	agg, err := s.NetWorthAggregated(ctx, filter.Predicate{})
	if err != nil || len(agg) != 0 {
		t.Fatalf("expected empty aggregate, got %v, %v", agg, err)
	}
	if _, ok, err := s.LatestNetWorthDate(ctx); ok || err != nil {
		t.Fatalf("expected no latest date, got ok=%v err=%v", ok, err)
	}
}

func TestNoFilterReturnsAllRowsInOrder(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	ds := dataset("b1")
	if _, err := s.Replace(ctx, ds); err != nil {
		t.Fatalf("replace: %v", err)
	}

	pred, err := filter.Build(filter.Spec{}, filter.KindTransaction)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, err := s.Transactions(ctx, pred, Options{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != len(ds.Transactions) {
		t.Fatalf("expected %d rows, got %d", len(ds.Transactions), len(got))
	}
	for i := range got {
		want := ds.Transactions[i]
		if got[i].Merchant != want.Merchant || !got[i].Date.Equal(want.Date) || !got[i].Amount.Equal(want.Amount.Decimal) {
			t.Fatalf("row %d: expected %+v, got %+v", i, want, got[i])
		}
	}
}

func TestStartDateFilter(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	ds := dataset("b1")
	ds.Transactions = ds.Transactions[:2]
	if _, err := s.Replace(ctx, ds); err != nil {
		t.Fatalf("replace: %v", err)
	}

	pred, err := filter.Build(filter.Spec{StartDate: core.NewDate(2024, 2, 1)}, filter.KindTransaction)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, err := s.Transactions(ctx, pred, Options{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Date.String() != "2024-02-10" || got[0].Amount.StringFixed(2) != "50.00" {
		t.Fatalf("expected only the second row, got %+v", got)
	}
}

func TestAmountFilterAndOrdering(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	if _, err := s.Replace(ctx, dataset("b1")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	amt := core.MustMoney("100").Decimal
	pred, err := filter.Build(filter.Spec{Amount: &amt, AmountOp: filter.OpGTE}, filter.KindTransaction)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, err := s.Transactions(ctx, pred, Options{Order: DateDesc, Limit: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Merchant != "Employer" {
		t.Fatalf("expected latest row with amount >= 100, got %+v", got)
	}
}

func TestNetWorthAggregated(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	if _, err := s.Replace(ctx, dataset("b1")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := s.NetWorthAggregated(ctx, filter.Predicate{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []struct {
		date     string
		category core.NetWorthCategory
		balance  string
	}{
		{"2024-01-31", core.Asset, "3000.00"},
		{"2024-01-31", core.Liability, "800.10"},
		{"2024-02-29", core.Asset, "5000.00"},
		{"2024-02-29", core.Liability, "1200.00"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d groups, got %+v", len(want), got)
	}
	for i, w := range want {
		if got[i].Date.String() != w.date || got[i].Category != w.category || got[i].Balance.StringFixed(2) != w.balance {
			t.Fatalf("group %d: expected %+v, got %+v", i, w, got[i])
		}
	}

	latest, ok, err := s.LatestNetWorthDate(ctx)
	if err != nil || !ok || latest.String() != "2024-02-29" {
		t.Fatalf("expected latest 2024-02-29, got %s %v %v", latest, ok, err)
	}
}

func TestDistinct(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	if _, err := s.Replace(ctx, dataset("b1")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	subs, err := s.Distinct(ctx, "subcategory", filter.Predicate{})
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if len(subs) != 2 || subs[0] != "Dining" || subs[1] != "Groceries" {
		t.Fatalf("unexpected subcategories %v", subs)
	}
	years, err := s.Distinct(ctx, "year", filter.Predicate{})
	if err != nil || len(years) != 1 || years[0] != "2024" {
		t.Fatalf("unexpected years %v (%v)", years, err)
	}
	if _, err := s.Distinct(ctx, "amount", filter.Predicate{}); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestPublishRetiresPreviousSnapshot(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()
	if _, err := s.Replace(ctx, dataset("first")); err != nil {
		t.Fatalf("replace first: %v", err)
	}

	pinned := s.Acquire()
	if pinned == nil || pinned.Batch().ID != "first" {
		t.Fatalf("expected pinned first snapshot")
	}

	next := dataset("second")
	next.Transactions = next.Transactions[:1]
	if _, err := s.Replace(ctx, next); err != nil {
		t.Fatalf("replace second: %v", err)
	}

	// The pinned reader still sees the full first dataset.
	old, err := pinned.Transactions(ctx, filter.Predicate{}, Options{})
	if err != nil || len(old) != 3 {
		t.Fatalf("pinned snapshot changed: %d rows, %v", len(old), err)
	}
	fresh, err := s.Transactions(ctx, filter.Predicate{}, Options{})
	if err != nil || len(fresh) != 1 {
		t.Fatalf("expected new snapshot with 1 row, got %d, %v", len(fresh), err)
	}
	firstPath := filepath.Join(dir, "snapshot-first.db")
	if _, err := os.Stat(firstPath); err != nil {
		t.Fatalf("retired snapshot removed while pinned: %v", err)
	}

	s.Release(pinned)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(firstPath); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("retired snapshot file was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if b, ok := s.Batch(); !ok || b.ID != "second" || b.Transactions != 1 {
		t.Fatalf("unexpected current batch %+v", b)
	}
}
