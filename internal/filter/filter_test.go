package filter

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestBuildEmptySpec(t *testing.T) {
	for _, kind := range []Kind{KindTransaction, KindNetWorth} {
		p, err := Build(Spec{}, kind)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", kind, err)
		}
		if !p.IsEmpty() || p.Where() != "" || len(p.Args) != 0 {
			t.Fatalf("%s: expected empty predicate, got %+v", kind, p)
		}
	}
}

func TestBuildPartialAmount(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
	}{
		{"amount only", Spec{Amount: amount("10")}},
		{"operator only", Spec{AmountOp: OpGT}},
		{"with other fields", Spec{Merchant: "Grocer", AmountOp: OpEQ}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.spec, KindTransaction)
			if !errors.Is(err, ErrInvalidFilterCombination) {
				t.Fatalf("expected ErrInvalidFilterCombination, got %v", err)
			}
		})
	}
}

func TestBuildUnknownOperator(t *testing.T) {
	_, err := Build(Spec{Amount: amount("10"), AmountOp: "ne"}, KindTransaction)
	if !errors.Is(err, ErrUnknownOperator) {
		t.Fatalf("expected ErrUnknownOperator, got %v", err)
	}
}

func TestBuildTransactionPredicate(t *testing.T) {
	spec := Spec{
		StartDate: core.NewDate(2024, 2, 1),
		EndDate:   core.NewDate(2024, 2, 29),
		Merchant:  "O'Brien's; DROP TABLE transactions",
		Group:     "Expenses",
		Amount:    amount("50.25"),
		AmountOp:  OpGTE,
	}
	p, err := Build(spec, KindTransaction)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	wantClause := "date >= ? AND date <= ? AND merchant = ? AND txn_group = ? AND CAST(amount AS REAL) >= CAST(? AS REAL)"
	if p.Clause != wantClause {
		t.Fatalf("clause mismatch\n got: %s\nwant: %s", p.Clause, wantClause)
	}
	wantArgs := []any{"2024-02-01", "2024-02-29", spec.Merchant, "Expenses", "50.25"}
	if !reflect.DeepEqual(p.Args, wantArgs) {
		t.Fatalf("args mismatch: got %v want %v", p.Args, wantArgs)
	}
}

func TestAmountBoundAsDecimalText(t *testing.T) {
	p, err := Build(Spec{Amount: amount("1234567890123456789.07"), AmountOp: OpEQ}, KindTransaction)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if p.Clause != "CAST(amount AS REAL) = CAST(? AS REAL)" {
		t.Fatalf("clause %q", p.Clause)
	}
	if len(p.Args) != 1 || p.Args[0] != "1234567890123456789.07" {
		t.Fatalf("expected the exact decimal text, got %#v", p.Args)
	}
}

func TestOperatorTable(t *testing.T) {
	want := map[Op]string{OpLT: "<", OpLTE: "<=", OpEQ: "=", OpGTE: ">=", OpGT: ">"}
	for op, sym := range want {
		got, err := op.Comparator()
		if err != nil || got != sym {
			t.Fatalf("%s: expected %s, got %s (%v)", op, sym, got, err)
		}
		parsed, err := ParseOp(sym)
		if err != nil || parsed != op {
			t.Fatalf("ParseOp(%q) = %s, %v", sym, parsed, err)
		}
	}
	if _, err := ParseOp("!="); !errors.Is(err, ErrUnknownOperator) {
		t.Fatalf("expected ErrUnknownOperator, got %v", err)
	}
}

func TestBuildNetWorthRejectsTransactionFields(t *testing.T) {
	cases := []Spec{
		{Merchant: "x"},
		{Group: "Income"},
		{Amount: amount("1"), AmountOp: OpLT},
	}
	for _, spec := range cases {
		if _, err := Build(spec, KindNetWorth); !errors.Is(err, ErrFieldNotApplicable) {
			t.Fatalf("%+v: expected ErrFieldNotApplicable, got %v", spec, err)
		}
	}

	p, err := Build(Spec{Account: "Checking", Category: "Asset"}, KindNetWorth)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if p.Clause != "category = ? AND account = ?" {
		t.Fatalf("unexpected clause %q", p.Clause)
	}
}

func TestPredicateAnd(t *testing.T) {
	p := Predicate{}.And("category = ?", "Asset")
	if p.Where() != " WHERE category = ?" {
		t.Fatalf("unexpected where %q", p.Where())
	}
	q := p.And("date = ?", "2025-01-01")
	if q.Clause != "category = ? AND date = ?" || len(q.Args) != 2 || len(p.Args) != 1 {
		t.Fatalf("unexpected predicate %+v (base %+v)", q, p)
	}
}
