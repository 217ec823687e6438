package http

import (
	"errors"
	"net/url"
	"testing"

	"finboard/internal/core"
	"finboard/internal/filter"
	"finboard/internal/period"
	"finboard/internal/services"
	"finboard/internal/storage"
)

func TestParseFilterSpec(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		check   func(t *testing.T, s filter.Spec)
		wantErr error
	}{
		{
			name:  "empty",
			query: "",
			check: func(t *testing.T, s filter.Spec) {
				if !s.IsEmpty() {
					t.Fatalf("expected empty spec, got %+v", s)
				}
			},
		},
		{
			name:  "blank values are absent",
			query: "category=&merchant=%20%20",
			check: func(t *testing.T, s filter.Spec) {
				if !s.IsEmpty() {
					t.Fatalf("expected empty spec, got %+v", s)
				}
			},
		},
		{
			name:  "all fields",
			query: "start_date=2025-01-01&end_date=2025-01-31&merchant=Cafe&group=Expenses&category=Food&subcategory=Dining&account=Card&amount=12.5&amount_op=%3C%3D",
			check: func(t *testing.T, s filter.Spec) {
				if s.StartDate.String() != "2025-01-01" || s.EndDate.String() != "2025-01-31" {
					t.Fatalf("dates %s..%s", s.StartDate, s.EndDate)
				}
				if s.Merchant != "Cafe" || s.Group != "Expenses" || s.Category != "Food" || s.Subcategory != "Dining" || s.Account != "Card" {
					t.Fatalf("strings %+v", s)
				}
				if s.Amount == nil || s.Amount.String() != "12.5" || s.AmountOp != filter.OpLTE {
					t.Fatalf("amount %v %q", s.Amount, s.AmountOp)
				}
			},
		},
		{
			name:  "control characters stripped",
			query: "merchant=Caf%0Ae",
			check: func(t *testing.T, s filter.Spec) {
				if s.Merchant != "Cafe" {
					t.Fatalf("merchant=%q", s.Merchant)
				}
			},
		},
		{name: "bad start date", query: "start_date=2025-13-01", wantErr: errBadRequest},
		{name: "inverted range", query: "start_date=2025-02-01&end_date=2025-01-31", wantErr: errBadRequest},
		{name: "bad amount", query: "amount=1,000", wantErr: errBadRequest},
		{name: "unknown operator", query: "amount=1&amount_op=like", wantErr: filter.ErrUnknownOperator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("parse query: %v", err)
			}
			spec, err := ParseFilterSpec(q)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, spec)
		})
	}
}

func TestParseQueryOptions(t *testing.T) {
	tests := []struct {
		query   string
		want    storage.Options
		wantErr bool
	}{
		{query: "", want: storage.Options{}},
		{query: "order=ASC", want: storage.Options{Order: storage.DateAsc}},
		{query: "order=desc&limit=5", want: storage.Options{Order: storage.DateDesc, Limit: 5}},
		{query: "limit=10000", want: storage.Options{Limit: 10000}},
		{query: "limit=10001", wantErr: true},
		{query: "limit=-1", wantErr: true},
		{query: "order=random", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := ParseQueryOptions(q)
			if tt.wantErr {
				if !errors.Is(err, errBadRequest) {
					t.Fatalf("expected bad request, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %+v, %v; want %+v", got, err, tt.want)
			}
		})
	}
}

func TestParseSpendingQuery(t *testing.T) {
	today := core.NewDate(2025, 2, 15)

	q, _ := url.ParseQuery("")
	got, err := ParseSpendingQuery(q, today)
	if err != nil || got.Year != 2025 || got.Month != 0 {
		t.Fatalf("defaults: %+v %v", got, err)
	}

	q, _ = url.ParseQuery("year=2024&month=7&category=Food")
	got, err = ParseSpendingQuery(q, today)
	if err != nil || got != (services.SpendingQuery{Year: 2024, Month: 7, Category: "Food"}) {
		t.Fatalf("explicit: %+v %v", got, err)
	}

	q, _ = url.ParseQuery("month=0")
	if _, err := ParseSpendingQuery(q, today); err != nil {
		t.Fatalf("month=0 selects the whole year, got %v", err)
	}

	q, _ = url.ParseQuery("month=13")
	if _, err := ParseSpendingQuery(q, today); !errors.Is(err, services.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestParsePeriodsQuery(t *testing.T) {
	today := core.NewDate(2025, 2, 15)

	q, _ := url.ParseQuery("")
	got, err := ParsePeriodsQuery(q, today)
	if err != nil || got.Granularity != period.Monthly || got.Periods != defaultPeriods || got.Today != today {
		t.Fatalf("defaults: %+v %v", got, err)
	}

	q, _ = url.ParseQuery("granularity=Quarterly&periods=4")
	got, err = ParsePeriodsQuery(q, today)
	if err != nil || got.Granularity != period.Quarterly || got.Periods != 4 {
		t.Fatalf("explicit: %+v %v", got, err)
	}

	q, _ = url.ParseQuery("granularity=hourly")
	if _, err := ParsePeriodsQuery(q, today); !errors.Is(err, period.ErrInvalidGranularity) {
		t.Fatalf("expected ErrInvalidGranularity, got %v", err)
	}

	q, _ = url.ParseQuery("periods=0")
	if _, err := ParsePeriodsQuery(q, today); !errors.Is(err, period.ErrInvalidLookback) {
		t.Fatalf("expected ErrInvalidLookback, got %v", err)
	}
}

func TestParseToday(t *testing.T) {
	now := core.NewDate(2025, 2, 15)

	q, _ := url.ParseQuery("")
	if d, err := ParseToday(q, now); err != nil || d != now {
		t.Fatalf("default: %s %v", d, err)
	}
	q, _ = url.ParseQuery("as_of=2024-12-31")
	if d, err := ParseToday(q, now); err != nil || d.String() != "2024-12-31" {
		t.Fatalf("as_of: %s %v", d, err)
	}
	q, _ = url.ParseQuery("as_of=soon")
	if _, err := ParseToday(q, now); !errors.Is(err, errBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}
