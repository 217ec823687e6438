package period

import (
	"errors"
	"testing"
	"time"

	"finboard/internal/core"
)

func TestWindowStart(t *testing.T) {
	cases := []struct {
		name  string
		today core.Date
		g     Granularity
		n     int
		want  core.Date
	}{
		{"current month only", core.NewDate(2025, 5, 17), Monthly, 1, core.NewDate(2025, 5, 1)},
		{"three months", core.NewDate(2025, 5, 17), Monthly, 3, core.NewDate(2025, 3, 1)},
		{"rolls back to december", core.NewDate(2025, 2, 10), Monthly, 3, core.NewDate(2024, 12, 1)},
		{"twelve months", core.NewDate(2025, 1, 31), Monthly, 12, core.NewDate(2024, 2, 1)},
		{"quarters", core.NewDate(2025, 2, 10), Quarterly, 2, core.NewDate(2024, 10, 1)},
		{"quarters across two years", core.NewDate(2025, 8, 1), Quarterly, 8, core.NewDate(2023, 10, 1)},
		{"years", core.NewDate(2025, 6, 30), Yearly, 4, core.NewDate(2022, 1, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := WindowStart(tc.today, tc.g, tc.n)
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestWindowStartInvalidLookback(t *testing.T) {
	if _, err := WindowStart(core.NewDate(2025, 1, 1), Monthly, 0); !errors.Is(err, ErrInvalidLookback) {
		t.Fatalf("expected ErrInvalidLookback, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		d     core.Date
		g     Granularity
		label string
		start core.Date
	}{
		{core.NewDate(2025, 3, 15), Monthly, "Mar 2025", core.NewDate(2025, 3, 1)},
		{core.NewDate(2025, 3, 31), Quarterly, "Q1 2025", core.NewDate(2025, 1, 1)},
		{core.NewDate(2025, 4, 1), Quarterly, "Q2 2025", core.NewDate(2025, 4, 1)},
		{core.NewDate(2024, 12, 31), Quarterly, "Q4 2024", core.NewDate(2024, 10, 1)},
		{core.NewDate(2024, 7, 4), Yearly, "2024", core.NewDate(2024, 1, 1)},
	}
	for _, tc := range cases {
		b := Resolve(tc.d, tc.g)
		if b.Label != tc.label || !b.Start.Equal(tc.start) {
			t.Fatalf("Resolve(%s, %s) = %+v, want %s / %s", tc.d, tc.g, b, tc.label, tc.start)
		}
	}
}

func TestParseGranularity(t *testing.T) {
	for in, want := range map[string]Granularity{"Monthly": Monthly, "QUARTERLY": Quarterly, " yearly ": Yearly} {
		got, err := ParseGranularity(in)
		if err != nil || got != want {
			t.Fatalf("ParseGranularity(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseGranularity("weekly"); !errors.Is(err, ErrInvalidGranularity) {
		t.Fatalf("expected ErrInvalidGranularity, got %v", err)
	}
}

func TestBounds(t *testing.T) {
	first, last := MonthBounds(2024, time.February)
	if first.String() != "2024-02-01" || last.String() != "2024-02-29" {
		t.Fatalf("unexpected month bounds %s..%s", first, last)
	}
	first, last = YearBounds(2023)
	if first.String() != "2023-01-01" || last.String() != "2023-12-31" {
		t.Fatalf("unexpected year bounds %s..%s", first, last)
	}
	y, m := PreviousMonth(core.NewDate(2025, 1, 20))
	if y != 2024 || m != time.December {
		t.Fatalf("expected 2024-12, got %d-%d", y, m)
	}
}
