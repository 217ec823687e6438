// Package period resolves reporting windows and per-record period buckets
// for monthly, quarterly and yearly granularities.
package period

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"finboard/internal/core"
)

var (
	ErrInvalidGranularity = errors.New("invalid granularity")
	ErrInvalidLookback    = errors.New("lookback must be at least 1 period")
)

type Granularity int

const (
	Monthly Granularity = iota
	Quarterly
	Yearly
)

func (g Granularity) String() string {
	switch g {
	case Monthly:
		return "Monthly"
	case Quarterly:
		return "Quarterly"
	case Yearly:
		return "Yearly"
	}
	return fmt.Sprintf("Granularity(%d)", int(g))
}

// months returns the span of one period in months.
func (g Granularity) months() int {
	switch g {
	case Quarterly:
		return 3
	case Yearly:
		return 12
	}
	return 1
}

// ParseGranularity accepts "monthly", "quarterly" and "yearly" in any case,
// plus their single letter forms.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month", "m":
		return Monthly, nil
	case "quarterly", "quarter", "q":
		return Quarterly, nil
	case "yearly", "year", "y":
		return Yearly, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
}

// Bucket identifies the period a record falls in.
type Bucket struct {
	Label string
	Start core.Date
}

// Start returns the first day of the period containing d.
func Start(d core.Date, g Granularity) core.Date {
	switch g {
	case Quarterly:
		q := (int(d.Month()) - 1) / 3
		return core.NewDate(d.Year(), q*3+1, 1)
	case Yearly:
		return core.NewDate(d.Year(), 1, 1)
	}
	return core.NewDate(d.Year(), int(d.Month()), 1)
}

// Resolve assigns d to its bucket. Labels are "Jan 2006", "Q1 2025" and "2025".
func Resolve(d core.Date, g Granularity) Bucket {
	start := Start(d, g)
	var label string
	switch g {
	case Quarterly:
		label = fmt.Sprintf("Q%d %d", (int(start.Month())-1)/3+1, start.Year())
	case Yearly:
		label = fmt.Sprintf("%d", start.Year())
	default:
		label = start.Format("Jan 2006")
	}
	return Bucket{Label: label, Start: start}
}

// WindowStart returns the first day of the period n-1 periods before the one
// containing today, so n=3 monthly covers this month and the two prior.
func WindowStart(today core.Date, g Granularity, n int) (core.Date, error) {
	if n < 1 {
		return core.Date{}, fmt.Errorf("%w: got %d", ErrInvalidLookback, n)
	}
	start := Start(today, g)
	// AddDate normalizes month underflow into the previous years.
	return core.Date{Time: start.AddDate(0, -(n-1)*g.months(), 0)}, nil
}

// MonthBounds returns the first and last day of the given month.
func MonthBounds(year int, month time.Month) (core.Date, core.Date) {
	first := core.NewDate(year, int(month), 1)
	last := core.Date{Time: first.AddDate(0, 1, -1)}
	return first, last
}

// YearBounds returns January 1st and December 31st of year.
func YearBounds(year int) (core.Date, core.Date) {
	return core.NewDate(year, 1, 1), core.NewDate(year, 12, 31)
}

// PreviousMonth returns the year and month before the one containing today.
func PreviousMonth(today core.Date) (int, time.Month) {
	prev := Start(today, Monthly).AddDate(0, -1, 0)
	return prev.Year(), prev.Month()
}
