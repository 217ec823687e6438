// Package aggregate reshapes ordered rows into the derived series the
// dashboard renders. Every function is pure: empty input gives empty
// output and no computation divides by zero.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/period"
)

// Point is one (period, metric, key) value of a derived series.
type Point struct {
	Period string          `json:"period"`
	Start  core.Date       `json:"start"`
	Metric string          `json:"metric"`
	Key    string          `json:"key,omitempty"`
	Value  decimal.Decimal `json:"value"`
}

// Series is ordered by period start, then key.
type Series []Point

// Share is a group's sum and its fraction of the grand total.
type Share struct {
	Key   string          `json:"key"`
	Value decimal.Decimal `json:"value"`
	Share decimal.Decimal `json:"share"`
}

// DayPoint is a running total keyed by day of month.
type DayPoint struct {
	Day   int             `json:"day"`
	Date  core.Date       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Total sums value over rows.
func Total[T any](rows []T, value func(T) decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(value(r))
	}
	return sum
}

// ShareOfTotal groups rows by key, sums value per group and computes each
// group's share of the grand total. Groups keep first-appearance order.
// When the grand total is zero every share is zero.
func ShareOfTotal[T any](rows []T, key func(T) string, value func(T) decimal.Decimal) []Share {
	if len(rows) == 0 {
		return []Share{}
	}
	index := make(map[string]int)
	out := make([]Share, 0)
	total := decimal.Zero
	for _, r := range rows {
		k := key(r)
		v := value(r)
		total = total.Add(v)
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Share{Key: k, Value: decimal.Zero})
		}
		out[i].Value = out[i].Value.Add(v)
	}
	for i := range out {
		if total.IsZero() {
			out[i].Share = decimal.Zero
			continue
		}
		out[i].Share = out[i].Value.Div(total)
	}
	return out
}

// Cumulative sorts rows by date (stable), computes a running sum and keys it
// by day of month. When several rows fall on the same day only the last
// running value for that day is kept.
func Cumulative[T any](rows []T, date func(T) core.Date, value func(T) decimal.Decimal) []DayPoint {
	sorted := append([]T(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return date(sorted[i]).Before(date(sorted[j]))
	})

	out := make([]DayPoint, 0, len(sorted))
	running := decimal.Zero
	for _, r := range sorted {
		d := date(r)
		running = running.Add(value(r))
		if n := len(out); n > 0 && out[n-1].Date.Equal(d) {
			out[n-1].Value = running
			continue
		}
		out = append(out, DayPoint{Day: d.Day(), Date: d, Value: running})
	}
	return out
}

// ByPeriod buckets rows with the period resolver and sums value per
// (bucket, secondary key). secondary may be nil. Output is ordered by bucket
// start date and then key, never by label text.
func ByPeriod[T any](rows []T, g period.Granularity, metric string, date func(T) core.Date, value func(T) decimal.Decimal, secondary func(T) string) Series {
	type groupKey struct {
		start string
		key   string
	}
	index := make(map[groupKey]int)
	out := make(Series, 0)
	for _, r := range rows {
		b := period.Resolve(date(r), g)
		k := ""
		if secondary != nil {
			k = secondary(r)
		}
		gk := groupKey{start: b.Start.String(), key: k}
		i, ok := index[gk]
		if !ok {
			i = len(out)
			index[gk] = i
			out = append(out, Point{Period: b.Label, Start: b.Start, Metric: metric, Key: k, Value: decimal.Zero})
		}
		out[i].Value = out[i].Value.Add(value(r))
	}
	sortSeries(out)
	return out
}

// CashFlow inner-joins income and expense series on period label, negates
// the expenses and sums. Periods missing from either side are dropped.
func CashFlow(income, expenses Series) Series {
	spent := make(map[string]decimal.Decimal)
	for _, p := range expenses {
		spent[p.Period] = spent[p.Period].Add(p.Value)
	}
	earned := make(map[string]int)
	out := make(Series, 0)
	for _, p := range income {
		exp, ok := spent[p.Period]
		if !ok {
			continue
		}
		if i, seen := earned[p.Period]; seen {
			out[i].Value = out[i].Value.Add(p.Value)
			continue
		}
		earned[p.Period] = len(out)
		out = append(out, Point{Period: p.Period, Start: p.Start, Metric: "cash_flow", Value: p.Value.Add(exp.Neg())})
	}
	sortSeries(out)
	return out
}

func sortSeries(s Series) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].Start.Equal(s[j].Start) {
			return s[i].Start.Before(s[j].Start)
		}
		return s[i].Key < s[j].Key
	})
}
