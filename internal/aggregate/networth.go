package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/period"
)

var hundred = decimal.NewFromInt(100)

// NetWorth is the asset and liability position at one date.
type NetWorth struct {
	Date        core.Date       `json:"date"`
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	Net         decimal.Decimal `json:"net"`
}

// NetWorthDelta computes assets minus liabilities at the most recent date of
// the aggregated (date, category) rows. ok is false when rows is empty.
func NetWorthDelta(rows []core.NetWorthAggregate) (NetWorth, bool) {
	if len(rows) == 0 {
		return NetWorth{Assets: decimal.Zero, Liabilities: decimal.Zero, Net: decimal.Zero}, false
	}
	latest := rows[0].Date
	for _, r := range rows[1:] {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return positionAt(rows, latest), true
}

func positionAt(rows []core.NetWorthAggregate, d core.Date) NetWorth {
	nw := NetWorth{Date: d, Assets: decimal.Zero, Liabilities: decimal.Zero}
	for _, r := range rows {
		if !r.Date.Equal(d) {
			continue
		}
		switch r.Category {
		case core.Asset:
			nw.Assets = nw.Assets.Add(r.Balance.Decimal)
		case core.Liability:
			nw.Liabilities = nw.Liabilities.Add(r.Balance.Decimal)
		}
	}
	nw.Net = nw.Assets.Sub(nw.Liabilities)
	return nw
}

// TrendPoint is the net worth of one period and its change relative to the
// first period of the series, in percent.
type TrendPoint struct {
	Period    string          `json:"period"`
	Start     core.Date       `json:"start"`
	NetWorth  decimal.Decimal `json:"net_worth"`
	ChangePct decimal.Decimal `json:"change_pct"`
}

// NetWorthTrend computes net worth per recorded date, sums it per period
// bucket and reports each bucket's percent change against the first one.
// The change is zero when the first bucket is zero.
func NetWorthTrend(rows []core.NetWorthAggregate, g period.Granularity) []TrendPoint {
	daily := make([]NetWorth, 0)
	seen := make(map[string]bool)
	for _, r := range rows {
		if seen[r.Date.String()] {
			continue
		}
		seen[r.Date.String()] = true
		daily = append(daily, positionAt(rows, r.Date))
	}

	series := ByPeriod(daily, g, "net_worth",
		func(n NetWorth) core.Date { return n.Date },
		func(n NetWorth) decimal.Decimal { return n.Net },
		nil)

	out := make([]TrendPoint, 0, len(series))
	for _, p := range series {
		out = append(out, TrendPoint{Period: p.Period, Start: p.Start, NetWorth: p.Value, ChangePct: decimal.Zero})
	}
	if len(out) == 0 || out[0].NetWorth.IsZero() {
		return out
	}
	base := out[0].NetWorth
	for i := range out {
		out[i].ChangePct = out[i].NetWorth.Sub(base).Div(base).Mul(hundred).Round(2)
	}
	return out
}

// Allocation reports, for every month, each subcategory's share of the
// category's total over that month. Rows recorded on several dates of one
// month are summed together. Output is ordered by month then subcategory.
func Allocation(details []core.NetWorthEntry, category core.NetWorthCategory) Series {
	byMonth := make(map[string][]core.NetWorthEntry)
	var buckets []period.Bucket
	for _, e := range details {
		if e.Category != category {
			continue
		}
		b := period.Resolve(e.Date, period.Monthly)
		k := b.Start.String()
		if _, ok := byMonth[k]; !ok {
			buckets = append(buckets, b)
		}
		byMonth[k] = append(byMonth[k], e)
	}

	out := make(Series, 0)
	for _, b := range buckets {
		shares := ShareOfTotal(byMonth[b.Start.String()],
			func(e core.NetWorthEntry) string { return e.Subcategory },
			func(e core.NetWorthEntry) decimal.Decimal { return e.Balance.Decimal })
		for _, s := range shares {
			out = append(out, Point{Period: b.Label, Start: b.Start, Metric: "allocation", Key: s.Key, Value: s.Share})
		}
	}
	sortSeries(out)
	return out
}

// MerchantCount is how often a merchant appears and how much was spent there.
type MerchantCount struct {
	Merchant string          `json:"merchant"`
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

// TopMerchants returns the n most frequent merchants by transaction count.
// Ties are broken by merchant name.
func TopMerchants(rows []core.Transaction, n int) []MerchantCount {
	index := make(map[string]int)
	all := make([]MerchantCount, 0)
	for _, r := range rows {
		i, ok := index[r.Merchant]
		if !ok {
			i = len(all)
			index[r.Merchant] = i
			all = append(all, MerchantCount{Merchant: r.Merchant, Total: decimal.Zero})
		}
		all[i].Count++
		all[i].Total = all[i].Total.Add(r.Amount.Decimal)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Merchant < all[j].Merchant
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}
