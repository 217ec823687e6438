package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/aggregate"
	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/filter"
	flog "finboard/internal/log"
	"finboard/internal/period"
	"finboard/internal/storage"
)

const (
	latestExpenses = 5
	topMerchants   = 5
	emptyBatch     = "none"
)

var (
	ErrInvalidMonth = errors.New("month must be between 1 and 12")
	ErrInvalidYear  = errors.New("invalid year")
)

// Viewer pins a snapshot for the duration of fn.
type Viewer interface {
	View(fn func(*storage.Snapshot) error) error
}

// ReportService composes queries and aggregations into the dashboard
// documents. Results are cached per snapshot batch, so a refresh makes every
// cached report unreachable.
type ReportService struct {
	store  Viewer
	cache  *cache.LRUCache[any]
	logger *slog.Logger
}

func NewReportService(store Viewer, reports *cache.LRUCache[any], logger *slog.Logger) *ReportService {
	return &ReportService{
		store:  store,
		cache:  reports,
		logger: flog.WithComponent(logger, flog.ComponentReports),
	}
}

// cached runs build against a pinned snapshot, memoized under the
// snapshot's batch id and the report parameters.
func cached[T any](s *ReportService, name string, params []string, build func(*storage.Snapshot) (T, error)) (T, error) {
	var out T
	err := s.store.View(func(snap *storage.Snapshot) error {
		batch := emptyBatch
		if snap != nil {
			batch = snap.Batch().ID
		}
		if s.cache == nil {
			v, err := build(snap)
			out = v
			return err
		}
		key := cache.Key(append([]string{name, batch}, params...)...)
		v, err := s.cache.GetOrLoad(key, func() (any, error) { return build(snap) })
		if err != nil {
			return err
		}
		out = v.(T)
		return nil
	})
	return out, err
}

// AccountBalance is one account inside a subcategory breakdown.
type AccountBalance struct {
	Account string     `json:"account"`
	Balance core.Money `json:"balance"`
}

// Breakdown is a subcategory's total, share and accounts at one date.
type Breakdown struct {
	Subcategory string           `json:"subcategory"`
	Total       decimal.Decimal  `json:"total"`
	Share       decimal.Decimal  `json:"share"`
	Accounts    []AccountBalance `json:"accounts"`
}

// Dashboard is the landing page document.
type Dashboard struct {
	Today       core.Date            `json:"today"`
	HasNetWorth bool                 `json:"has_net_worth"`
	NetWorth    aggregate.NetWorth   `json:"net_worth"`
	Assets      []Breakdown          `json:"assets"`
	Liabilities []Breakdown          `json:"liabilities"`
	Month       string               `json:"month"`
	Spending    decimal.Decimal      `json:"spending_this_month"`
	Current     []aggregate.DayPoint `json:"current_month"`
	Previous    []aggregate.DayPoint `json:"previous_month"`
	Latest      []core.Transaction   `json:"latest_expenses"`
}

// Dashboard builds the landing page as seen on today.
func (s *ReportService) Dashboard(ctx context.Context, today core.Date) (Dashboard, error) {
	return cached(s, "dashboard", []string{today.String()}, func(snap *storage.Snapshot) (Dashboard, error) {
		return s.dashboard(ctx, snap, today)
	})
}

func (s *ReportService) dashboard(ctx context.Context, snap *storage.Snapshot, today core.Date) (Dashboard, error) {
	d := Dashboard{Today: today, Assets: []Breakdown{}, Liabilities: []Breakdown{}}

	aggregated, err := snap.NetWorthAggregated(ctx, filter.Predicate{})
	if err != nil {
		return d, fmt.Errorf("net worth: %w", err)
	}
	d.NetWorth, d.HasNetWorth = aggregate.NetWorthDelta(aggregated)
	if d.HasNetWorth {
		pred, err := filter.Build(filter.Spec{StartDate: d.NetWorth.Date, EndDate: d.NetWorth.Date}, filter.KindNetWorth)
		if err != nil {
			return d, err
		}
		details, err := snap.NetWorth(ctx, pred, storage.Options{})
		if err != nil {
			return d, fmt.Errorf("net worth details: %w", err)
		}
		d.Assets = breakdown(details, core.Asset)
		d.Liabilities = breakdown(details, core.Liability)
	}

	start, end := period.MonthBounds(today.Year(), today.Month())
	d.Month = period.Resolve(start, period.Monthly).Label
	current, err := expenses(ctx, snap, start, end, storage.Options{})
	if err != nil {
		return d, err
	}
	d.Spending = aggregate.Total(current, amount)
	d.Current = aggregate.Cumulative(current, date, amount)

	py, pm := period.PreviousMonth(today)
	pstart, pend := period.MonthBounds(py, pm)
	previous, err := expenses(ctx, snap, pstart, pend, storage.Options{})
	if err != nil {
		return d, err
	}
	d.Previous = aggregate.Cumulative(previous, date, amount)

	d.Latest = latest(current, latestExpenses)
	return d, nil
}

// latest returns the n most recent rows, newest first. Rows sharing a date
// come out in reverse ingest order, as a descending storage query would.
func latest(rows []core.Transaction, n int) []core.Transaction {
	out := make([]core.Transaction, len(rows))
	for i, t := range rows {
		out[len(rows)-1-i] = t
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// breakdown groups the rows of one category by subcategory, keeping the
// accounts of each.
func breakdown(details []core.NetWorthEntry, category core.NetWorthCategory) []Breakdown {
	rows := make([]core.NetWorthEntry, 0, len(details))
	for _, e := range details {
		if e.Category == category {
			rows = append(rows, e)
		}
	}
	shares := aggregate.ShareOfTotal(rows,
		func(e core.NetWorthEntry) string { return e.Subcategory },
		func(e core.NetWorthEntry) decimal.Decimal { return e.Balance.Decimal })

	out := make([]Breakdown, 0, len(shares))
	for _, sh := range shares {
		b := Breakdown{Subcategory: sh.Key, Total: sh.Value, Share: sh.Share, Accounts: []AccountBalance{}}
		for _, e := range rows {
			if e.Subcategory == sh.Key {
				b.Accounts = append(b.Accounts, AccountBalance{Account: e.Account, Balance: e.Balance})
			}
		}
		sort.SliceStable(b.Accounts, func(i, j int) bool { return b.Accounts[i].Account < b.Accounts[j].Account })
		out = append(out, b)
	}
	return out
}

// SpendingQuery selects the spending page window. Month zero means the
// whole year; an empty Category selects the largest one.
type SpendingQuery struct {
	Year     int
	Month    int
	Category string
}

func (q SpendingQuery) Validate() error {
	if q.Year < 1 || q.Year > 9999 {
		return fmt.Errorf("%w: %d", ErrInvalidYear, q.Year)
	}
	if q.Month < 0 || q.Month > 12 {
		return fmt.Errorf("%w: %d", ErrInvalidMonth, q.Month)
	}
	return nil
}

// Spending is the spending page document.
type Spending struct {
	Period        string                    `json:"period"`
	Start         core.Date                 `json:"start"`
	End           core.Date                 `json:"end"`
	Total         decimal.Decimal           `json:"total"`
	TopMerchants  []aggregate.MerchantCount `json:"top_merchants"`
	Categories    []aggregate.Share         `json:"categories"`
	Category      string                    `json:"category,omitempty"`
	Subcategories []aggregate.Share         `json:"subcategories"`
}

func (s *ReportService) Spending(ctx context.Context, q SpendingQuery) (Spending, error) {
	if err := q.Validate(); err != nil {
		return Spending{}, err
	}
	params := []string{strconv.Itoa(q.Year), strconv.Itoa(q.Month), q.Category}
	return cached(s, "spending", params, func(snap *storage.Snapshot) (Spending, error) {
		return s.spending(ctx, snap, q)
	})
}

func (s *ReportService) spending(ctx context.Context, snap *storage.Snapshot, q SpendingQuery) (Spending, error) {
	var out Spending
	if q.Month == 0 {
		out.Start, out.End = period.YearBounds(q.Year)
		out.Period = period.Resolve(out.Start, period.Yearly).Label
	} else {
		out.Start, out.End = period.MonthBounds(q.Year, time.Month(q.Month))
		out.Period = period.Resolve(out.Start, period.Monthly).Label
	}

	rows, err := expenses(ctx, snap, out.Start, out.End, storage.Options{})
	if err != nil {
		return out, err
	}
	out.Total = aggregate.Total(rows, amount)
	out.TopMerchants = aggregate.TopMerchants(rows, topMerchants)
	out.Categories = aggregate.ShareOfTotal(rows, func(t core.Transaction) string { return t.Category }, amount)

	out.Category = q.Category
	if out.Category == "" {
		out.Category = largest(out.Categories)
	}
	selected := make([]core.Transaction, 0)
	for _, t := range rows {
		if t.Category == out.Category {
			selected = append(selected, t)
		}
	}
	out.Subcategories = aggregate.ShareOfTotal(selected, func(t core.Transaction) string { return t.Subcategory }, amount)
	return out, nil
}

func largest(shares []aggregate.Share) string {
	best := ""
	var top decimal.Decimal
	for i, sh := range shares {
		if i == 0 || sh.Value.GreaterThan(top) {
			best, top = sh.Key, sh.Value
		}
	}
	return best
}

// PeriodsQuery selects the reports page window.
type PeriodsQuery struct {
	Granularity period.Granularity
	Periods     int
	Today       core.Date
}

// Periods is the reports page document.
type Periods struct {
	Granularity string           `json:"granularity"`
	Periods     int              `json:"periods"`
	Start       core.Date        `json:"start"`
	End         core.Date        `json:"end"`
	Income      aggregate.Series `json:"income"`
	Expenses    aggregate.Series `json:"expenses"`
	CashFlow    aggregate.Series `json:"cash_flow"`
	// Per-category series keyed by category, then by "category/subcategory".
	ExpensesByCategory    aggregate.Series `json:"expenses_by_category"`
	ExpensesBySubcategory aggregate.Series `json:"expenses_by_subcategory"`
	IncomeByCategory      aggregate.Series `json:"income_by_category"`
	IncomeBySubcategory   aggregate.Series `json:"income_by_subcategory"`
}

func (s *ReportService) Periods(ctx context.Context, q PeriodsQuery) (Periods, error) {
	start, err := period.WindowStart(q.Today, q.Granularity, q.Periods)
	if err != nil {
		return Periods{}, err
	}
	params := []string{q.Granularity.String(), strconv.Itoa(q.Periods), q.Today.String()}
	return cached(s, "periods", params, func(snap *storage.Snapshot) (Periods, error) {
		return s.periods(ctx, snap, q, start)
	})
}

func (s *ReportService) periods(ctx context.Context, snap *storage.Snapshot, q PeriodsQuery, start core.Date) (Periods, error) {
	out := Periods{Granularity: q.Granularity.String(), Periods: q.Periods, Start: start, End: q.Today}

	pred, err := filter.Build(filter.Spec{StartDate: start, EndDate: q.Today}, filter.KindTransaction)
	if err != nil {
		return out, err
	}
	rows, err := snap.Transactions(ctx, pred, storage.Options{Order: storage.DateAsc})
	if err != nil {
		return out, fmt.Errorf("transactions: %w", err)
	}
	var income, spent []core.Transaction
	for _, t := range rows {
		switch t.Group {
		case core.Income:
			income = append(income, t)
		case core.Expenses:
			spent = append(spent, t)
		}
	}

	g := q.Granularity
	out.Income = aggregate.ByPeriod(income, g, "income", date, amount, nil)
	out.Expenses = aggregate.ByPeriod(spent, g, "expenses", date, amount, nil)
	out.CashFlow = aggregate.CashFlow(out.Income, out.Expenses)
	out.ExpensesByCategory = aggregate.ByPeriod(spent, g, "expenses", date, amount, category)
	out.ExpensesBySubcategory = aggregate.ByPeriod(spent, g, "expenses", date, amount, subcategory)
	out.IncomeByCategory = aggregate.ByPeriod(income, g, "income", date, amount, category)
	out.IncomeBySubcategory = aggregate.ByPeriod(income, g, "income", date, amount, subcategory)
	return out, nil
}

// NetWorthReport is the net worth page document.
type NetWorthReport struct {
	Granularity string                 `json:"granularity"`
	HasNetWorth bool                   `json:"has_net_worth"`
	Current     aggregate.NetWorth     `json:"current"`
	Trend       []aggregate.TrendPoint `json:"trend"`
	Assets      aggregate.Series       `json:"asset_allocation"`
	Liabilities aggregate.Series       `json:"liability_allocation"`
}

func (s *ReportService) NetWorth(ctx context.Context, g period.Granularity) (NetWorthReport, error) {
	return cached(s, "networth", []string{g.String()}, func(snap *storage.Snapshot) (NetWorthReport, error) {
		out := NetWorthReport{Granularity: g.String()}
		aggregated, err := snap.NetWorthAggregated(ctx, filter.Predicate{})
		if err != nil {
			return out, fmt.Errorf("net worth: %w", err)
		}
		details, err := snap.NetWorth(ctx, filter.Predicate{}, storage.Options{Order: storage.DateAsc})
		if err != nil {
			return out, fmt.Errorf("net worth details: %w", err)
		}
		out.Current, out.HasNetWorth = aggregate.NetWorthDelta(aggregated)
		out.Trend = aggregate.NetWorthTrend(aggregated, g)
		out.Assets = aggregate.Allocation(details, core.Asset)
		out.Liabilities = aggregate.Allocation(details, core.Liability)
		return out, nil
	})
}

// expenses returns the Expenses rows between start and end; zero dates are
// left open.
func expenses(ctx context.Context, snap *storage.Snapshot, start, end core.Date, opts storage.Options) ([]core.Transaction, error) {
	pred, err := filter.Build(filter.Spec{StartDate: start, EndDate: end, Group: string(core.Expenses)}, filter.KindTransaction)
	if err != nil {
		return nil, err
	}
	rows, err := snap.Transactions(ctx, pred, opts)
	if err != nil {
		return nil, fmt.Errorf("expenses: %w", err)
	}
	return rows, nil
}

func date(t core.Transaction) core.Date { return t.Date }
func amount(t core.Transaction) decimal.Decimal { return t.Amount.Decimal }
func category(t core.Transaction) string { return t.Category }
func subcategory(t core.Transaction) string { return t.Category + "/" + t.Subcategory }
