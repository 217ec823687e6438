package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/filter"
)

var (
	ErrClosed       = errors.New("store closed")
	ErrUnknownField = errors.New("unknown field")
)

// Order selects the row order of a query. The zero value is storage order,
// i.e. the order rows were ingested in.
type Order int

const (
	StorageOrder Order = iota
	DateAsc
	DateDesc
)

func (o Order) clause() string {
	switch o {
	case DateAsc:
		return " ORDER BY date ASC, id ASC"
	case DateDesc:
		return " ORDER BY date DESC, id DESC"
	}
	return " ORDER BY id"
}

// Options tunes a row query. A zero Limit means no limit.
type Options struct {
	Order Order
	Limit int
}

func (o Options) suffix() (string, []any) {
	q := o.Order.clause()
	if o.Limit > 0 {
		return q + " LIMIT ?", []any{o.Limit}
	}
	return q, nil
}

// distinctColumns are the transaction fields the option lists are built from.
var distinctColumns = map[string]string{
	"year":        "substr(date, 1, 4)",
	"group":       "txn_group",
	"category":    "category",
	"subcategory": "subcategory",
	"account":     "account",
	"merchant":    "merchant",
}

// View pins the current snapshot for the duration of fn. fn receives nil when
// nothing has been published; Snapshot queries on nil return empty results.
func (s *Store) View(fn func(*Snapshot) error) error {
	snap := s.Acquire()
	defer s.Release(snap)
	return fn(snap)
}

// Transactions runs pred against the current snapshot.
func (s *Store) Transactions(ctx context.Context, pred filter.Predicate, opts Options) ([]core.Transaction, error) {
	snap := s.Acquire()
	defer s.Release(snap)
	return snap.Transactions(ctx, pred, opts)
}

// NetWorth runs pred against the detailed net worth rows.
func (s *Store) NetWorth(ctx context.Context, pred filter.Predicate, opts Options) ([]core.NetWorthEntry, error) {
	snap := s.Acquire()
	defer s.Release(snap)
	return snap.NetWorth(ctx, pred, opts)
}

// NetWorthAggregated returns balances summed per (date, category).
func (s *Store) NetWorthAggregated(ctx context.Context, pred filter.Predicate) ([]core.NetWorthAggregate, error) {
	snap := s.Acquire()
	defer s.Release(snap)
	return snap.NetWorthAggregated(ctx, pred)
}

// Distinct lists the distinct non-empty values of a transaction field.
func (s *Store) Distinct(ctx context.Context, field string, pred filter.Predicate) ([]string, error) {
	snap := s.Acquire()
	defer s.Release(snap)
	return snap.Distinct(ctx, field, pred)
}

// LatestNetWorthDate returns the most recent net worth date, if any.
func (s *Store) LatestNetWorthDate(ctx context.Context) (core.Date, bool, error) {
	snap := s.Acquire()
	defer s.Release(snap)
	return snap.LatestNetWorthDate(ctx)
}

func (s *Snapshot) Transactions(ctx context.Context, pred filter.Predicate, opts Options) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0)
	if s == nil {
		return out, nil
	}
	suffix, extra := opts.suffix()
	query := "SELECT date, merchant, amount, txn_group, category, subcategory, account FROM transactions" +
		pred.Where() + suffix
	rows, err := s.db.QueryContext(ctx, query, append(append([]any(nil), pred.Args...), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t            core.Transaction
			date, amount string
			group        string
		)
		if err := rows.Scan(&date, &t.Merchant, &amount, &group, &t.Category, &t.Subcategory, &t.Account); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, err
		}
		if t.Amount, err = parseMoney(amount); err != nil {
			return nil, err
		}
		t.Group = core.Group(group)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (s *Snapshot) NetWorth(ctx context.Context, pred filter.Predicate, opts Options) ([]core.NetWorthEntry, error) {
	out := make([]core.NetWorthEntry, 0)
	if s == nil {
		return out, nil
	}
	suffix, extra := opts.suffix()
	query := "SELECT date, account, category, subcategory, balance FROM net_worth" + pred.Where() + suffix
	rows, err := s.db.QueryContext(ctx, query, append(append([]any(nil), pred.Args...), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("query net worth: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                       core.NetWorthEntry
			date, category, balance string
		)
		if err := rows.Scan(&date, &e.Account, &category, &e.Subcategory, &balance); err != nil {
			return nil, fmt.Errorf("scan net worth: %w", err)
		}
		if e.Date, err = core.ParseDate(date); err != nil {
			return nil, err
		}
		if e.Balance, err = parseMoney(balance); err != nil {
			return nil, err
		}
		e.Category = core.NetWorthCategory(category)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate net worth: %w", err)
	}
	return out, nil
}

// NetWorthAggregated groups by (date, category) summing balance, ordered by
// date then category ascending. Sums are computed in exact decimal after the
// ordered scan so balances never pass through floating point.
func (s *Snapshot) NetWorthAggregated(ctx context.Context, pred filter.Predicate) ([]core.NetWorthAggregate, error) {
	out := make([]core.NetWorthAggregate, 0)
	if s == nil {
		return out, nil
	}
	query := "SELECT date, category, balance FROM net_worth" + pred.Where() + " ORDER BY date ASC, category ASC, id ASC"
	rows, err := s.db.QueryContext(ctx, query, pred.Args...)
	if err != nil {
		return nil, fmt.Errorf("query net worth aggregate: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date, category, balance string
		if err := rows.Scan(&date, &category, &balance); err != nil {
			return nil, fmt.Errorf("scan net worth aggregate: %w", err)
		}
		d, err := core.ParseDate(date)
		if err != nil {
			return nil, err
		}
		b, err := parseMoney(balance)
		if err != nil {
			return nil, err
		}
		cat := core.NetWorthCategory(category)
		if n := len(out); n > 0 && out[n-1].Date.Equal(d) && out[n-1].Category == cat {
			out[n-1].Balance = core.NewMoney(out[n-1].Balance.Add(b.Decimal))
			continue
		}
		out = append(out, core.NetWorthAggregate{Date: d, Category: cat, Balance: b})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate net worth aggregate: %w", err)
	}
	return out, nil
}

func (s *Snapshot) Distinct(ctx context.Context, field string, pred filter.Predicate) ([]string, error) {
	column, ok := distinctColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	out := make([]string, 0)
	if s == nil {
		return out, nil
	}
	order := " ORDER BY 1 ASC"
	if field == "year" {
		order = " ORDER BY 1 DESC"
	}
	query := "SELECT DISTINCT " + column + " FROM transactions" + pred.And(column+" <> ''").Where() + order
	rows, err := s.db.QueryContext(ctx, query, pred.Args...)
	if err != nil {
		return nil, fmt.Errorf("query distinct %s: %w", field, err)
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct %s: %w", field, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Snapshot) LatestNetWorthDate(ctx context.Context) (core.Date, bool, error) {
	if s == nil {
		return core.Date{}, false, nil
	}
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(date) FROM net_worth").Scan(&latest); err != nil {
		return core.Date{}, false, fmt.Errorf("query latest net worth date: %w", err)
	}
	if !latest.Valid {
		return core.Date{}, false, nil
	}
	d, err := core.ParseDate(latest.String)
	if err != nil {
		return core.Date{}, false, err
	}
	return d, true, nil
}

func parseMoney(s string) (core.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("stored amount %q: %w", s, err)
	}
	return core.NewMoney(d), nil
}
