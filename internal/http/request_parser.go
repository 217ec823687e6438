// This file turns query strings into filter specs and report queries. Every
// parse error wraps errBadRequest so handlers can answer 400 uniformly.

package http

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/filter"
	"finboard/internal/period"
	"finboard/internal/services"
	"finboard/internal/storage"
)

var errBadRequest = errors.New("bad request")

const (
	defaultGranularity = period.Monthly
	defaultPeriods     = 6
	maxLimit           = 10000
)

// ParseFilterSpec reads the optional filter parameters. Empty values count
// as absent. The amount pair is validated later by filter.Build.
func ParseFilterSpec(q url.Values) (filter.Spec, error) {
	var (
		spec filter.Spec
		err  error
	)
	if spec.StartDate, err = parseDateParam(q, filter.FieldStartDate); err != nil {
		return spec, err
	}
	if spec.EndDate, err = parseDateParam(q, filter.FieldEndDate); err != nil {
		return spec, err
	}
	if !spec.StartDate.IsZero() && !spec.EndDate.IsZero() && spec.EndDate.Before(spec.StartDate) {
		return spec, fmt.Errorf("%w: end_date is before start_date", errBadRequest)
	}

	spec.Merchant = queryValue(q, filter.FieldMerchant)
	spec.Group = queryValue(q, filter.FieldGroup)
	spec.Category = queryValue(q, filter.FieldCategory)
	spec.Subcategory = queryValue(q, filter.FieldSubcategory)
	spec.Account = queryValue(q, filter.FieldAccount)

	if v := queryValue(q, filter.FieldAmount); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return spec, fmt.Errorf("%w: invalid amount %q", errBadRequest, v)
		}
		spec.Amount = &amount
	}
	if v := queryValue(q, "amount_op"); v != "" {
		op, err := filter.ParseOp(v)
		if err != nil {
			return spec, err
		}
		spec.AmountOp = op
	}
	return spec, nil
}

// ParseQueryOptions reads the optional order ("asc", "desc") and limit.
func ParseQueryOptions(q url.Values) (storage.Options, error) {
	var opts storage.Options
	switch strings.ToLower(queryValue(q, "order")) {
	case "":
	case "asc":
		opts.Order = storage.DateAsc
	case "desc":
		opts.Order = storage.DateDesc
	default:
		return opts, fmt.Errorf("%w: order must be asc or desc", errBadRequest)
	}
	if v := queryValue(q, "limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			return opts, fmt.Errorf("%w: limit must be between 1 and %d", errBadRequest, maxLimit)
		}
		opts.Limit = n
	}
	return opts, nil
}

// ParseSpendingQuery reads year, month and category. The year defaults to
// today's; a missing month selects the whole year.
func ParseSpendingQuery(q url.Values, today core.Date) (services.SpendingQuery, error) {
	query := services.SpendingQuery{Year: today.Year(), Category: queryValue(q, "category")}
	var err error
	if query.Year, err = parseIntParam(q, "year", today.Year()); err != nil {
		return query, err
	}
	if query.Month, err = parseIntParam(q, "month", 0); err != nil {
		return query, err
	}
	return query, query.Validate()
}

// ParsePeriodsQuery reads granularity and periods, defaulting to six months.
func ParsePeriodsQuery(q url.Values, today core.Date) (services.PeriodsQuery, error) {
	query := services.PeriodsQuery{Granularity: defaultGranularity, Today: today}
	var err error
	if query.Granularity, err = parseGranularity(q); err != nil {
		return query, err
	}
	if query.Periods, err = parseIntParam(q, "periods", defaultPeriods); err != nil {
		return query, err
	}
	if query.Periods < 1 {
		return query, fmt.Errorf("%w: %d", period.ErrInvalidLookback, query.Periods)
	}
	return query, nil
}

// ParseToday reads the optional as_of date, used to view reports as of a
// past day. Defaults to now.
func ParseToday(q url.Values, now core.Date) (core.Date, error) {
	d, err := parseDateParam(q, "as_of")
	if err != nil || d.IsZero() {
		return now, err
	}
	return d, nil
}

func parseGranularity(q url.Values) (period.Granularity, error) {
	v := queryValue(q, "granularity")
	if v == "" {
		return defaultGranularity, nil
	}
	return period.ParseGranularity(v)
}

func parseDateParam(q url.Values, key string) (core.Date, error) {
	v := queryValue(q, key)
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: invalid %s %q, want YYYY-MM-DD", errBadRequest, key, v)
	}
	return d, nil
}

func parseIntParam(q url.Values, key string, def int) (int, error) {
	v := queryValue(q, key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, key, v)
	}
	return n, nil
}

func queryValue(q url.Values, key string) string {
	return sanitizeInput(q.Get(key))
}
