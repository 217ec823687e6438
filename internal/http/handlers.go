package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"finboard/internal/filter"
	flog "finboard/internal/log"
	"finboard/internal/period"
	"finboard/internal/services"
)

// handleHealth performs basic liveness check.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

// handleReady reports ready once a snapshot has been published.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.records.Batch()
	if !ok || !s.records.Ready() {
		NewJSONResponse().
			Status(http.StatusServiceUnavailable).
			Data(map[string]any{"status": "not_ready", "checks": map[string]string{"snapshot": "not loaded"}}).
			Write(w)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"status":    "ready",
		"timestamp": s.now().Format(time.RFC3339),
		"batch":     batch,
		"checks": map[string]any{
			"snapshot": "ok",
			"rate_limiter": map[string]any{
				"active_clients": s.rateLimiter.ActiveClients(),
			},
		},
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	var b strings.Builder
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	m := &s.requests
	metric("http_requests_total", "counter", "Total number of HTTP requests", loadInt(&m.total))
	metric("http_client_errors_total", "counter", "Responses with a 4xx status", loadInt(&m.clientErrors))
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", loadInt(&m.serverErrors))
	metric("http_last_request_duration_microseconds", "gauge", "Duration of the last completed request", loadInt(&m.lastMicros))

	if s.cacheStats != nil {
		stats := s.cacheStats()
		metric("report_cache_hits_total", "counter", "Report cache hits", stats.Hits)
		metric("report_cache_misses_total", "counter", "Report cache misses", stats.Misses)
		metric("report_cache_evictions_total", "counter", "Report cache evictions", stats.Evictions)
	}

	rateLimitHits, suspicious := s.security.snapshot()
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitHits)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", suspicious)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", s.rateLimiter.ActiveClients())

	if batch, ok := s.records.Batch(); ok {
		metric("snapshot_transactions", "gauge", "Transactions in the current snapshot", batch.Transactions)
		metric("snapshot_net_worth_rows", "gauge", "Net worth rows in the current snapshot", batch.NetWorth)
		metric("snapshot_skipped_rows", "gauge", "Rows skipped while loading the current snapshot", batch.Skipped)
		metric("snapshot_age_seconds", "gauge", "Seconds since the current snapshot was loaded",
			fmt.Sprintf("%.0f", s.now().Sub(batch.LoadedAt).Seconds()))
	}
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", s.now().Sub(s.started).Seconds()))

	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec, err := ParseFilterSpec(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := ParseQueryOptions(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pred, err := filter.Build(spec, filter.KindTransaction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.records.Transactions(r.Context(), pred, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(nonNil(rows)).Write(w)
}

func (s *Server) handleNetWorthDetailed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec, err := ParseFilterSpec(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := ParseQueryOptions(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pred, err := filter.Build(spec, filter.KindNetWorth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.records.NetWorth(r.Context(), pred, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(nonNil(rows)).Write(w)
}

func (s *Server) handleNetWorthAggregated(w http.ResponseWriter, r *http.Request) {
	spec, err := ParseFilterSpec(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pred, err := filter.Build(spec, filter.KindNetWorth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.records.NetWorthAggregated(r.Context(), pred)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(nonNil(rows)).Write(w)
}

// transactionOptions lists the values a transaction filter sidebar offers.
// Categories narrow to the selected group and subcategories to the selected
// category, the way the filter form cascades.
type transactionOptions struct {
	Years         []string    `json:"years"`
	Groups        []string    `json:"groups"`
	Categories    []string    `json:"categories"`
	Subcategories []string    `json:"subcategories"`
	Accounts      []string    `json:"accounts"`
	Operators     []filter.Op `json:"operators"`
}

func (s *Server) handleTransactionOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	all, err := filter.Build(filter.Spec{}, filter.KindTransaction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	byGroup, err := filter.Build(filter.Spec{Group: queryValue(q, filter.FieldGroup)}, filter.KindTransaction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	byCategory, err := filter.Build(filter.Spec{
		Group:    queryValue(q, filter.FieldGroup),
		Category: queryValue(q, filter.FieldCategory),
	}, filter.KindTransaction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var opts transactionOptions
	lookups := []struct {
		field string
		pred  filter.Predicate
		dst   *[]string
	}{
		{"year", all, &opts.Years},
		{"group", all, &opts.Groups},
		{"category", byGroup, &opts.Categories},
		{"subcategory", byCategory, &opts.Subcategories},
		{"account", all, &opts.Accounts},
	}
	for _, l := range lookups {
		values, err := s.records.Distinct(ctx, l.field, l.pred)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		*l.dst = nonNil(values)
	}
	opts.Operators = []filter.Op{filter.OpLT, filter.OpLTE, filter.OpEQ, filter.OpGTE, filter.OpGT}
	NewJSONResponse().Data(opts).Write(w)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.refresh == nil {
		ServiceUnavailableError("refresh is not configured").Write(w)
		return
	}
	reason := queryValue(r.URL.Query(), "reason")
	if reason == "" {
		reason = "api"
	}

	outcome, err := s.refresh.RequestRefresh(ctx, reason)
	if err != nil {
		flog.FromContext(ctx).ErrorContext(ctx, "Refresh failed", flog.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "refresh failed").Write(w)
		return
	}
	status := http.StatusOK
	if outcome.Queued {
		status = http.StatusAccepted
	}
	NewJSONResponse().Status(status).Data(outcome).Write(w)
}

// badRequestErrors are caller mistakes, answered with 400 and their message.
var badRequestErrors = []error{
	errBadRequest,
	filter.ErrInvalidFilterCombination,
	filter.ErrUnknownOperator,
	filter.ErrFieldNotApplicable,
	period.ErrInvalidGranularity,
	period.ErrInvalidLookback,
	services.ErrInvalidMonth,
	services.ErrInvalidYear,
}

// writeError answers 400 for request errors and 500 for everything else.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			BadRequestError(err.Error()).Write(w)
			return
		}
	}
	ctx := r.Context()
	flog.FromContext(ctx).ErrorContext(ctx, "Request failed", flog.FieldError, err)
	InternalServerError("internal server error").Write(w)
}

// nonNil keeps empty results encoding as [] rather than null.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
