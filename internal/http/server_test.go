package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/ingest"
	flog "finboard/internal/log"
	"finboard/internal/services"
	"finboard/internal/sheets/memory"
	"finboard/internal/storage"
)

type fakeRefresh struct {
	outcome services.RefreshOutcome
	err     error
	reasons []string
}

func (f *fakeRefresh) RequestRefresh(_ context.Context, reason string) (services.RefreshOutcome, error) {
	f.reasons = append(f.reasons, reason)
	return f.outcome, f.err
}

// newTestServer serves the sample workbook as of 2025-02-15.
func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	store, err := storage.Open(t.TempDir(), flog.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	r := ingest.NewRefresher(memory.Sample(), store, ingest.Options{Source: "memory"}, flog.Discard())
	if _, err := r.Refresh(context.Background(), "test"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	reportCache := cache.NewLRUCache[any](16, time.Minute)
	deps.Records = store
	deps.Reports = services.NewReportService(store, reportCache, flog.Discard())
	deps.CacheStats = reportCache.Stats
	deps.Logger = flog.Discard()
	return startServer(t, deps)
}

func startServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	srv := NewServer(":0", deps)
	srv.now = func() time.Time { return time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Deps{})
	for _, path := range []string{"/", "/healthz", "/readyz"} {
		if rr := do(srv, http.MethodGet, path); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	empty, err := storage.Open(t.TempDir(), flog.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer empty.Close()
	cold := startServer(t, Deps{Records: empty, Logger: flog.Discard()})
	if rr := do(cold, http.MethodGet, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first load, got %d", rr.Code)
	}
	if rr := do(cold, http.MethodGet, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("liveness should not depend on data, got %d", rr.Code)
	}
}

func TestTransactions(t *testing.T) {
	srv := newTestServer(t, Deps{})

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"no filters", "", 14},
		{"category", "category=Food", 6},
		{"group", "group=Income", 3},
		{"amount gte", "amount=1000&amount_op=gte", 4},
		{"amount symbol", "amount=100&amount_op=%3E", 6},
		{"date range", "start_date=2025-02-01&end_date=2025-02-28", 7},
		{"combined", "category=Food&subcategory=Dining&account=Credit+Card", 3},
		{"no match", "merchant=Nobody", 0},
		{"limit", "limit=2", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(srv, http.MethodGet, "/transactions?"+tt.query)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			rows := decode[[]core.Transaction](t, rr)
			if len(rows) != tt.want {
				t.Fatalf("got %d rows, want %d", len(rows), tt.want)
			}
		})
	}

	t.Run("empty result is an array", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/transactions?merchant=Nobody")
		if strings.TrimSpace(rr.Body.String()) != "[]" {
			t.Fatalf("expected [], got %q", rr.Body.String())
		}
	})

	t.Run("descending order", func(t *testing.T) {
		rows := decode[[]core.Transaction](t, do(srv, http.MethodGet, "/transactions?order=desc&limit=1"))
		if len(rows) != 1 || rows[0].Date.String() != "2025-02-28" || !rows[0].Amount.Equal(decimal.RequireFromString("3.12")) {
			t.Fatalf("unexpected first row %+v", rows)
		}
	})
}

func TestTransactionsBadRequests(t *testing.T) {
	srv := newTestServer(t, Deps{})

	tests := []struct {
		name    string
		query   string
		wantErr string
	}{
		{"amount without operator", "amount=10", "amount and amount_op"},
		{"operator without amount", "amount_op=gt", "amount and amount_op"},
		{"unknown operator", "amount=10&amount_op=between", "unknown amount operator"},
		{"bad amount", "amount=ten&amount_op=gt", "invalid amount"},
		{"bad date", "start_date=02/01/2025", "invalid start_date"},
		{"inverted range", "start_date=2025-02-01&end_date=2025-01-01", "before start_date"},
		{"bad limit", "limit=0", "limit"},
		{"bad order", "order=sideways", "order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(srv, http.MethodGet, "/transactions?"+tt.query)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			body := decode[map[string]string](t, rr)
			if !strings.Contains(body["error"], tt.wantErr) {
				t.Fatalf("error %q does not mention %q", body["error"], tt.wantErr)
			}
		})
	}
}

func TestNetWorthEndpoints(t *testing.T) {
	srv := newTestServer(t, Deps{})

	detailed := decode[[]core.NetWorthEntry](t, do(srv, http.MethodGet, "/networth-detailed"))
	if len(detailed) != 10 {
		t.Fatalf("expected 10 detailed rows, got %d", len(detailed))
	}
	liabilities := decode[[]core.NetWorthEntry](t, do(srv, http.MethodGet, "/networth-detailed?category=Liability&start_date=2025-02-01"))
	if len(liabilities) != 2 {
		t.Fatalf("expected 2 liability rows, got %d", len(liabilities))
	}

	aggregated := decode[[]core.NetWorthAggregate](t, do(srv, http.MethodGet, "/networth-aggregated"))
	if len(aggregated) != 4 {
		t.Fatalf("expected 4 aggregated rows, got %d", len(aggregated))
	}

	for _, q := range []string{"merchant=Bank", "group=Income", "amount=1&amount_op=gt"} {
		if rr := do(srv, http.MethodGet, "/networth-aggregated?"+q); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rr.Code)
		}
	}
}

func TestTransactionOptions(t *testing.T) {
	srv := newTestServer(t, Deps{})

	opts := decode[transactionOptions](t, do(srv, http.MethodGet, "/options/transactions"))
	if strings.Join(opts.Groups, ",") != "Expenses,Income,Savings" {
		t.Fatalf("groups=%v", opts.Groups)
	}
	if strings.Join(opts.Years, ",") != "2025" {
		t.Fatalf("years=%v", opts.Years)
	}
	if strings.Join(opts.Accounts, ",") != "Checking,Credit Card,Savings" {
		t.Fatalf("accounts=%v", opts.Accounts)
	}
	if len(opts.Operators) != 5 {
		t.Fatalf("operators=%v", opts.Operators)
	}

	narrowed := decode[transactionOptions](t, do(srv, http.MethodGet, "/options/transactions?group=Income&category=Salary"))
	if strings.Join(narrowed.Categories, ",") != "Interest,Salary" {
		t.Fatalf("categories=%v", narrowed.Categories)
	}
	if strings.Join(narrowed.Subcategories, ",") != "Paycheck" {
		t.Fatalf("subcategories=%v", narrowed.Subcategories)
	}
}

func TestReportEndpoints(t *testing.T) {
	srv := newTestServer(t, Deps{})

	dash := decode[services.Dashboard](t, do(srv, http.MethodGet, "/reports/dashboard"))
	if dash.Today.String() != "2025-02-15" || !dash.NetWorth.Net.Equal(decimal.RequireFromString("29221.90")) {
		t.Fatalf("unexpected dashboard %+v", dash.NetWorth)
	}

	past := decode[services.Dashboard](t, do(srv, http.MethodGet, "/reports/dashboard?as_of=2025-01-20"))
	if past.Today.String() != "2025-01-20" {
		t.Fatalf("as_of ignored: %s", past.Today)
	}

	spending := decode[services.Spending](t, do(srv, http.MethodGet, "/reports/spending?year=2025&month=2"))
	if !spending.Total.Equal(decimal.RequireFromString("1920.22")) {
		t.Fatalf("spending total=%s", spending.Total)
	}

	periods := decode[services.Periods](t, do(srv, http.MethodGet, "/reports/periods?granularity=monthly&periods=2"))
	if periods.Periods != 2 || len(periods.CashFlow) != 2 {
		t.Fatalf("unexpected periods %+v", periods.CashFlow)
	}

	nw := decode[services.NetWorthReport](t, do(srv, http.MethodGet, "/reports/networth?granularity=quarterly"))
	if !nw.HasNetWorth || nw.Granularity != "quarterly" {
		t.Fatalf("unexpected net worth report %+v", nw)
	}

	for _, target := range []string{
		"/reports/spending?month=13",
		"/reports/spending?year=abc",
		"/reports/periods?granularity=weekly",
		"/reports/periods?periods=0",
		"/reports/networth?granularity=daily",
		"/reports/dashboard?as_of=yesterday",
	} {
		if rr := do(srv, http.MethodGet, target); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestRefreshData(t *testing.T) {
	t.Run("inline", func(t *testing.T) {
		f := &fakeRefresh{outcome: services.RefreshOutcome{Result: &ingest.Result{Batch: storage.Batch{ID: "b1"}}}}
		srv := newTestServer(t, Deps{Refresh: f})
		rr := do(srv, http.MethodPost, "/refresh-data")
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		if len(f.reasons) != 1 || f.reasons[0] != "api" {
			t.Fatalf("reasons=%v", f.reasons)
		}
	})

	t.Run("queued", func(t *testing.T) {
		f := &fakeRefresh{outcome: services.RefreshOutcome{Queued: true, RequestID: "r1"}}
		srv := newTestServer(t, Deps{Refresh: f})
		rr := do(srv, http.MethodPost, "/refresh-data?reason=manual")
		if rr.Code != http.StatusAccepted {
			t.Fatalf("status=%d", rr.Code)
		}
		out := decode[services.RefreshOutcome](t, rr)
		if out.RequestID != "r1" || f.reasons[0] != "manual" {
			t.Fatalf("unexpected outcome %+v reasons=%v", out, f.reasons)
		}
	})

	t.Run("failure", func(t *testing.T) {
		srv := newTestServer(t, Deps{Refresh: &fakeRefresh{err: errors.New("sheet unavailable")}})
		if rr := do(srv, http.MethodPost, "/refresh-data"); rr.Code != http.StatusBadGateway {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t, Deps{})
		if rr := do(srv, http.MethodPost, "/refresh-data"); rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		srv := newTestServer(t, Deps{})
		if rr := do(srv, http.MethodGet, "/refresh-data"); rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status=%d", rr.Code)
		}
	})
}

func TestRateLimitOnPost(t *testing.T) {
	srv := newTestServer(t, Deps{Refresh: &fakeRefresh{}, RateLimit: 2})

	for i := 0; i < 2; i++ {
		if rr := do(srv, http.MethodPost, "/refresh-data"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d", i, rr.Code)
		}
	}
	rr := do(srv, http.MethodPost, "/refresh-data")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After=%q", rr.Header().Get("Retry-After"))
	}

	// Reads are never limited.
	if rr := do(srv, http.MethodGet, "/transactions"); rr.Code != http.StatusOK {
		t.Fatalf("GET after limit: status=%d", rr.Code)
	}
}

func TestMiddlewareHeadersAndMetrics(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rr := do(srv, http.MethodGet, "/transactions?category=Food")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing security headers: %v", rr.Header())
	}
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Fatalf("missing request id: %q", rr.Header().Get("X-Request-ID"))
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type=%q", ct)
	}

	do(srv, http.MethodGet, "/reports/dashboard")
	do(srv, http.MethodGet, "/reports/dashboard")
	do(srv, http.MethodGet, "/../.env")

	body := do(srv, http.MethodGet, "/metrics").Body.String()
	for _, want := range []string{
		"http_requests_total 4",
		"report_cache_hits_total 1",
		"report_cache_misses_total 1",
		"suspicious_requests_total 1",
		"snapshot_transactions 14",
		"uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
