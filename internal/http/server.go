package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/filter"
	flog "finboard/internal/log"
	"finboard/internal/period"
	"finboard/internal/services"
	"finboard/internal/storage"
)

// Records is the query surface of the snapshot store.
type Records interface {
	Transactions(ctx context.Context, pred filter.Predicate, opts storage.Options) ([]core.Transaction, error)
	NetWorth(ctx context.Context, pred filter.Predicate, opts storage.Options) ([]core.NetWorthEntry, error)
	NetWorthAggregated(ctx context.Context, pred filter.Predicate) ([]core.NetWorthAggregate, error)
	Distinct(ctx context.Context, field string, pred filter.Predicate) ([]string, error)
	Ready() bool
	Batch() (storage.Batch, bool)
}

// Reports builds the dashboard documents.
type Reports interface {
	Dashboard(ctx context.Context, today core.Date) (services.Dashboard, error)
	Spending(ctx context.Context, q services.SpendingQuery) (services.Spending, error)
	Periods(ctx context.Context, q services.PeriodsQuery) (services.Periods, error)
	NetWorth(ctx context.Context, g period.Granularity) (services.NetWorthReport, error)
}

// RefreshRequester queues or runs a data refresh.
type RefreshRequester interface {
	RequestRefresh(ctx context.Context, reason string) (services.RefreshOutcome, error)
}

// Deps are the collaborators the server reads from. CacheStats may be nil.
type Deps struct {
	Records    Records
	Reports    Reports
	Refresh    RefreshRequester
	CacheStats func() cache.Stats
	Logger     *slog.Logger
	// RateLimit is the number of POST requests allowed per client per minute.
	RateLimit int
}

type Server struct {
	http.Server
	records     Records
	reports     Reports
	refresh     RefreshRequester
	cacheStats  func() cache.Stats
	logger      *slog.Logger
	rateLimiter *rateLimiter
	security    securityMetrics
	requests    requestMetrics
	now         func() time.Time
	started     time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      5 * time.Minute,
		},
		records:     deps.Records,
		reports:     deps.Reports,
		refresh:     deps.Refresh,
		cacheStats:  deps.CacheStats,
		logger:      flog.WithComponent(logger, flog.ComponentHTTP),
		rateLimiter: newRateLimiter(deps.RateLimit),
		now:         time.Now,
	}
	s.started = s.now()
	go s.rateLimiter.startCleanup()

	mux.HandleFunc("GET /{$}", handleHealth)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /transactions", s.handleTransactions)
	mux.HandleFunc("GET /networth-detailed", s.handleNetWorthDetailed)
	mux.HandleFunc("GET /networth-aggregated", s.handleNetWorthAggregated)
	mux.HandleFunc("GET /options/transactions", s.handleTransactionOptions)

	mux.HandleFunc("GET /reports/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /reports/spending", s.handleSpending)
	mux.HandleFunc("GET /reports/periods", s.handlePeriods)
	mux.HandleFunc("GET /reports/networth", s.handleNetWorthReport)

	mux.HandleFunc("POST /refresh-data", s.handleRefresh)

	s.Handler = s.withRequestContext(withSecurityHeaders(s.withRateLimit(mux)))
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) today() core.Date {
	return core.DateOf(s.now())
}
