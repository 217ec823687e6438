package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/cache"
	"finboard/internal/cli"
	apphttp "finboard/internal/http"
	flog "finboard/internal/log"
	"finboard/internal/services"
	"finboard/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting finboard", "port", cfg.Port, "source", cfg.DataSource, "amqp", cfg.AMQPEnabled())

	store := cli.OpenStore(logger, cfg.DataDir)

	refresher, closeSource, err := cli.NewRefresher(context.Background(), cfg, store, logger)
	if err != nil {
		logger.Error("Failed to initialize spreadsheet source", flog.FieldError, err)
		os.Exit(1)
	}

	reportCache := cache.NewLRUCache[any](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(reportCache)
	cacheManager.StartCleanup(cfg.CacheTTL)

	// Refresh requests go through the queue when one is configured. A
	// publisher that cannot connect at startup degrades to inline refreshes.
	var (
		queue services.RequestPublisher
		dial  amqp.Dialer
	)
	if cfg.AMQPEnabled() {
		dial = func() (*amqp.Client, error) {
			return amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		}
		publisher, err := dial()
		if err != nil {
			logger.Error("AMQP unavailable, refreshing inline", flog.FieldError, err)
		} else {
			queue = publisher
		}
	}
	refreshService := services.NewRefreshService(refresher, queue, logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Records:    store,
		Reports:    services.NewReportService(store, reportCache, logger),
		Refresh:    refreshService,
		CacheStats: reportCache.Stats,
		Logger:     logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	refreshWorker := worker.NewRefreshWorker(refresher, dial, services.SchedulerConfig{
		Interval:   cfg.RefreshInterval,
		RunOnStart: cfg.RefreshOnStart,
	}, logger)
	workerDone := make(chan struct{})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", flog.FieldError, err)
		}
		select {
		case <-workerDone:
		case <-shutdownCtx.Done():
		}
		if err := refreshService.Close(); err != nil {
			logger.Warn("Refresh queue close error", flog.FieldError, err)
		}
		cacheManager.Stop()
		closeSource()
		if err := store.Close(); err != nil {
			logger.Warn("Snapshot store close error", flog.FieldError, err)
		}
	})

	go func() {
		defer close(workerDone)
		if err := refreshWorker.Run(ctx); err != nil {
			logger.Error("Refresh worker stopped", flog.FieldError, err)
		}
	}()

	logger.Info("Listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", flog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
