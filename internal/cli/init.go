// Package cli provides common CLI initialization utilities shared by
// the finboard binaries.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finboard/internal/backend"
	"finboard/internal/config"
	"finboard/internal/ingest"
	flog "finboard/internal/log"
	"finboard/internal/storage"
)

// SetupLogger initializes structured logging from the configured level and
// format, and sets it as the default logger.
func SetupLogger(cfg *config.Config) *slog.Logger {
	logCfg := flog.DefaultConfig()
	logCfg.Format = cfg.LogFormat
	level, err := flog.ParseLevel(cfg.LogLevel)
	if err == nil {
		logCfg.Level = level
	}
	logger := flog.New(logCfg)
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", flog.FieldError, err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

// OpenStore opens the snapshot store under dir.
// Exits the process on failure.
func OpenStore(logger *slog.Logger, dir string) *storage.Store {
	store, err := storage.Open(dir, logger)
	if err != nil {
		logger.Error("Failed to open snapshot store", flog.FieldError, err, "dir", dir)
		os.Exit(1)
	}
	return store
}

// NewRefresher builds the configured spreadsheet source and a refresher
// publishing into store. The returned cleanup releases the source.
func NewRefresher(ctx context.Context, cfg *config.Config, store *storage.Store, logger *slog.Logger) (*ingest.Refresher, func(), error) {
	sourceCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	source, err := backend.NewFactory(logger).CreateSource(ctx, sourceCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s source: %w", sourceCfg.Type, err)
	}
	cleanup := func() {
		if source.Cleanup == nil {
			return
		}
		if err := source.Cleanup(); err != nil {
			logger.Warn("Source cleanup failed", flog.FieldError, err)
		}
	}

	refresher := ingest.NewRefresher(source.Reader, store, ingest.Options{
		Source:            source.Name,
		TransactionsSheet: cfg.TransactionsSheet,
		NetWorthSheet:     cfg.NetWorthSheet,
		Timeout:           cfg.RefreshTimeout,
	}, logger)
	logger.Info("Spreadsheet source ready", "source", source.Name)
	return refresher, cleanup, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
