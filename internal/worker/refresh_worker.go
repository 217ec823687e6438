// Package worker runs the background side of finboard: queued refresh
// requests from AMQP plus the periodic refresh schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finboard/internal/amqp"
	flog "finboard/internal/log"
	"finboard/internal/services"
)

const stopTimeout = 30 * time.Second

// RefreshWorker serves refresh requests and the refresh schedule.
type RefreshWorker struct {
	refresher services.Refreshing
	dial      amqp.Dialer
	scheduler *services.Scheduler
	logger    *slog.Logger
}

// NewRefreshWorker creates a worker. A nil dial runs the schedule only.
func NewRefreshWorker(refresher services.Refreshing, dial amqp.Dialer, schedule services.SchedulerConfig, logger *slog.Logger) *RefreshWorker {
	return &RefreshWorker{
		refresher: refresher,
		dial:      dial,
		scheduler: services.NewScheduler(refresher, schedule, logger),
		logger:    flog.WithComponent(logger, flog.ComponentWorker),
	}
}

// Run blocks until ctx ends or the consumer fails with a non-connection
// error. The schedule is stopped before Run returns.
func (w *RefreshWorker) Run(ctx context.Context) error {
	if err := w.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := w.scheduler.Stop(stopCtx); err != nil {
			w.logger.Warn("Scheduler did not stop cleanly", flog.FieldError, err)
		}
	}()

	if w.dial == nil {
		w.logger.InfoContext(ctx, "AMQP disabled, running refresh schedule only")
		<-ctx.Done()
		return nil
	}

	w.logger.InfoContext(ctx, "Consuming refresh requests")
	err := amqp.ConsumeWithReconnect(ctx, w.dial, services.RefreshHandler(w.refresher, w.logger), w.logger)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return fmt.Errorf("consume refresh requests: %w", err)
}

// Runs reports how many scheduled refreshes ran and the last error.
func (w *RefreshWorker) Runs() (int, error) {
	return w.scheduler.Runs()
}
