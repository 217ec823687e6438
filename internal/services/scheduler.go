package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	flog "finboard/internal/log"
)

// SchedulerConfig holds configuration for the refresh scheduler
type SchedulerConfig struct {
	// Interval between scheduled refreshes (default: 15m). Zero or negative
	// disables the ticker; RunOnStart still applies.
	Interval time.Duration

	// RunOnStart refreshes once as soon as the scheduler starts (default: true)
	RunOnStart bool
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   15 * time.Minute,
		RunOnStart: true,
	}
}

// Scheduler refreshes the snapshot periodically.
type Scheduler struct {
	refresher Refreshing
	config    SchedulerConfig
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	runs    int
	lastErr error
}

func NewScheduler(refresher Refreshing, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		config:    config,
		logger:    flog.WithComponent(logger, flog.ComponentWorker),
	}
}

// Start begins the refresh loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Refresh scheduler started",
		"interval", s.config.Interval,
		"run_on_start", s.config.RunOnStart)
	return nil
}

// Stop signals the loop and waits for an in-flight refresh to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Refresh scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Refresh scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Runs returns how many refreshes ran and the error of the last one.
func (s *Scheduler) Runs() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastErr
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	if s.config.RunOnStart {
		s.refresh(ctx, "startup")
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-tick:
			s.refresh(ctx, "schedule")
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context, reason string) {
	_, err := s.refresher.Refresh(ctx, reason)
	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduled refresh failed", flog.FieldError, err, flog.FieldReason, reason)
	}

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	s.mu.Unlock()
}
