package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/ingest"
	flog "finboard/internal/log"
)

// Refreshing runs a refresh, joining any refresh already in flight.
type Refreshing interface {
	Refresh(ctx context.Context, reason string) (ingest.Result, error)
}

// RequestPublisher hands a refresh request to a worker.
type RequestPublisher interface {
	PublishRefresh(ctx context.Context, req *amqp.RefreshRequest) error
	Close() error
}

// RefreshOutcome reports what a refresh request turned into.
type RefreshOutcome struct {
	Queued    bool           `json:"queued"`
	RequestID string         `json:"request_id,omitempty"`
	Result    *ingest.Result `json:"result,omitempty"`
}

// RefreshService serves refresh requests from the API. With a queue it
// publishes the request for the worker; without one it refreshes inline.
type RefreshService struct {
	refresher Refreshing
	queue     RequestPublisher
	logger    *slog.Logger
}

func NewRefreshService(refresher Refreshing, queue RequestPublisher, logger *slog.Logger) *RefreshService {
	return &RefreshService{
		refresher: refresher,
		queue:     queue,
		logger:    flog.WithComponent(logger, flog.ComponentIngest),
	}
}

// RequestRefresh queues or runs a refresh. A failed publish falls back to an
// inline refresh so the request is never lost.
func (s *RefreshService) RequestRefresh(ctx context.Context, reason string) (RefreshOutcome, error) {
	if s.queue != nil {
		req := amqp.NewRefreshRequest(reason)
		err := s.queue.PublishRefresh(ctx, req)
		if err == nil {
			return RefreshOutcome{Queued: true, RequestID: req.ID}, nil
		}
		s.logger.ErrorContext(ctx, "Failed to publish refresh request, refreshing inline", flog.FieldError, err)
	}

	if s.refresher == nil {
		return RefreshOutcome{}, fmt.Errorf("refresh: no refresher configured")
	}
	res, err := s.refresher.Refresh(ctx, reason)
	if err != nil {
		return RefreshOutcome{}, err
	}
	return RefreshOutcome{Result: &res}, nil
}

// Close releases the queue connection, if any.
func (s *RefreshService) Close() error {
	if s.queue == nil {
		return nil
	}
	if err := s.queue.Close(); err != nil {
		return fmt.Errorf("close refresh queue: %w", err)
	}
	return nil
}

// RefreshHandler adapts a refresher to queued refresh requests. Requests
// older than the last completed refresh are acknowledged without work.
// The consumer calls the handler for one message at a time.
func RefreshHandler(r Refreshing, logger *slog.Logger) amqp.Handler {
	logger = flog.WithComponent(logger, flog.ComponentWorker)
	var lastDone time.Time
	return func(ctx context.Context, req *amqp.RefreshRequest) error {
		if !req.RequestedAt.IsZero() && req.RequestedAt.Before(lastDone) {
			logger.InfoContext(ctx, "Refresh request already satisfied",
				flog.FieldRequestRef, req.ID,
				"requested_at", req.RequestedAt)
			return nil
		}
		started := time.Now()
		res, err := r.Refresh(ctx, req.Reason)
		if err != nil {
			return fmt.Errorf("refresh for request %s: %w", req.ID, err)
		}
		lastDone = started
		logger.InfoContext(ctx, "Refresh request served",
			flog.FieldRequestRef, req.ID,
			flog.FieldBatchID, res.Batch.ID)
		return nil
	}
}
