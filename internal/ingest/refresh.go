package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"finboard/internal/core"
	flog "finboard/internal/log"
	"finboard/internal/sheets"
	"finboard/internal/storage"
)

// maxLoggedMalformed caps how many malformed rows are logged one by one.
const maxLoggedMalformed = 20

// Publisher loads a dataset as the new current snapshot.
type Publisher interface {
	Replace(ctx context.Context, ds storage.Dataset) (storage.Batch, error)
}

// Options configures a Refresher.
type Options struct {
	Source            string // reported in batch metadata, e.g. "sheets"
	TransactionsSheet string
	NetWorthSheet     string
	Timeout           time.Duration
}

// Result summarizes one refresh.
type Result struct {
	Batch     storage.Batch        `json:"batch"`
	Malformed []*MalformedRowError `json:"malformed,omitempty"`
	Duration  time.Duration        `json:"-"`
	Shared    bool                 `json:"shared"`
}

// Refresher fetches both sheets, normalizes them and publishes a snapshot.
// Concurrent calls are coalesced into a single run.
type Refresher struct {
	reader    sheets.SheetReader
	publisher Publisher
	opts      Options
	logger    *slog.Logger

	group singleflight.Group
	now   func() time.Time
	newID func() string
}

// NewRefresher creates a Refresher. Empty sheet names default to the
// standard workbook names.
func NewRefresher(reader sheets.SheetReader, publisher Publisher, opts Options, logger *slog.Logger) *Refresher {
	if opts.TransactionsSheet == "" {
		opts.TransactionsSheet = sheets.TransactionsSheet
	}
	if opts.NetWorthSheet == "" {
		opts.NetWorthSheet = sheets.NetWorthSheet
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Refresher{
		reader:    reader,
		publisher: publisher,
		opts:      opts,
		logger:    flog.WithComponent(logger, flog.ComponentIngest),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Refresh runs a refresh, or joins the one already in flight. The refresh
// itself is detached from ctx cancellation so a caller giving up does not
// abort the run for the others; ctx only bounds how long this caller waits.
func (r *Refresher) Refresh(ctx context.Context, reason string) (Result, error) {
	ch := r.group.DoChan("refresh", func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.Timeout)
		defer cancel()
		return r.run(runCtx, reason)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		out := res.Val.(Result)
		out.Shared = res.Shared
		return out, nil
	}
}

func (r *Refresher) run(ctx context.Context, reason string) (Result, error) {
	start := r.now()
	batchID := r.newID()
	logger := r.logger.With(flog.FieldBatchID, batchID)
	logger.InfoContext(ctx, "Refresh started", flog.FieldReason, reason)

	var (
		txs      []core.Transaction
		entries  []core.NetWorthEntry
		txBad    []*MalformedRowError
		entryBad []*MalformedRowError
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		table, err := r.reader.ReadSheet(gctx, r.opts.TransactionsSheet)
		if err != nil {
			return fmt.Errorf("read %s: %w", r.opts.TransactionsSheet, err)
		}
		txs, txBad, err = NormalizeTransactions(table)
		return err
	})
	g.Go(func() error {
		table, err := r.reader.ReadSheet(gctx, r.opts.NetWorthSheet)
		if err != nil {
			return fmt.Errorf("read %s: %w", r.opts.NetWorthSheet, err)
		}
		entries, entryBad, err = NormalizeNetWorth(table)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.ErrorContext(ctx, "Refresh failed", flog.FieldError, err)
		return Result{}, fmt.Errorf("refresh: %w", err)
	}

	malformed := append(txBad, entryBad...)
	for i, m := range malformed {
		if i == maxLoggedMalformed {
			logger.WarnContext(ctx, "More malformed rows skipped", "remaining", len(malformed)-i)
			break
		}
		logger.WarnContext(ctx, "Skipping malformed row",
			flog.FieldSheet, m.Sheet,
			flog.FieldRow, m.Row,
			"field", m.Field,
			flog.FieldReason, m.Reason)
	}

	batch, err := r.publisher.Replace(ctx, storage.Dataset{
		Batch: storage.Batch{
			ID:       batchID,
			Source:   r.opts.Source,
			LoadedAt: r.now().UTC(),
			Skipped:  len(malformed),
		},
		Transactions: txs,
		NetWorth:     entries,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Publishing snapshot failed", flog.FieldError, err)
		return Result{}, fmt.Errorf("publish snapshot: %w", err)
	}

	elapsed := r.now().Sub(start)
	logger.InfoContext(ctx, "Refresh completed",
		"transactions", batch.Transactions,
		"net_worth", batch.NetWorth,
		"skipped", batch.Skipped,
		flog.FieldDuration, elapsed.Milliseconds())
	return Result{Batch: batch, Malformed: malformed, Duration: elapsed}, nil
}
