// Package storage keeps the ingested records in disposable SQLite snapshots.
//
// Every refresh writes a brand new database file and publishes it with a
// single pointer swap. Readers pin the snapshot they started on, so a query
// never sees a half-loaded dataset; a retired snapshot is closed and its file
// removed once its last reader releases it.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"finboard/internal/core"

	_ "modernc.org/sqlite"
)

const snapshotPattern = "snapshot-*.db"

// Batch describes the dataset held by a snapshot.
type Batch struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	LoadedAt     time.Time `json:"loaded_at"`
	Transactions int       `json:"transactions"`
	NetWorth     int       `json:"net_worth"`
	Skipped      int       `json:"skipped"`
}

// Dataset is a fully normalized ingest result ready to be loaded.
type Dataset struct {
	Batch        Batch
	Transactions []core.Transaction
	NetWorth     []core.NetWorthEntry
}

// Snapshot is one immutable, fully loaded database.
type Snapshot struct {
	db      *sql.DB
	path    string
	batch   Batch
	version uint
	readers sync.WaitGroup
}

// Batch returns the metadata of the dataset in s.
func (s *Snapshot) Batch() Batch { return s.batch }

func (s *Snapshot) destroy() error {
	err := s.db.Close()
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		if rmErr := os.Remove(s.path + suffix); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	return err
}

// Store publishes snapshots and hands them out to readers.
type Store struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Snapshot
	closed  bool
	retired sync.WaitGroup
}

// Open prepares dir for snapshot files, removing any left over by a previous
// process. The store is empty until the first Publish.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	stale, err := filepath.Glob(filepath.Join(dir, snapshotPattern+"*"))
	if err != nil {
		return nil, fmt.Errorf("list stale snapshots: %w", err)
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove stale snapshot", "path", p, "error", err)
		}
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Build writes ds into a new snapshot file. The snapshot is not visible to
// readers until it is passed to Publish.
func (s *Store) Build(ctx context.Context, ds Dataset) (*Snapshot, error) {
	if ds.Batch.ID == "" {
		return nil, fmt.Errorf("build snapshot: empty batch id")
	}
	path := filepath.Join(s.dir, "snapshot-"+ds.Batch.ID+".db")

	version, err := migrateSnapshot(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("migrate snapshot: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	snap := &Snapshot{db: db, path: path, batch: ds.Batch, version: version}

	if err := load(ctx, db, ds); err != nil {
		snap.destroy()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	snap.batch.Transactions = len(ds.Transactions)
	snap.batch.NetWorth = len(ds.NetWorth)

	s.logger.InfoContext(ctx, "Snapshot built",
		"batch_id", snap.batch.ID,
		"schema_version", version,
		"transactions", snap.batch.Transactions,
		"net_worth", snap.batch.NetWorth,
		"skipped", snap.batch.Skipped)
	return snap, nil
}

// Publish makes snap the current snapshot. The previous one is retired in
// the background once all of its readers have released it.
func (s *Store) Publish(snap *Snapshot) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		snap.destroy()
		return ErrClosed
	}
	old := s.current
	s.current = snap
	s.mu.Unlock()

	if old != nil {
		s.retire(old)
	}
	return nil
}

// Replace builds and publishes ds in one step.
func (s *Store) Replace(ctx context.Context, ds Dataset) (Batch, error) {
	snap, err := s.Build(ctx, ds)
	if err != nil {
		return Batch{}, err
	}
	if err := s.Publish(snap); err != nil {
		return Batch{}, err
	}
	return snap.Batch(), nil
}

func (s *Store) retire(old *Snapshot) {
	s.retired.Add(1)
	go func() {
		defer s.retired.Done()
		old.readers.Wait()
		if err := old.destroy(); err != nil {
			s.logger.Warn("Failed to remove retired snapshot", "batch_id", old.batch.ID, "error", err)
			return
		}
		s.logger.Debug("Retired snapshot removed", "batch_id", old.batch.ID)
	}()
}

// Acquire pins the current snapshot. It returns nil when nothing has been
// published yet. Every non-nil snapshot must be passed to Release.
func (s *Store) Acquire() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	s.current.readers.Add(1)
	return s.current
}

// Release unpins a snapshot obtained from Acquire.
func (s *Store) Release(snap *Snapshot) {
	if snap != nil {
		snap.readers.Done()
	}
}

// Ready reports whether a snapshot has been published.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Batch returns the metadata of the current snapshot.
func (s *Store) Batch() (Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Batch{}, false
	}
	return s.current.batch, true
}

// Close retires the current snapshot and waits for every retired snapshot to
// be removed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	old := s.current
	s.current = nil
	s.mu.Unlock()

	if old != nil {
		s.retire(old)
	}
	s.retired.Wait()
	return nil
}
