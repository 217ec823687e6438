package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ports "finboard/internal/sheets"
)

// Store serves sheets from memory, optionally backed by a directory of CSV
// files named after the sheets (e.g. "Transaction_Log.csv").
type Store struct {
	mu     sync.Mutex
	dir    string
	tables map[string]ports.Table
}

var _ ports.SheetReader = (*Store)(nil)

// New creates a store holding tables.
func New(tables ...ports.Table) *Store {
	s := &Store{tables: make(map[string]ports.Table)}
	for _, t := range tables {
		s.tables[t.Name] = t
	}
	return s
}

// NewFromDir creates a store that reads "<dir>/<sheet>.csv" on every call,
// so edited files are picked up by the next refresh. Tables set in memory
// take precedence over files.
func NewFromDir(dir string) *Store {
	s := New()
	s.dir = dir
	return s
}

// Set replaces the content of a sheet.
func (s *Store) Set(t ports.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.Name] = t
}

// SetRows replaces a sheet with header and rows given as a value matrix.
func (s *Store) SetRows(name string, values [][]string) {
	s.Set(ports.NewTable(name, values))
}

// ReadSheet returns a copy of the named sheet.
func (s *Store) ReadSheet(ctx context.Context, name string) (ports.Table, error) {
	if err := ctx.Err(); err != nil {
		return ports.Table{}, err
	}
	s.mu.Lock()
	t, ok := s.tables[name]
	dir := s.dir
	s.mu.Unlock()
	if ok {
		return copyTable(t), nil
	}
	if dir == "" {
		return ports.Table{}, fmt.Errorf("%w: %s", ports.ErrSheetNotFound, name)
	}

	f, err := os.Open(filepath.Join(dir, name+".csv"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ports.Table{}, fmt.Errorf("%w: %s", ports.ErrSheetNotFound, name)
		}
		return ports.Table{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	return ports.ParseCSV(name, f)
}

func copyTable(t ports.Table) ports.Table {
	out := ports.Table{Name: t.Name, HeaderRow: t.HeaderRow, Header: append([]string(nil), t.Header...)}
	out.Rows = make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}
