// Package memstore keeps imported rows in memory. The CLI uses it for dry
// runs, where a file is mapped and validated without touching a database.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JonMunkholm/csvimport/internal/core"
)

var errTxDone = errors.New("memstore: transaction already finished")

// Store is a core.Store holding rows per table key.
type Store struct {
	mu     sync.Mutex
	tables map[string][]core.Record
}

// New returns an empty store.
func New() *Store {
	return &Store{tables: make(map[string][]core.Record)}
}

// Kind implements core.Store.
func (s *Store) Kind() string { return "memory" }

// Clear implements core.Store.
func (s *Store) Clear(ctx context.Context, def core.TableDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.tables, def.Info.Key)
	s.mu.Unlock()
	return nil
}

// Begin implements core.Store.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: s, staged: make(map[string][]core.Record)}, nil
}

// Seed replaces the committed rows of key.
func (s *Store) Seed(key string, records []core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[key] = append([]core.Record(nil), records...)
}

// Rows returns a copy of the committed rows of key.
func (s *Store) Rows(key string) []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Record(nil), s.tables[key]...)
}

// Count returns the number of committed rows of key.
func (s *Store) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[key])
}

// Tx stages rows until Commit.
type Tx struct {
	store  *Store
	staged map[string][]core.Record
	order  []string
	done   bool
}

// Persist implements core.Tx. Records are validated against def first.
func (t *Tx) Persist(ctx context.Context, def core.TableDefinition, records []core.Record) error {
	if t.done {
		return errTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := core.ValidateBatch(def, records); err != nil {
		return err
	}
	key := def.Info.Key
	if _, ok := t.staged[key]; !ok {
		t.order = append(t.order, key)
	}
	t.staged[key] = append(t.staged[key], records...)
	return nil
}

// Commit implements core.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, key := range t.order {
		t.store.tables[key] = append(t.store.tables[key], t.staged[key]...)
	}
	t.staged = nil
	return nil
}

// Rollback implements core.Tx. It is a no-op after Commit.
func (t *Tx) Rollback(context.Context) error {
	t.done = true
	t.staged = nil
	return nil
}

// History is an in-memory core.HistoryStore.
type History struct {
	mu   sync.Mutex
	runs []core.RunRecord
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// RecordRun implements core.HistoryStore.
func (h *History) RecordRun(ctx context.Context, rec core.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	h.runs = append(h.runs, rec)
	h.mu.Unlock()
	return nil
}

// ListRuns implements core.HistoryStore.
func (h *History) ListRuns(ctx context.Context, tableKey string, limit int) ([]core.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	var out []core.RunRecord
	for _, rec := range h.runs {
		if tableKey == "" || rec.TableKey == tableKey {
			out = append(out, rec)
		}
	}
	h.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
