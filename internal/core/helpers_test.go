package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// testTable is the destination used by most core tests.
var testTable = TableDefinition{
	Info: TableInfo{Key: "widgets", Group: "test", Label: "Widgets", UniqueKey: []string{"Name"}},
	FieldSpecs: []FieldSpec{
		{Name: "Name", Type: FieldText, Required: true, MaxLength: 20},
		{Name: "Amount", Type: FieldNumeric},
		{Name: "Code", Type: FieldText},
	},
}

var registerOnce sync.Once

// registerTestTable adds testTable to the registry once per test binary.
func registerTestTable(t *testing.T) {
	t.Helper()
	registerOnce.Do(func() { Register(testTable) })
}

// fakeStore records what an import did to it. Failures are injected through
// the exported fields before the import starts.
type fakeStore struct {
	mu        sync.Mutex
	rows      map[string][]Record
	clearErr  error
	beginErr  error
	commitErr error
	// failPersist, when set, is consulted on every Persist call (1-based).
	failPersist func(call int) error

	clears    int
	begins    int
	persists  [][]Record
	commits   int
	rollbacks int
	order     []string // table keys in commit order
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]Record)}
}

func (s *fakeStore) Kind() string { return "fake" }

func (s *fakeStore) Clear(_ context.Context, def TableDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	if s.clearErr != nil {
		return s.clearErr
	}
	delete(s.rows, def.Info.Key)
	return nil
}

func (s *fakeStore) Begin(context.Context) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &fakeTx{store: s, staged: make(map[string][]Record)}, nil
}

func (s *fakeStore) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[key])
}

type fakeTx struct {
	store  *fakeStore
	staged map[string][]Record
	done   bool
}

func (tx *fakeTx) Persist(_ context.Context, def TableDefinition, records []Record) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.done {
		return errors.New("transaction finished")
	}
	s.persists = append(s.persists, records)
	if s.failPersist != nil {
		if err := s.failPersist(len(s.persists)); err != nil {
			return err
		}
	}
	if err := ValidateBatch(def, records); err != nil {
		return err
	}
	tx.staged[def.Info.Key] = append(tx.staged[def.Info.Key], records...)
	return nil
}

func (tx *fakeTx) Commit(context.Context) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.done {
		return errors.New("transaction finished")
	}
	if s.commitErr != nil {
		return s.commitErr
	}
	tx.done = true
	s.commits++
	for key, recs := range tx.staged {
		s.rows[key] = append(s.rows[key], recs...)
		s.order = append(s.order, key)
	}
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.done {
		return nil
	}
	tx.done = true
	s.rollbacks++
	return nil
}

// recorder captures progress messages.
type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Report(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// csvRows joins lines into CSV text with a trailing newline.
func csvRows(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}
