package core

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestBatch(t *testing.T) {
	b := NewBatch(3)
	if b.Threshold() != 3 || b.Size() != 0 || b.Full() {
		t.Fatalf("new batch = size %d, threshold %d, full %v", b.Size(), b.Threshold(), b.Full())
	}

	for i := range 3 {
		b.Add(Record{pgtype.Int8{Int64: int64(i), Valid: true}})
	}
	if !b.Full() {
		t.Error("Full() = false at threshold")
	}

	out := b.Drain()
	if len(out) != 3 || b.Size() != 0 || b.Full() {
		t.Fatalf("after Drain: out %d, size %d", len(out), b.Size())
	}
	for i, rec := range out {
		if rec[0].(pgtype.Int8).Int64 != int64(i) {
			t.Errorf("record %d out of order: %v", i, rec)
		}
	}

	// The drained slice is not reused by later adds.
	b.Add(Record{pgtype.Int8{Int64: 99, Valid: true}})
	if out[0][0].(pgtype.Int8).Int64 != 0 {
		t.Error("Add overwrote a drained record")
	}
}

func TestNewBatch_DefaultThreshold(t *testing.T) {
	for _, n := range []int{0, -5} {
		if got := NewBatch(n).Threshold(); got != DefaultCommitThreshold {
			t.Errorf("NewBatch(%d).Threshold() = %d, want %d", n, got, DefaultCommitThreshold)
		}
	}
	if DefaultCommitThreshold != 50000 {
		t.Errorf("DefaultCommitThreshold = %d, want 50000", DefaultCommitThreshold)
	}
}
