package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestImportLimiter(t *testing.T) {
	l := NewImportLimiter(2, 20*time.Millisecond)
	ctx := t.Context()

	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if !l.TryAcquire() {
		t.Fatal("TryAcquire() = false with a free slot")
	}
	if l.TryAcquire() {
		t.Fatal("TryAcquire() = true with no free slot")
	}

	want := LimiterStatus{Active: 2, Available: 0, MaxConcurrent: 2}
	if got := l.Status(); got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}

	if err := l.Acquire(ctx); !errors.Is(err, ErrTooManyImports) {
		t.Errorf("Acquire() on full limiter = %v, want ErrTooManyImports", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := l.Acquire(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire(cancelled) = %v, want context.Canceled", err)
	}

	l.Release()
	if l.Available() != 1 || l.ActiveCount() != 1 {
		t.Errorf("after Release: available %d, active %d", l.Available(), l.ActiveCount())
	}
	l.Release()
}

func TestImportLimiter_Defaults(t *testing.T) {
	l := NewImportLimiter(0, 0)
	if l.MaxConcurrent() != DefaultMaxConcurrentImports {
		t.Errorf("MaxConcurrent() = %d", l.MaxConcurrent())
	}
	if l.maxWait != DefaultMaxWaitTime {
		t.Errorf("maxWait = %s", l.maxWait)
	}
}

func TestImportLimiter_WaitForDrain(t *testing.T) {
	l := NewImportLimiter(1, time.Second)
	if err := l.WaitForDrain(t.Context()); err != nil {
		t.Fatalf("WaitForDrain() on idle limiter = %v", err)
	}

	if err := l.Acquire(t.Context()); err != nil {
		t.Fatal(err)
	}
	short, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if err := l.WaitForDrain(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain() with active import = %v", err)
	}

	time.AfterFunc(50*time.Millisecond, l.Release)
	if err := l.WaitForDrain(t.Context()); err != nil {
		t.Errorf("WaitForDrain() after release = %v", err)
	}
}
