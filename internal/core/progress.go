package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ProgressReporter receives textual status updates from an import. Report is
// called synchronously on the importing goroutine.
type ProgressReporter interface {
	Report(message string)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(message string)

// Report implements ProgressReporter.
func (f ProgressFunc) Report(message string) { f(message) }

// Milestone messages.

func clearingMessage(table, store string) string {
	return fmt.Sprintf("Clearing table for entity %s in %s...", table, store)
}

func clearedMessage(table string) string {
	return fmt.Sprintf("Table for entity %s has been cleared", table)
}

const (
	startReadingMessage = "Starting to read file..."
	committingMessage   = "Committing all changes to database..."
)

func committedMessage(rows int) string {
	return fmt.Sprintf("%d rows written to database.", rows)
}

// rowProgressMessage summarizes rows read and rows in error:
// "1 row read, 0 have error", "5 rows read, 1 has error".
func rowProgressMessage(read, inError int) string {
	rowWord := "rows"
	if read == 1 {
		rowWord = "row"
	}
	verb := "have"
	if inError == 1 {
		verb = "has"
	}
	return fmt.Sprintf("%d %s read, %d %s error", read, rowWord, inError, verb)
}

func isRowProgress(message string) bool {
	return strings.Contains(message, " read, ") && strings.HasSuffix(message, " error")
}

// ThrottledReporter forwards milestone messages immediately and per-row
// progress at most once per Interval. A suppressed row message is forwarded
// ahead of the next milestone or by Flush.
type ThrottledReporter struct {
	Next     ProgressReporter
	Interval time.Duration

	mu      sync.Mutex
	last    time.Time
	pending string
	now     func() time.Time
}

// NewThrottledReporter wraps next. A non-positive interval forwards everything.
func NewThrottledReporter(next ProgressReporter, interval time.Duration) *ThrottledReporter {
	return &ThrottledReporter{Next: next, Interval: interval, now: time.Now}
}

// Report implements ProgressReporter.
func (t *ThrottledReporter) Report(message string) {
	t.mu.Lock()
	if !isRowProgress(message) || t.Interval <= 0 {
		pending := t.pending
		t.pending = ""
		t.mu.Unlock()
		if pending != "" {
			t.Next.Report(pending)
		}
		t.Next.Report(message)
		return
	}

	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.Interval {
		t.pending = message
		t.mu.Unlock()
		return
	}
	t.last = now
	t.pending = ""
	t.mu.Unlock()
	t.Next.Report(message)
}

// Flush forwards the most recent suppressed row message.
func (t *ThrottledReporter) Flush() {
	t.mu.Lock()
	msg := t.pending
	t.pending = ""
	t.mu.Unlock()
	if msg != "" {
		t.Next.Report(msg)
	}
}

// LogReporter writes progress messages to a structured logger.
type LogReporter struct {
	Logger *slog.Logger
	Level  slog.Level
}

// Report implements ProgressReporter.
func (r LogReporter) Report(message string) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), r.Level, "import progress", "message", message)
}

// multiReporter fans a message out to several reporters.
type multiReporter []ProgressReporter

func (m multiReporter) Report(message string) {
	for _, r := range m {
		r.Report(message)
	}
}

// MultiReporter combines reporters, skipping nil entries. It returns nil when
// nothing remains.
func MultiReporter(reporters ...ProgressReporter) ProgressReporter {
	var out multiReporter
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
