package core

import (
	"context"
	"errors"
	"time"
)

// Run statuses stored in history.
const (
	RunSucceeded = "succeeded"
	RunPartial   = "partial" // committed, but some rows were rejected
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// MaxRecordedErrors caps the error messages kept per history record.
const MaxRecordedErrors = 100

// RunRecord is the persisted summary of one finished import.
type RunRecord struct {
	RunID        string    `json:"runId"`
	TableKey     string    `json:"tableKey"`
	FileName     string    `json:"fileName,omitempty"`
	Store        string    `json:"store"`
	Action       string    `json:"action"`
	Status       string    `json:"status"`
	RowsRead     int       `json:"rowsRead"`
	RowsImported int       `json:"rowsImported"`
	ErrorCount   int       `json:"errorCount"`
	Errors       []string  `json:"errors,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// HistoryStore persists run records.
type HistoryStore interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	// ListRuns returns the newest runs for tableKey first. An empty key
	// lists every table.
	ListRuns(ctx context.Context, tableKey string, limit int) ([]RunRecord, error)
}

// NewRunRecord summarizes a result and the error Import returned with it.
func NewRunRecord(res *ImportResult, runErr error) RunRecord {
	rec := RunRecord{
		RunID:        res.RunID,
		TableKey:     res.Destination,
		FileName:     res.ImportFile,
		Store:        res.Store,
		Action:       res.Action.String(),
		RowsRead:     res.RowsRead,
		RowsImported: res.RowsImported,
		ErrorCount:   len(res.ErrorMessages),
		StartedAt:    res.StartTime,
		FinishedAt:   res.EndTime,
	}

	errs := res.ErrorMessages
	if len(errs) > MaxRecordedErrors {
		errs = errs[:MaxRecordedErrors]
	}
	rec.Errors = append([]string(nil), errs...)

	rec.Status = RunStatus(res, runErr)
	return rec
}

// RunStatus classifies a finished run. A run that committed some rows while
// rejecting others is partial; one that wrote nothing is failed.
func RunStatus(res *ImportResult, runErr error) string {
	switch {
	case errors.Is(runErr, ErrCancelled):
		return RunCancelled
	case runErr != nil || res == nil || res.Aborted:
		return RunFailed
	case len(res.ErrorMessages) == 0:
		return RunSucceeded
	case res.RowsImported > 0:
		return RunPartial
	default:
		return RunFailed
	}
}
