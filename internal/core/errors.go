package core

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when an import stops because its context was
	// cancelled. The returned error also wraps the context error.
	ErrCancelled = errors.New("import cancelled")

	// ErrUnknownTable is returned when a table key is not registered.
	ErrUnknownTable = errors.New("unknown table")

	// ErrInvalidSource is returned when the source cannot be opened as text.
	ErrInvalidSource = errors.New("invalid source")

	// ErrImportNotFound is returned by Service lookups for unknown run IDs.
	ErrImportNotFound = errors.New("import not found")

	// ErrDestinationBusy is returned when another run already targets the
	// same destination.
	ErrDestinationBusy = errors.New("destination busy: another import is running")
)

// cancelled wraps the context error so callers can match either
// ErrCancelled or context.Canceled / context.DeadlineExceeded.
func cancelled(cause error) error {
	if cause == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// FieldError is returned by a Mapper when a single field cannot be converted.
// Row is 1-based.
type FieldError struct {
	Row   int
	Field int    // 0-based source column, or -1 when the value came from a default
	Name  string // column name for defaulted values
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("row %d, default for %s: invalid value %q: %v", e.Row, e.Name, e.Value, e.Err)
	}
	return fmt.Sprintf("row %d, field %d: invalid value %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
