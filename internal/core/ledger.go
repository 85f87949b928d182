package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Ledger is the append-only list of error messages for one import run.
type Ledger struct {
	messages []string
}

// Add appends a message.
func (l *Ledger) Add(msg string) {
	l.messages = append(l.messages, msg)
}

// AddRowError records a mapping failure.
func (l *Ledger) AddRowError(fe *FieldError) {
	l.Add(RowErrorMessage(fe))
}

// AddPersistenceError records a store failure, one message per underlying cause.
func (l *Ledger) AddPersistenceError(err error) {
	for _, msg := range PersistenceMessages(err) {
		l.Add(msg)
	}
}

// Len returns the number of recorded messages.
func (l *Ledger) Len() int {
	return len(l.messages)
}

// Messages returns a copy of the recorded messages in encounter order.
func (l *Ledger) Messages() []string {
	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

// RowErrorMessage formats a mapping failure. Field is converted from 0-based
// to 1-based column numbering; defaulted values are named instead.
func RowErrorMessage(fe *FieldError) string {
	detail := ""
	if fe.Err != nil {
		detail = fe.Err.Error()
	}
	if fe.Field < 0 {
		return fmt.Sprintf("Row %d, default for %s has invalid value %s. %s", fe.Row, fe.Name, fe.Value, detail)
	}
	return fmt.Sprintf("Row %d, column %d has invalid value %s. %s", fe.Row, fe.Field+1, fe.Value, detail)
}

// PersistenceMessages converts a store error into ledger messages.
//
// Validation failures produce one message per failing property. Anything else
// is reduced to its innermost cause; joined errors contribute one message per
// branch.
func PersistenceMessages(err error) []string {
	if err == nil {
		return nil
	}

	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, ve := range verrs {
			msgs = append(msgs, ve.Error())
		}
		return msgs
	}

	var ve ValidationError
	if errors.As(err, &ve) {
		return []string{ve.Error()}
	}

	return innermostMessages(err)
}

func innermostMessages(err error) []string {
	for {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			return []string{pgErrorMessage(pgErr)}
		}

		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			var msgs []string
			for _, branch := range multi.Unwrap() {
				if branch != nil {
					msgs = append(msgs, innermostMessages(branch)...)
				}
			}
			return msgs
		}

		next := errors.Unwrap(err)
		if next == nil {
			return []string{err.Error()}
		}
		err = next
	}
}

func pgErrorMessage(e *pgconn.PgError) string {
	msg := e.Message
	if e.Detail != "" {
		msg = strings.TrimSuffix(msg, ".") + ". " + e.Detail
	}
	return msg
}
