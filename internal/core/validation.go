package core

// validation.go checks mapped records against a table's field specs before
// they are persisted.
//
// Type conversion happens in the Mapper, so a record that reaches a store is
// already well-typed. What remains are the constraints a store enforces on
// write: required columns must hold a value and text must fit MaxLength.
// Stores call ValidateBatch inside Persist and fail the whole flush with
// ValidationErrors when anything is wrong.

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"
)

// StateAdded is the entity state reported for records being inserted.
const StateAdded = "Added"

// ValidationError describes one property of one record that failed validation.
type ValidationError struct {
	State    string // Entity state, e.g. "Added"
	Entity   string // Destination label or key
	Property string // Column name
	Message  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("Entity validation error for %s \"%s\", property \"%s\". %s", e.State, e.Entity, e.Property, e.Message)
}

// ValidationErrors collects every validation failure of a flush.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "no validation errors"
	case 1:
		return v[0].Error()
	}
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// ValidateRecord returns the validation failures of a single record.
func ValidateRecord(def TableDefinition, rec Record) []ValidationError {
	var errs []ValidationError
	entity := def.Info.Key

	if len(rec) != len(def.FieldSpecs) {
		return []ValidationError{{
			State:   StateAdded,
			Entity:  entity,
			Message: fmt.Sprintf("record has %d values, table has %d columns", len(rec), len(def.FieldSpecs)),
		}}
	}

	for i, spec := range def.FieldSpecs {
		v := rec[i]
		if isNull(v) {
			if spec.Required {
				errs = append(errs, ValidationError{
					State:    StateAdded,
					Entity:   entity,
					Property: spec.Column(),
					Message:  fmt.Sprintf("The %s field is required.", spec.Name),
				})
			}
			continue
		}

		if spec.MaxLength > 0 {
			if t, ok := v.(pgtype.Text); ok && utf8.RuneCountInString(t.String) > spec.MaxLength {
				errs = append(errs, ValidationError{
					State:    StateAdded,
					Entity:   entity,
					Property: spec.Column(),
					Message:  fmt.Sprintf("The field %s must be a string with a maximum length of %d.", spec.Name, spec.MaxLength),
				})
			}
		}
	}

	return errs
}

// ValidateBatch validates every record and returns ValidationErrors, or nil
// when the batch is clean.
func ValidateBatch(def TableDefinition, records []Record) error {
	var all ValidationErrors
	for _, rec := range records {
		all = append(all, ValidateRecord(def, rec)...)
	}
	if len(all) == 0 {
		return nil
	}
	return all
}
