package core

import (
	"fmt"
	"strings"
	"time"
)

// FieldType represents the expected data type for a CSV field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
	FieldInteger
	FieldUUID
	FieldTimestamp
)

var fieldTypeNames = map[FieldType]string{
	FieldText:      "text",
	FieldEnum:      "enum",
	FieldDate:      "date",
	FieldNumeric:   "numeric",
	FieldBool:      "bool",
	FieldInteger:   "integer",
	FieldUUID:      "uuid",
	FieldTimestamp: "timestamp",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// ParseFieldType converts a type name ("text", "date", ...) to a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FieldText, nil
	}
	for t, name := range fieldTypeNames {
		if name == s {
			return t, nil
		}
	}
	switch s {
	case "string":
		return FieldText, nil
	case "int", "bigint":
		return FieldInteger, nil
	case "decimal", "number":
		return FieldNumeric, nil
	case "boolean":
		return FieldBool, nil
	case "datetime":
		return FieldTimestamp, nil
	}
	return FieldText, fmt.Errorf("unknown field type %q", s)
}

// FieldSpec defines a destination column and the rules for filling it from CSV.
type FieldSpec struct {
	Name       string              // Column header name
	DBColumn   string              // Database column name (derived from Name if empty)
	Type       FieldType           // Expected data type
	Required   bool                // Value must be present when persisted
	AllowEmpty bool                // Empty text is stored as "" instead of NULL
	MaxLength  int                 // Maximum text length (0 = unlimited)
	EnumValues []string            // Valid values for FieldEnum type
	Normalizer func(string) string // Optional transformation applied before conversion
}

// Column returns the database column name for the field.
func (f FieldSpec) Column() string {
	if f.DBColumn != "" {
		return f.DBColumn
	}
	return toDBColumnName(f.Name)
}

// TableInfo contains descriptive information about a destination.
type TableInfo struct {
	Key     string   // Unique identifier: "customers"
	Group   string   // Logical grouping: "crm", "billing"
	Label   string   // Display name: "Customers"
	Schema  string   // Optional database schema
	Table   string   // Database table name (defaults to Key)
	Columns []string // Header column names, populated from FieldSpecs on Register

	// UniqueKey names the fields that identify a row. Previews use it to
	// report keys repeated within a file.
	UniqueKey []string
}

// TableDefinition describes a destination table: where rows go and how each
// CSV field becomes a typed column value.
type TableDefinition struct {
	Info       TableInfo
	FieldSpecs []FieldSpec
}

// TableName returns the unqualified database table name.
func (t TableDefinition) TableName() string {
	if t.Info.Table != "" {
		return t.Info.Table
	}
	return t.Info.Key
}

// FieldIndex returns the position of the named field (matched
// case-insensitively), or -1.
func (t TableDefinition) FieldIndex(name string) int {
	for i, spec := range t.FieldSpecs {
		if strings.EqualFold(spec.Name, name) {
			return i
		}
	}
	return -1
}

// DBColumns returns the database column names in FieldSpec order.
func (t TableDefinition) DBColumns() []string {
	cols := make([]string, len(t.FieldSpecs))
	for i, spec := range t.FieldSpecs {
		cols[i] = spec.Column()
	}
	return cols
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// Record is one typed destination row. Values are in DBColumns order.
type Record []any

// ImportAction governs whether the destination is cleared before loading.
type ImportAction int

const (
	ActionAppend ImportAction = iota
	ActionReplace
)

func (a ImportAction) String() string {
	switch a {
	case ActionReplace:
		return "replace"
	default:
		return "append"
	}
}

// ParseImportAction converts "append" or "replace" (case-insensitive) to an
// ImportAction. An empty string means append.
func ParseImportAction(s string) (ImportAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "append":
		return ActionAppend, nil
	case "replace":
		return ActionReplace, nil
	default:
		return ActionAppend, fmt.Errorf("invalid import action %q (want append or replace)", s)
	}
}

// ImportResult describes what a single import run did. It is created when the
// run starts, mutated while it proceeds, and handed to the caller at the end.
type ImportResult struct {
	RunID         string
	ImportFile    string // Source file path, when imported from a file
	Destination   string // Table key
	Store         string // Store kind: "postgres", "sqlite", ...
	Action        ImportAction
	RowsRead      int
	RowsImported  int
	ErrorMessages []string
	// Aborted is set when the run stopped without committing because a
	// clear, read, write or commit failed or the run was cancelled.
	Aborted   bool
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the wall-clock time of the run.
func (r *ImportResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Succeeded reports whether the run finished without any error messages.
// A committed run that rejected some rows is not succeeded; see RunStatus.
func (r *ImportResult) Succeeded() bool {
	return len(r.ErrorMessages) == 0
}

// ImportPhase indicates the current stage of an import run.
type ImportPhase string

const (
	PhaseStarting  ImportPhase = "starting"
	PhaseClearing  ImportPhase = "clearing"
	PhaseReading   ImportPhase = "reading"
	PhaseComplete  ImportPhase = "complete"
	PhaseFailed    ImportPhase = "failed"
	PhaseCancelled ImportPhase = "cancelled"
)

// ImportProgress is a snapshot of a running import, published by Service.
type ImportProgress struct {
	RunID        string      `json:"runId"`
	TableKey     string      `json:"tableKey"`
	FileName     string      `json:"fileName,omitempty"`
	Phase        ImportPhase `json:"phase"`
	Message      string      `json:"message,omitempty"`
	RowsImported int         `json:"rowsImported"`
	Error        string      `json:"error,omitempty"`
	BytesRead    int64       `json:"bytesRead"`
	BytesTotal   int64       `json:"bytesTotal"`
}

// Percent returns the byte-based progress as a percentage (0-100).
func (p ImportProgress) Percent() int {
	if p.BytesTotal > 0 {
		pct := int((p.BytesRead * 100) / p.BytesTotal)
		if pct > 100 {
			return 100
		}
		return pct
	}
	if p.Phase == PhaseComplete {
		return 100
	}
	return 0
}

// toDBColumnName converts a display column name to a database column name.
// "Transaction ID" -> "transaction_id"
func toDBColumnName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}
