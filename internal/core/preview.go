package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// PreviewSummary contains the counts for a preview.
type PreviewSummary struct {
	TotalRows       int `json:"totalRows"`
	ValidRows       int `json:"validRows"`
	ErrorRows       int `json:"errorRows"`
	DuplicateInFile int `json:"duplicateInFile"`
}

// RowPreview is one row that would be written.
type RowPreview struct {
	Row    int               `json:"row"`
	RowKey string            `json:"rowKey,omitempty"`
	Values map[string]string `json:"values"`
}

// ErrorPreview is a row that would be rejected.
type ErrorPreview struct {
	Row    int      `json:"row"`
	Fields []string `json:"fields"`
	Errors []string `json:"errors"`
}

// DuplicatePreview is a unique key that appears on more than one row.
type DuplicatePreview struct {
	RowKey string `json:"rowKey"`
	Rows   []int  `json:"rows"`
}

// PreviewResult is the outcome of a read-only pass over a source.
type PreviewResult struct {
	TableKey         string             `json:"tableKey"`
	Header           []string           `json:"header,omitempty"`
	Summary          PreviewSummary     `json:"summary"`
	RowSamples       []RowPreview       `json:"rowSamples"`
	ErrorSamples     []ErrorPreview     `json:"errorSamples"`
	DuplicateSamples []DuplicatePreview `json:"duplicateSamples"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

// Sample limits
const (
	maxRowSamples       = 10
	maxErrorSamples     = 20
	maxDuplicateSamples = 10
)

// Preview maps every row of src the way Import would, without touching the
// store. Rows that would be rejected while mapping or validating are
// reported with their messages, and rows sharing a unique key are listed.
func (im *Importer) Preview(ctx context.Context, src io.Reader, def TableDefinition, opts ImportOptions) (*PreviewResult, error) {
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil reader", ErrInvalidSource)
	}
	if len(def.FieldSpecs) == 0 {
		return nil, fmt.Errorf("table %q has no fields", def.Info.Key)
	}

	mapper, source, header, err := openSource(src, def, opts)
	if err != nil {
		return nil, err
	}

	resp := &PreviewResult{
		TableKey:         def.Info.Key,
		Header:           header,
		RowSamples:       []RowPreview{},
		ErrorSamples:     []ErrorPreview{},
		DuplicateSamples: []DuplicatePreview{},
	}

	keyFields := make([]int, 0, len(def.Info.UniqueKey))
	for _, name := range def.Info.UniqueKey {
		if i := def.FieldIndex(name); i >= 0 {
			keyFields = append(keyFields, i)
		}
	}

	// Track duplicates within file, in first-seen order.
	seenKeys := make(map[string][]int)
	var keyOrder []string

	for {
		fields, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}

		resp.Summary.TotalRows++
		row := resp.Summary.TotalRows

		rec, rowErrs := previewRow(mapper, def, row, fields)
		if len(rowErrs) > 0 {
			resp.Summary.ErrorRows++
			if len(resp.ErrorSamples) < maxErrorSamples {
				resp.ErrorSamples = append(resp.ErrorSamples, ErrorPreview{
					Row:    row,
					Fields: fields,
					Errors: rowErrs,
				})
			}
			continue
		}
		resp.Summary.ValidRows++

		rowKey := extractUniqueKey(rec, keyFields)
		if rowKey != "" {
			if _, ok := seenKeys[rowKey]; !ok {
				keyOrder = append(keyOrder, rowKey)
			}
			seenKeys[rowKey] = append(seenKeys[rowKey], row)
		}

		if len(resp.RowSamples) < maxRowSamples {
			resp.RowSamples = append(resp.RowSamples, RowPreview{
				Row:    row,
				RowKey: rowKey,
				Values: recordValues(def, rec),
			})
		}
	}

	for _, key := range keyOrder {
		rows := seenKeys[key]
		if len(rows) < 2 {
			continue
		}
		resp.Summary.DuplicateInFile += len(rows) - 1 // Count extra occurrences
		if len(resp.DuplicateSamples) < maxDuplicateSamples {
			resp.DuplicateSamples = append(resp.DuplicateSamples, DuplicatePreview{
				RowKey: key,
				Rows:   rows,
			})
		}
	}

	resp.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	return resp, nil
}

// previewRow maps and validates one row, returning every message the row
// would add to an import's error ledger.
func previewRow(mapper Mapper, def TableDefinition, row int, fields []string) (Record, []string) {
	rec, err := mapper.Map(row, fields)
	if err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			return nil, []string{RowErrorMessage(fe)}
		}
		return nil, []string{fmt.Sprintf("Row %d could not be mapped. %v", row, err)}
	}

	verrs := ValidateRecord(def, rec)
	if len(verrs) == 0 {
		return rec, nil
	}
	msgs := make([]string, len(verrs))
	for i, ve := range verrs {
		msgs[i] = ve.Error()
	}
	return nil, msgs
}

// extractUniqueKey joins the displayed key values. A row with any empty key
// part has no key.
func extractUniqueKey(rec Record, keyFields []int) string {
	if len(keyFields) == 0 {
		return ""
	}
	parts := make([]string, len(keyFields))
	for i, pos := range keyFields {
		val := formatValueForPreview(rec[pos])
		if val == "" {
			return ""
		}
		parts[i] = val
	}
	return strings.Join(parts, "|")
}

// recordValues renders a record keyed by database column.
func recordValues(def TableDefinition, rec Record) map[string]string {
	values := make(map[string]string, len(def.FieldSpecs))
	for i, spec := range def.FieldSpecs {
		if i < len(rec) {
			values[spec.Column()] = formatValueForPreview(rec[i])
		}
	}
	return values
}

// formatValueForPreview formats a converted value for display.
func formatValueForPreview(v any) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case pgtype.Text:
		if !val.Valid {
			return ""
		}
		return val.String
	case pgtype.Numeric:
		if !val.Valid {
			return ""
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	case pgtype.Int8:
		if !val.Valid {
			return ""
		}
		return fmt.Sprintf("%d", val.Int64)
	case pgtype.Date:
		if !val.Valid {
			return ""
		}
		return val.Time.Format(time.DateOnly)
	case pgtype.Timestamptz:
		if !val.Valid {
			return ""
		}
		return val.Time.UTC().Format(time.RFC3339)
	case pgtype.Bool:
		if !val.Valid {
			return ""
		}
		if val.Bool {
			return "true"
		}
		return "false"
	case pgtype.UUID:
		if !val.Valid {
			return ""
		}
		b := val.Bytes
		return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
	default:
		return fmt.Sprintf("%v", val)
	}
}
