package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// DefaultHistoryLimit applies when ListRuns is called with limit <= 0.
const DefaultHistoryLimit = 50

const runColumns = "run_id, table_key, file_name, store, action, status, rows_read, rows_imported, error_count, errors, started_at, finished_at"

// RecordRun implements core.HistoryStore.
func (s *Store) RecordRun(ctx context.Context, rec core.RunRecord) error {
	errs, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("encode run errors: %w", err)
	}

	placeholders := make([]string, 12)
	for i := range placeholders {
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}
	query := "INSERT INTO import_runs (" + runColumns + ") VALUES (" + strings.Join(placeholders, ", ") + ")"

	_, err = s.db.ExecContext(ctx, query,
		rec.RunID,
		rec.TableKey,
		rec.FileName,
		rec.Store,
		rec.Action,
		rec.Status,
		rec.RowsRead,
		rec.RowsImported,
		rec.ErrorCount,
		string(errs),
		formatTime(rec.StartedAt),
		formatTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	return nil
}

// ListRuns implements core.HistoryStore.
func (s *Store) ListRuns(ctx context.Context, tableKey string, limit int) ([]core.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := "SELECT " + runColumns + " FROM import_runs"
	var args []any
	if tableKey != "" {
		query += " WHERE table_key = " + s.dialect.Placeholder(1)
		args = append(args, tableKey)
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC, run_id LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []core.RunRecord
	for rows.Next() {
		var (
			rec               core.RunRecord
			errs              string
			started, finished string
		)
		if err := rows.Scan(
			&rec.RunID,
			&rec.TableKey,
			&rec.FileName,
			&rec.Store,
			&rec.Action,
			&rec.Status,
			&rec.RowsRead,
			&rec.RowsImported,
			&rec.ErrorCount,
			&errs,
			&started,
			&finished,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if errs != "" {
			if err := json.Unmarshal([]byte(errs), &rec.Errors); err != nil {
				return nil, fmt.Errorf("decode errors for run %s: %w", rec.RunID, err)
			}
		}
		rec.StartedAt = parseTime(started)
		rec.FinishedAt = parseTime(finished)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Times are stored as fixed-width UTC text so they sort and round-trip the
// same way on every dialect.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
