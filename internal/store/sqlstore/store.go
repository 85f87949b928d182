// Package sqlstore implements core.Store and core.HistoryStore over
// database/sql for PostgreSQL (pgx), SQLite (modernc or mattn) and DuckDB.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// Store is a database/sql backed destination.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// Open connects to dsn with the named driver and verifies the connection.
func Open(ctx context.Context, driverName, dsn string, logger *slog.Logger) (*Store, error) {
	d, err := LookupDialect(driverName)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.Name, err)
	}
	if d.SingleConn {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", d.Name, err)
	}
	return New(db, d, logger), nil
}

// New wraps an open database.
func New(db *sql.DB, d Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, dialect: d, logger: logger}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Kind implements core.Store.
func (s *Store) Kind() string {
	return s.dialect.Name
}

func (s *Store) tableName(def core.TableDefinition) string {
	if s.dialect.Numbered {
		return QuoteIdent(def.Info.Schema, def.TableName())
	}
	return QuoteIdent(def.TableName())
}

// Clear implements core.Store. It counts first and only deletes from a
// non-empty table.
func (s *Store) Clear(ctx context.Context, def core.TableDefinition) error {
	table := s.tableName(def)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	var count int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return fmt.Errorf("count %s: %w", def.TableName(), err)
	}
	if count == 0 {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", def.TableName(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	s.logger.Debug("table cleared", "table", def.TableName(), "rows", count)
	return nil
}

// Begin implements core.Store.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, store: s}, nil
}

// Tx is an open database/sql transaction.
type Tx struct {
	tx    *sql.Tx
	store *Store
}

// Persist implements core.Tx. Records are validated, then written with
// multi-row INSERT statements sized to the dialect's parameter limit.
func (t *Tx) Persist(ctx context.Context, def core.TableDefinition, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := core.ValidateBatch(def, records); err != nil {
		return err
	}

	cols := def.DBColumns()
	perStmt := rowsPerStatement(len(cols), t.store.dialect.MaxParams)
	table := t.store.tableName(def)

	for start := 0; start < len(records); start += perStmt {
		end := min(start+perStmt, len(records))
		chunk := records[start:end]

		query := insertSQL(t.store.dialect, table, cols, len(chunk))
		args := make([]any, 0, len(chunk)*len(cols))
		for _, rec := range chunk {
			for _, v := range rec {
				arg, err := sqlValue(v)
				if err != nil {
					return err
				}
				args = append(args, arg)
			}
		}
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", def.TableName(), err)
		}
	}
	return nil
}

// Commit implements core.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

// Rollback implements core.Tx. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// maxRowsPerStatement keeps statements a reasonable size even when the
// parameter limit would allow more.
const maxRowsPerStatement = 500

func rowsPerStatement(columns, maxParams int) int {
	if columns <= 0 {
		return 1
	}
	n := maxParams / columns
	if n < 1 {
		n = 1
	}
	if n > maxRowsPerStatement {
		n = maxRowsPerStatement
	}
	return n
}

// insertSQL builds INSERT INTO t (c1, c2) VALUES (?, ?), (?, ?) ...
func insertSQL(d Dialect, table string, cols []string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(QuoteIdent(c))
	}
	b.WriteString(") VALUES ")

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range cols {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// sqlValue resolves driver.Valuer values (the pgtype values produced by the
// mappers) so every driver receives plain Go types.
func sqlValue(v any) (any, error) {
	valuer, ok := v.(driver.Valuer)
	if !ok {
		return v, nil
	}
	out, err := valuer.Value()
	if err != nil {
		return nil, fmt.Errorf("convert %T: %w", v, err)
	}
	return out, nil
}
