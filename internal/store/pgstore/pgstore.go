// Package pgstore is a PostgreSQL destination that writes batches with the
// COPY protocol through a pgx connection pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens and pings a pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store implements core.Store on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a store on pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Kind implements core.Store.
func (s *Store) Kind() string {
	return "postgres"
}

// Clear implements core.Store.
func (s *Store) Clear(ctx context.Context, def core.TableDefinition) error {
	table := tableIdentifier(def).Sanitize()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int64
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return fmt.Errorf("count %s: %w", def.TableName(), err)
	}
	if count == 0 {
		return nil
	}

	tag, err := tx.Exec(ctx, "DELETE FROM "+table)
	if err != nil {
		return fmt.Errorf("clear %s: %w", def.TableName(), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	s.logger.Debug("table cleared", "table", def.TableName(), "rows", tag.RowsAffected())
	return nil
}

// Begin implements core.Store.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

// Persist implements core.Tx with a single COPY per batch.
func (t *Tx) Persist(ctx context.Context, def core.TableDefinition, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := core.ValidateBatch(def, records); err != nil {
		return err
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = rec
	}

	n, err := t.tx.CopyFrom(ctx, tableIdentifier(def), def.DBColumns(), pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", def.TableName(), err)
	}
	if n != int64(len(records)) {
		return fmt.Errorf("copy into %s: wrote %d of %d rows", def.TableName(), n, len(records))
	}
	return nil
}

// Commit implements core.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback implements core.Tx.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func tableIdentifier(def core.TableDefinition) pgx.Identifier {
	if def.Info.Schema != "" {
		return pgx.Identifier{def.Info.Schema, def.TableName()}
	}
	return pgx.Identifier{def.TableName()}
}
