// Package store opens the destination backend selected by configuration.
//
// PostgreSQL imports go through pgstore (COPY on a pgx pool); history and
// migrations for it run through sqlstore on the same pool. Every other
// driver is served by sqlstore alone.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/store/memstore"
	"github.com/JonMunkholm/csvimport/internal/store/pgstore"
	"github.com/JonMunkholm/csvimport/internal/store/sqlstore"
)

// ErrNoMigrations is returned by Migrate for backends without a schema.
var ErrNoMigrations = errors.New("store has no migrations")

// Backend bundles the import destination with its history.
type Backend struct {
	Store   core.Store
	History core.HistoryStore

	sql     *sqlstore.Store
	closers []func()
}

// Open connects to the configured database. The memory driver needs no
// connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.IsMemory() {
		return Memory(), nil
	}
	if cfg.IsPostgres() {
		pool, err := pgstore.Connect(ctx, pgstore.PoolConfig{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		dialect, _ := sqlstore.LookupDialect("postgres")
		db := stdlib.OpenDBFromPool(pool)
		meta := sqlstore.New(db, dialect, logger)

		return &Backend{
			Store:   pgstore.New(pool, logger),
			History: meta,
			sql:     meta,
			closers: []func(){func() { db.Close() }, pool.Close},
		}, nil
	}

	s, err := sqlstore.Open(ctx, cfg.Driver, cfg.URL, logger)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Store:   s,
		History: s,
		sql:     s,
		closers: []func(){func() { s.Close() }},
	}, nil
}

// Memory returns a backend that keeps everything in process. Nothing it
// stores outlives the process.
func Memory() *Backend {
	return &Backend{
		Store:   memstore.New(),
		History: memstore.NewHistory(),
	}
}

// Migrate applies pending schema migrations.
func (b *Backend) Migrate(ctx context.Context) error {
	if b.sql == nil {
		return fmt.Errorf("%s: %w", b.Store.Kind(), ErrNoMigrations)
	}
	return b.sql.Migrate(ctx)
}

// MigrationVersion returns the applied schema version.
func (b *Backend) MigrationVersion(ctx context.Context) (int64, error) {
	if b.sql == nil {
		return 0, fmt.Errorf("%s: %w", b.Store.Kind(), ErrNoMigrations)
	}
	return b.sql.MigrationVersion(ctx)
}

// Close releases connections in reverse order of acquisition.
func (b *Backend) Close() {
	for _, c := range b.closers {
		c()
	}
	b.closers = nil
}
