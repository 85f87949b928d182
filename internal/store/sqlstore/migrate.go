package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package state.
var gooseMu sync.Mutex

// Migrate applies pending migrations. Dialects goose cannot track (DuckDB)
// get the idempotent up sections applied directly.
func (s *Store) Migrate(ctx context.Context) error {
	if s.dialect.Goose == "" {
		return s.applyUnversioned(ctx)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(s.dialect.Goose); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	goose.SetLogger(goose.NopLogger())

	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the applied goose version.
func (s *Store) MigrationVersion(ctx context.Context) (int64, error) {
	if s.dialect.Goose == "" {
		return 0, fmt.Errorf("%s migrations are not versioned", s.dialect.Name)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(s.dialect.Goose); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, s.db)
}

func (s *Store) applyUnversioned(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		for _, stmt := range upStatements(string(data)) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
		}
	}
	return nil
}

// upStatements returns the statements between "-- +goose Up" and
// "-- +goose Down". Migrations must not contain semicolons inside statements.
func upStatements(src string) []string {
	var up strings.Builder
	inUp := false
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-- +goose Up"):
			inUp = true
			continue
		case strings.HasPrefix(trimmed, "-- +goose Down"):
			inUp = false
			continue
		case strings.HasPrefix(trimmed, "--"):
			continue
		}
		if inUp {
			up.WriteString(line)
			up.WriteByte('\n')
		}
	}

	var stmts []string
	for _, stmt := range strings.Split(up.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
