package sqlstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // "pgx"
	_ "github.com/mattn/go-sqlite3"    // "sqlite3"
	_ "modernc.org/sqlite"             // "sqlite"
)

// Dialect describes how to talk to one database/sql driver.
type Dialect struct {
	Name      string // Store kind reported in results
	Driver    string // database/sql driver name
	Goose     string // goose dialect, empty when goose has none
	MaxParams int    // Bind parameters allowed per statement
	Numbered  bool   // $1-style placeholders instead of ?
	// SingleConn limits the pool to one connection (embedded engines with a
	// single writer).
	SingleConn bool
}

var dialects = map[string]Dialect{
	"postgres": {Name: "postgres", Driver: "pgx", Goose: "postgres", MaxParams: 65535, Numbered: true},
	"sqlite":   {Name: "sqlite", Driver: "sqlite", Goose: "sqlite3", MaxParams: 32766, SingleConn: true},
	"sqlite3":  {Name: "sqlite", Driver: "sqlite3", Goose: "sqlite3", MaxParams: 32766, SingleConn: true},
	"duckdb":   {Name: "duckdb", Driver: "duckdb", MaxParams: 65535, SingleConn: true},
}

// LookupDialect returns the dialect registered under name. "pgx" and
// "postgresql" are accepted for postgres.
func LookupDialect(name string) (Dialect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "pgx", "postgresql":
		name = "postgres"
	}
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("unknown database driver %q (want one of %s)", name, strings.Join(DialectNames(), ", "))
	}
	return d, nil
}

// DialectNames lists the supported driver names.
func DialectNames() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Placeholder returns the bind marker for the n-th (1-based) parameter.
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// QuoteIdent quotes a possibly schema-qualified identifier.
func QuoteIdent(parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(p, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, ".")
}
