//go:build cgo

package sqlstore

import (
	_ "github.com/marcboeker/go-duckdb" // "duckdb" (requires cgo)
)
