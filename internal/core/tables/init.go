// Package tables registers the built-in import destinations with the core
// registry. Import it for side effects.
package tables
