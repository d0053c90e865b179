// Package logging wraps log/slog with loom's handlers and attribute helpers.
//
// Two output formats exist: a compact console handler for interactive use
// and a JSON handler with normalized ts/level/msg keys for files and log
// shippers. Components attach themselves with NewComponentLogger and use the
// Field* constants so attribute keys stay uniform across the codebase.
package logging
