// Package logging assembles structured slog loggers and formatting helpers used
// across uttervault.
//
// It owns the console/JSON handlers, fans records out to the persistent log
// file, and exposes context-aware helpers so pipeline code can automatically
// tag log lines with export IDs, operations, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the system.
package logging
