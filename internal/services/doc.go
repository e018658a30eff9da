// Package services defines shared utilities consumed by the export pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp export run IDs, operation names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that tag failures so the
//     pipeline can tell fatal repository errors from per-record audio problems.
//
// Use these helpers when wiring new integrations so operational behaviour
// (error classification, observability) stays uniform across the codebase.
package services
