// Package daemon coordinates the long-running uttervaultd process.
//
// It wires configuration, the record repository and the export pipeline into
// a single lifecycle with flock-based locking to prevent multiple instances,
// and serves the HTTP API: paged listings, export requests answered with the
// archive as an attachment, and status endpoints.
//
// Keep orchestration here: listing, archiving and delivery logic live in
// their own packages while the daemon focuses on startup, shutdown and
// request handling.
package daemon
