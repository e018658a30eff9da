// Package preflight provides readiness checks for the binaries, directories
// and remote endpoints uttervault depends on.
//
// The CLI "uttervault status" and "uttervault deps" commands render these
// results, and uttervaultd logs them at startup. A failed check never stops
// the daemon: exports surface the underlying problem per record instead.
package preflight
