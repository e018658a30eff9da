// Package export runs batch exports: it resolves records from the catalog,
// normalizes them, assembles the archive, and hands the result to a
// Deliverer.
//
// A Pipeline runs at most one export at a time. A request that arrives while
// another export is in flight is dropped with StatusBusy rather than queued.
package export
