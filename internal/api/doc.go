// Package api defines wire-format types and converters for the HTTP API and
// the CLI's JSON output. It translates normalized utterance records, export
// outcomes and preflight results into transport-friendly DTOs.
//
// DTOs use snake_case JSON tags to match the column names of the utterance
// table. CatalogService wraps a catalog.Repository with the page arithmetic
// both the "list" command and GET /api/utterances share.
package api
