// Package catalog reads utterance rows from the record repository.
//
// Two backends are provided: PostgresRepository queries the hosted database
// through pgx, and SQLiteRepository serves a local mirror stored with
// modernc.org/sqlite. Both project the speaker profile and recording
// references as JSON so that utterance.Normalize sees the same raw shapes
// regardless of backend.
//
// Filtered fetches page through the table in fixed-size rounds ordered by
// creation time, newest first, stopping at the first short round. Rows
// inserted or deleted while a fetch is in progress may be skipped or seen
// twice; callers accept that weak consistency.
package catalog
