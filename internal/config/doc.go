// Package config loads, normalizes, and validates uttervault configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DATABASE_URL and SUPABASE_SERVICE_ROLE_KEY. The Config type centralizes every
// knob the CLI and daemon need, so the record store, blob storage and
// transcoder are all discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical driver names, and clear validation errors.
package config
