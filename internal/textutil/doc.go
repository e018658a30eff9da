// Package textutil provides text helpers shared by the archive and delivery
// layers.
//
// The primary use cases are:
//   - Deriving ASCII slugs from free text for archive folder names
//   - Quoting values for the metadata CSV sidecar
//   - Sanitizing filenames for safe filesystem use
//
// Slugs are produced by decomposing text (NFD), dropping combining marks,
// lowercasing, and collapsing every run of characters outside [a-z0-9] into a
// single hyphen.
package textutil
