// Package blobstore retrieves recording audio from object storage.
//
// Three backends implement Downloader: an HTTP client for Supabase-style
// storage endpoints, an S3 client built on aws-sdk-go-v2, and a local
// directory reader used for mirrors and tests. Missing objects are reported
// with ErrNotFound so callers can tell them apart from transport failures.
package blobstore
