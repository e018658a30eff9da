// Package bootstrap assembles the export stack from configuration: the
// record repository, the blob downloader, the transcoding engine, the
// archive assembler and the export pipeline. The CLI and uttervaultd share
// it so both run exports the same way.
package bootstrap
