// Command uttervault exports utterance recordings as ZIP archives.
//
// Exports run in-process: "uttervault export ids" and "uttervault export
// filter" fetch records from the configured repository, download each
// primary recording, and write utterances-<timestamp>.zip into the output
// directory. A lock file under the state directory keeps concurrent
// invocations from building archives at the same time.
//
// The remaining commands browse the repository ("list"), maintain the local
// SQLite mirror ("catalog"), report readiness ("status", "deps"), manage the
// configuration file ("config") and run the HTTP daemon in the foreground
// ("daemon run").
package main
