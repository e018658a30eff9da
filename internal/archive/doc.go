// Package archive assembles exported utterances into a single ZIP archive.
//
// Every record becomes one folder holding metadata.csv and either the
// record's primary audio file or a missing-audio.txt marker explaining why
// the audio is absent. Audio is downloaded (and transcoded when needed)
// concurrently, with a bounded number of records in flight. A failure for
// one record never aborts the archive: it is logged and recorded as a marker
// in that record's folder.
package archive
