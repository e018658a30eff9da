package archive

import (
	"fmt"
	"strings"

	"uttervault/internal/textutil"
	"uttervault/internal/utterance"
)

const (
	folderPrefix = "utterance"

	// MetadataFile is the per-folder metadata sidecar.
	MetadataFile = "metadata.csv"
	// MissingAudioFile is written instead of audio when none could be included.
	MissingAudioFile = "missing-audio.txt"
	// DefaultAudioExt is used when a recording does not name its extension.
	DefaultAudioExt = "wav"

	MissingAudioMessage    = "No audio file was available for this utterance's primary recording."
	DownloadFailedMessage  = "Audio download failed for this utterance's primary recording."
	TranscodeFailedMessage = "Audio transcoding failed for this utterance's primary recording."
)

// FolderName returns the archive folder for rec at zero-based position in
// the export. The name is stable for a given record and position, contains
// no path separators, and ends in the first eight characters of the record
// id restricted to [A-Za-z0-9-] (see utterance.Record.SafeID).
func FolderName(rec utterance.Record, position int) string {
	return folderName(rec, position, utterance.ShortIDLength)
}

// folderName builds the folder name carrying idWidth characters of the safe
// id; a non-positive idWidth carries all of it.
func folderName(rec utterance.Record, position, idWidth int) string {
	language := textutil.Slugify(rec.LanguageValue(), "unknown")

	seq := position + 1
	if rec.Index != nil {
		seq = *rec.Index
	}
	text := textutil.Slugify(rec.TextValue(), fmt.Sprintf("idx-%d", seq))

	return fmt.Sprintf("%s-%s-%s-%s", folderPrefix, language, text, rec.IDPrefix(idWidth))
}

// MetadataCSV renders the metadata sidecar for rec.
func MetadataCSV(rec utterance.Record) string {
	header := strings.Join([]string{"text", "language", "speaker_name"}, ",")
	values := textutil.CSVLine(rec.TextValue(), rec.LanguageValue(), rec.SpeakerDisplayName())
	return header + "\n" + values
}

// AudioExt returns the recording extension without a leading dot, defaulting
// to DefaultAudioExt.
func AudioExt(rec utterance.Recording) string {
	if rec.Ext == nil {
		return DefaultAudioExt
	}
	ext := strings.TrimPrefix(*rec.Ext, ".")
	if ext == "" {
		return DefaultAudioExt
	}
	return ext
}

// AudioFilename returns the archive filename for audio with ext.
func AudioFilename(ext string) string {
	return "audio." + ext
}
