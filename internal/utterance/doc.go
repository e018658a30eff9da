// Package utterance defines the canonical utterance record exported by
// uttervault and the normalizer that produces it from raw repository rows.
//
// Repositories project joined relations (the speaker profile and the list of
// recording references) in whatever shape the backing store emits: a JSON
// object, a JSON array, or null. Join captures that variance and Normalize
// collapses it so the archive layer only ever sees Record.
package utterance
