package utterance

import (
	"encoding/hex"
	"math"
	"strings"
)

const (
	// UnspecifiedGender is recorded when a speaker profile has no gender.
	UnspecifiedGender = "unspecified"
	// UnspecifiedSpeaker is the display name for anonymous speakers.
	UnspecifiedSpeaker = "Not specified"
)

// Recording references one stored audio object of an utterance.
type Recording struct {
	StorageKey *string `json:"storage_key"`
	Ext        *string `json:"ext"`
	Status     *string `json:"status"`
}

// Speaker is the normalized speaker profile. Age is NaN when unknown.
type Speaker struct {
	DisplayName *string
	Gender      string
	Age         float64
}

// Record is a canonical utterance ready for archiving.
type Record struct {
	ID         string
	Index      *int
	Text       *string
	CreatedAt  *string
	Language   *string
	Recordings []Recording
	Speaker    *Speaker
}

// PrimaryRecording returns the first recording reference that names a
// storage object.
func (r Record) PrimaryRecording() (Recording, bool) {
	for _, rec := range r.Recordings {
		if rec.StorageKey != nil && strings.TrimSpace(*rec.StorageKey) != "" {
			return rec, true
		}
	}
	return Recording{}, false
}

// SpeakerDisplayName renders the speaker for the metadata sidecar.
func (r Record) SpeakerDisplayName() string {
	if r.Speaker == nil || r.Speaker.DisplayName == nil {
		return UnspecifiedSpeaker
	}
	name := strings.TrimSpace(*r.Speaker.DisplayName)
	if name == "" || strings.EqualFold(name, "default") {
		return UnspecifiedSpeaker
	}
	return name
}

// TextValue returns the utterance text or an empty string.
func (r Record) TextValue() string { return deref(r.Text) }

// LanguageValue returns the language tag or an empty string.
func (r Record) LanguageValue() string { return deref(r.Language) }

// ShortIDLength is the number of id characters a folder name carries at least.
const ShortIDLength = 8

// SafeID returns the record id restricted to [A-Za-z0-9-]. Every other byte,
// including path separators, dots and each byte of a multi-byte rune, is
// written as two lowercase hex digits.
func (r Record) SafeID() string {
	var b strings.Builder
	for i := 0; i < len(r.ID); i++ {
		c := r.ID[i]
		if c == '-' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			b.WriteByte(c)
			continue
		}
		b.WriteString(hex.EncodeToString([]byte{c}))
	}
	return b.String()
}

// IDPrefix returns the first n characters of SafeID. A non-positive n or one
// past the end returns all of it.
func (r Record) IDPrefix(n int) string {
	safe := r.SafeID()
	if n <= 0 || n >= len(safe) {
		return safe
	}
	return safe[:n]
}

// ShortID returns the first ShortIDLength characters of SafeID.
func (r Record) ShortID() string {
	return r.IDPrefix(ShortIDLength)
}

// HasAge reports whether the speaker age is known.
func (s Speaker) HasAge() bool {
	return !math.IsNaN(s.Age)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
