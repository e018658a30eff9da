package utterance

import (
	"math"
	"strings"
)

// RawSpeaker is a speaker profile as projected by a repository.
type RawSpeaker struct {
	DisplayName *string  `json:"display_name"`
	Gender      *string  `json:"gender"`
	Age         *float64 `json:"age"`
}

// RawRecord is an utterance row as returned by a repository, before joined
// relations are collapsed.
type RawRecord struct {
	ID         string           `json:"id"`
	Index      *int             `json:"idx"`
	Text       *string          `json:"text"`
	CreatedAt  *string          `json:"created_at"`
	Language   *string          `json:"language"`
	Speaker    Join[RawSpeaker] `json:"speaker"`
	Recordings Join[Recording]  `json:"recordings"`
}

// Normalize collapses raw rows into canonical records, preserving order.
func Normalize(raws []RawRecord) []Record {
	if len(raws) == 0 {
		return nil
	}
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		out = append(out, NormalizeOne(raw))
	}
	return out
}

// NormalizeOne collapses a single raw row.
func NormalizeOne(raw RawRecord) Record {
	rec := Record{
		ID:         raw.ID,
		Index:      raw.Index,
		Text:       raw.Text,
		CreatedAt:  raw.CreatedAt,
		Language:   raw.Language,
		Recordings: raw.Recordings.All(),
	}
	if sp, ok := raw.Speaker.First(); ok {
		rec.Speaker = normalizeSpeaker(sp)
	}
	return rec
}

func normalizeSpeaker(raw RawSpeaker) *Speaker {
	sp := &Speaker{
		DisplayName: raw.DisplayName,
		Gender:      UnspecifiedGender,
		Age:         math.NaN(),
	}
	if raw.Gender != nil && strings.TrimSpace(*raw.Gender) != "" {
		sp.Gender = *raw.Gender
	}
	if raw.Age != nil {
		sp.Age = *raw.Age
	}
	return sp
}

// Raw re-encodes a canonical record so that normalizing it again yields the
// same record.
func (r Record) Raw() RawRecord {
	raw := RawRecord{
		ID:        r.ID,
		Index:     r.Index,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
		Language:  r.Language,
	}
	if len(r.Recordings) > 0 {
		recs := make([]Recording, len(r.Recordings))
		copy(recs, r.Recordings)
		raw.Recordings = Many(recs)
	}
	if r.Speaker != nil {
		gender := r.Speaker.Gender
		sp := RawSpeaker{DisplayName: r.Speaker.DisplayName, Gender: &gender}
		if r.Speaker.HasAge() {
			age := r.Speaker.Age
			sp.Age = &age
		}
		raw.Speaker = One(sp)
	}
	return raw
}
