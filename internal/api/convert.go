package api

import (
	"time"

	"uttervault/internal/export"
	"uttervault/internal/preflight"
	"uttervault/internal/utterance"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FromRecord converts a normalized record.
func FromRecord(rec utterance.Record) Utterance {
	out := Utterance{
		ID:         rec.ID,
		Index:      rec.Index,
		Text:       rec.TextValue(),
		Language:   rec.LanguageValue(),
		Speaker:    rec.SpeakerDisplayName(),
		Recordings: len(rec.Recordings),
	}
	if rec.CreatedAt != nil {
		out.CreatedAt = *rec.CreatedAt
	}
	if rec.Speaker != nil {
		out.Gender = rec.Speaker.Gender
		if rec.Speaker.HasAge() {
			age := rec.Speaker.Age
			out.Age = &age
		}
	}
	if primary, ok := rec.PrimaryRecording(); ok {
		entry := &AudioEntry{StorageKey: *primary.StorageKey}
		if primary.Ext != nil {
			entry.Ext = *primary.Ext
		}
		out.PrimaryAudio = entry
	}
	return out
}

// FromRecords converts records preserving order.
func FromRecords(records []utterance.Record) []Utterance {
	out := make([]Utterance, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromOutcome converts an export outcome.
func FromOutcome(o export.Outcome) ExportResult {
	return ExportResult{
		Status:       string(o.Status),
		ExportID:     o.ExportID,
		FileName:     o.FileName,
		Location:     o.Location,
		Size:         o.Size,
		Records:      o.Stats.Records,
		AudioWritten: o.Stats.AudioWritten,
		Missing:      o.Stats.Missing,
		Failed:       o.Stats.Failed,
		Transcoded:   o.Stats.Transcoded,
		Duplicates:   o.Stats.Duplicates,
		Message:      o.Message,
	}
}

// FromDependencies converts binary statuses.
func FromDependencies(statuses []preflight.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Path:        dep.Path,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, len(results))
	for i, r := range results {
		out[i] = CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail}
	}
	return out
}

// FormatTime renders t for API payloads; the zero time renders empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
