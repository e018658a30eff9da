package utterance

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func strPtr(s string) *string { return &s }

func sameSpeaker(a, b *Speaker) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !reflect.DeepEqual(a.DisplayName, b.DisplayName) || a.Gender != b.Gender {
		return false
	}
	if math.IsNaN(a.Age) || math.IsNaN(b.Age) {
		return math.IsNaN(a.Age) && math.IsNaN(b.Age)
	}
	return a.Age == b.Age
}

func sameRecord(a, b Record) bool {
	if !sameSpeaker(a.Speaker, b.Speaker) {
		return false
	}
	a.Speaker, b.Speaker = nil, nil
	return reflect.DeepEqual(a, b)
}

func decodeRaw(t *testing.T, payload string) RawRecord {
	t.Helper()
	var raw RawRecord
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("decode raw record: %v", err)
	}
	return raw
}

func TestJoinDecodesAllShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    JoinKind
		first   string
		ok      bool
	}{
		{"object", `{"display_name":"Ana"}`, JoinOne, "Ana", true},
		{"array", `[{"display_name":"Ana"},{"display_name":"Bo"}]`, JoinMany, "Ana", true},
		{"empty array", `[]`, JoinMany, "", false},
		{"null", `null`, JoinAbsent, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j Join[RawSpeaker]
			if err := json.Unmarshal([]byte(tt.payload), &j); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if j.Kind() != tt.kind {
				t.Fatalf("kind = %v, want %v", j.Kind(), tt.kind)
			}
			got, ok := j.First()
			if ok != tt.ok {
				t.Fatalf("First ok = %v, want %v", ok, tt.ok)
			}
			if ok && *got.DisplayName != tt.first {
				t.Fatalf("First = %q, want %q", *got.DisplayName, tt.first)
			}
		})
	}
}

func TestJoinRejectsScalars(t *testing.T) {
	var j Join[Recording]
	if err := json.Unmarshal([]byte(`"oops"`), &j); err == nil {
		t.Fatal("expected error for scalar relation")
	}
}

func TestNormalizeCollapsesJoinShapes(t *testing.T) {
	arrayForm := decodeRaw(t, `{"id":"a1","idx":4,"text":"hola","language":"es",
		"speaker":[{"display_name":"Ana","gender":"female","age":31}],
		"recordings":[{"storage_key":"a1/rec.m4a","ext":"m4a","status":"done"}]}`)
	objectForm := decodeRaw(t, `{"id":"a1","idx":4,"text":"hola","language":"es",
		"speaker":{"display_name":"Ana","gender":"female","age":31},
		"recordings":{"storage_key":"a1/rec.m4a","ext":"m4a","status":"done"}}`)

	got := Normalize([]RawRecord{arrayForm, objectForm})
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if !sameRecord(got[0], got[1]) {
		t.Fatalf("array and object encodings normalized differently:\n%+v\n%+v", got[0], got[1])
	}
	rec := got[0]
	if rec.Speaker == nil || rec.Speaker.Gender != "female" || rec.Speaker.Age != 31 {
		t.Fatalf("unexpected speaker: %+v", rec.Speaker)
	}
	primary, ok := rec.PrimaryRecording()
	if !ok || *primary.StorageKey != "a1/rec.m4a" {
		t.Fatalf("unexpected primary recording: %+v ok=%v", primary, ok)
	}
}

func TestNormalizeAbsentRelations(t *testing.T) {
	raw := decodeRaw(t, `{"id":"b2","text":null,"speaker":null}`)
	rec := NormalizeOne(raw)
	if rec.Speaker != nil {
		t.Fatalf("expected nil speaker, got %+v", rec.Speaker)
	}
	if rec.Recordings != nil {
		t.Fatalf("expected nil recordings, got %+v", rec.Recordings)
	}
	if rec.Text != nil || rec.Language != nil || rec.Index != nil {
		t.Fatalf("expected missing scalars to stay nil: %+v", rec)
	}
	if _, ok := rec.PrimaryRecording(); ok {
		t.Fatal("expected no primary recording")
	}
}

func TestNormalizeSpeakerDefaults(t *testing.T) {
	rec := NormalizeOne(decodeRaw(t, `{"id":"c3","speaker":{"display_name":"Bo","gender":"  "}}`))
	if rec.Speaker.Gender != UnspecifiedGender {
		t.Fatalf("gender = %q, want %q", rec.Speaker.Gender, UnspecifiedGender)
	}
	if rec.Speaker.HasAge() {
		t.Fatalf("expected unknown age, got %v", rec.Speaker.Age)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raws := []RawRecord{
		decodeRaw(t, `{"id":"d4","idx":1,"text":"one","created_at":"2026-01-02T03:04:05Z","language":"en",
			"speaker":[{"display_name":"default"}],
			"recordings":[{"storage_key":null},{"storage_key":"d4.wav","ext":".wav"}]}`),
		decodeRaw(t, `{"id":"e5","speaker":{"display_name":"Cy","gender":"male","age":40},"recordings":[]}`),
		decodeRaw(t, `{"id":"f6"}`),
	}
	once := Normalize(raws)
	again := make([]RawRecord, 0, len(once))
	for _, rec := range once {
		again = append(again, rec.Raw())
	}
	twice := Normalize(again)
	for i := range once {
		if !sameRecord(once[i], twice[i]) {
			t.Fatalf("record %d changed after renormalizing:\n%+v\n%+v", i, once[i], twice[i])
		}
	}
}

func TestPrimaryRecordingSkipsBlankKeys(t *testing.T) {
	rec := Record{Recordings: []Recording{{StorageKey: strPtr("  ")}, {StorageKey: strPtr("k2")}}}
	primary, ok := rec.PrimaryRecording()
	if !ok || *primary.StorageKey != "k2" {
		t.Fatalf("expected second recording, got %+v ok=%v", primary, ok)
	}
}

func TestSpeakerDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		speaker *Speaker
		want    string
	}{
		{"missing speaker", nil, UnspecifiedSpeaker},
		{"missing name", &Speaker{}, UnspecifiedSpeaker},
		{"blank", &Speaker{DisplayName: strPtr("   ")}, UnspecifiedSpeaker},
		{"default", &Speaker{DisplayName: strPtr("Default")}, UnspecifiedSpeaker},
		{"named", &Speaker{DisplayName: strPtr("  Ana María ")}, "Ana María"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{Speaker: tt.speaker}
			if got := rec.SpeakerDisplayName(); got != tt.want {
				t.Fatalf("SpeakerDisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	if got := (Record{ID: "0123456789abcdef"}).ShortID(); got != "01234567" {
		t.Fatalf("ShortID = %q", got)
	}
	if got := (Record{ID: "abc"}).ShortID(); got != "abc" {
		t.Fatalf("ShortID = %q", got)
	}
}

func TestSafeIDEncodesUnsafeBytes(t *testing.T) {
	tests := []struct {
		id    string
		safe  string
		short string
	}{
		{id: "3f2a9c1e-AAAA", safe: "3f2a9c1e-AAAA", short: "3f2a9c1e"},
		{id: "a/../../x", safe: "a2f2e2e2f2e2e2fx", short: "a2f2e2e2"},
		{id: `a\b`, safe: "a5cb", short: "a5cb"},
		{id: "é1", safe: "c3a91", short: "c3a91"},
		{id: "录音录音", safe: "e5bd95e99fb3e5bd95e99fb3", short: "e5bd95e9"},
	}
	for _, tt := range tests {
		rec := Record{ID: tt.id}
		if got := rec.SafeID(); got != tt.safe {
			t.Errorf("SafeID(%q) = %q, want %q", tt.id, got, tt.safe)
		}
		short := rec.ShortID()
		if short != tt.short {
			t.Errorf("ShortID(%q) = %q, want %q", tt.id, short, tt.short)
		}
		if !utf8.ValidString(short) || strings.ContainsAny(short, `/\.`) {
			t.Errorf("ShortID(%q) = %q is not a safe path segment", tt.id, short)
		}
	}
	if got := (Record{ID: "0123456789abcdef"}).IDPrefix(12); got != "0123456789ab" {
		t.Fatalf("IDPrefix(12) = %q", got)
	}
	if got := (Record{ID: "abc"}).IDPrefix(0); got != "abc" {
		t.Fatalf("IDPrefix(0) = %q", got)
	}
}
