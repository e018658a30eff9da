package archive

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"uttervault/internal/utterance"
)

func ptr[T any](v T) *T { return &v }

var folderPattern = regexp.MustCompile(`^utterance-[a-z0-9-]+-[a-z0-9-]+-[A-Za-z0-9-]{1,8}$`)

func TestFolderName(t *testing.T) {
	tests := []struct {
		name     string
		rec      utterance.Record
		position int
		want     string
	}{
		{
			name: "text and language",
			rec:  utterance.Record{ID: "3f2a9c1e-aaaa-bbbb", Text: ptr("¿Dónde está la biblioteca?"), Language: ptr("es-MX"), Index: ptr(7)},
			want: "utterance-es-mx-donde-esta-la-biblioteca-3f2a9c1e",
		},
		{
			name:     "missing text uses index",
			rec:      utterance.Record{ID: "0123456789", Language: ptr("en"), Index: ptr(42)},
			position: 3,
			want:     "utterance-en-idx-42-01234567",
		},
		{
			name:     "missing text and index uses position",
			rec:      utterance.Record{ID: "abcdef0123"},
			position: 4,
			want:     "utterance-unknown-idx-5-abcdef01",
		},
		{
			name: "path separators in id are encoded",
			rec:  utterance.Record{ID: "a/../../x", Index: ptr(1)},
			want: "utterance-unknown-idx-1-a2f2e2e2",
		},
		{
			name: "backslash in id is encoded",
			rec:  utterance.Record{ID: `..\..\win`, Text: ptr("hi"), Language: ptr("en")},
			want: "utterance-en-hi-2e2e5c2e",
		},
		{
			name: "non-ascii id is encoded by byte",
			rec:  utterance.Record{ID: "ñandú-01", Text: ptr("hola"), Language: ptr("es")},
			want: "utterance-es-hola-c3b1andc",
		},
		{
			name: "symbol-only text falls back",
			rec:  utterance.Record{ID: "ffffffff", Text: ptr("?!"), Index: ptr(1)},
			want: "utterance-unknown-idx-1-ffffffff",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FolderName(tt.rec, tt.position)
			if got != tt.want {
				t.Fatalf("FolderName = %q, want %q", got, tt.want)
			}
			if strings.ContainsAny(got, `/\`) || strings.Contains(got, "..") || !utf8.ValidString(got) {
				t.Fatalf("FolderName %q is not a safe path segment", got)
			}
			if !folderPattern.MatchString(got) {
				t.Fatalf("FolderName %q does not match %s", got, folderPattern)
			}
			if again := FolderName(tt.rec, tt.position); again != got {
				t.Fatalf("FolderName not stable: %q then %q", got, again)
			}
		})
	}
}

func TestFolderNameTruncatesLongText(t *testing.T) {
	rec := utterance.Record{ID: "12345678abcd", Language: ptr("en"), Text: ptr("the quick brown fox jumps over the lazy dog again and again")}
	got := FolderName(rec, 0)
	want := "utterance-en-the-quick-brown-fox-jumps-over-the-lazy--12345678"
	if got != want {
		t.Fatalf("FolderName = %q, want %q", got, want)
	}
}

func TestReserveRecordWidensSharedIDPrefix(t *testing.T) {
	m := NewManifest()
	tests := []struct {
		rec  utterance.Record
		want string
	}{
		{utterance.Record{ID: "recording-0001", Text: ptr("hello"), Language: ptr("en")}, "utterance-en-hello-recordin"},
		{utterance.Record{ID: "recording-0002", Text: ptr("hello"), Language: ptr("en")}, "utterance-en-hello-recording-0002"},
		{utterance.Record{ID: "recording-0003", Text: ptr("hello"), Language: ptr("en")}, "utterance-en-hello-recording-0003"},
		// "a/b" and "a2fb" share the safe id "a2fb".
		{utterance.Record{ID: "a/b", Text: ptr("x"), Language: ptr("en")}, "utterance-en-x-a2fb"},
		{utterance.Record{ID: "a2fb", Text: ptr("x"), Language: ptr("en")}, "utterance-en-x-a2fb-5"},
	}
	for position, tt := range tests {
		got, err := m.ReserveRecord(tt.rec, position)
		if err != nil {
			t.Fatalf("ReserveRecord(%q): %v", tt.rec.ID, err)
		}
		if got != tt.want {
			t.Fatalf("ReserveRecord(%q) = %q, want %q", tt.rec.ID, got, tt.want)
		}
	}
	if m.Len() != len(tests) {
		t.Fatalf("expected %d distinct folders, got %d", len(tests), m.Len())
	}
}

func TestMetadataCSV(t *testing.T) {
	rec := utterance.Record{
		Text:     ptr(`He said "hola", then left`),
		Language: ptr("es"),
		Speaker:  &utterance.Speaker{DisplayName: ptr("default")},
	}
	want := "text,language,speaker_name\n" + `"He said ""hola"", then left","es","Not specified"`
	if got := MetadataCSV(rec); got != want {
		t.Fatalf("MetadataCSV =\n%s\nwant\n%s", got, want)
	}

	empty := MetadataCSV(utterance.Record{})
	if empty != "text,language,speaker_name\n\"\",\"\",\"Not specified\"" {
		t.Fatalf("unexpected metadata for empty record: %q", empty)
	}
}

func TestAudioExt(t *testing.T) {
	tests := []struct {
		ext  *string
		want string
	}{
		{nil, "wav"},
		{ptr(""), "wav"},
		{ptr("."), "wav"},
		{ptr(".m4a"), "m4a"},
		{ptr("mp3"), "mp3"},
	}
	for _, tt := range tests {
		if got := AudioExt(utterance.Recording{Ext: tt.ext}); got != tt.want {
			t.Errorf("AudioExt(%v) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}
