package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"uttervault/internal/utterance"
)

func openTestSQLite(t *testing.T, batchSize int) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "utterances.db"), batchSize)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T, repo *SQLiteRepository, recs ...utterance.Record) {
	t.Helper()
	for _, rec := range recs {
		if err := repo.Upsert(context.Background(), rec); err != nil {
			t.Fatalf("Upsert %s: %v", rec.ID, err)
		}
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	repo := openTestSQLite(t, 0)
	seed(t, repo,
		utterance.Record{
			ID: "aaaaaaaa-1", Index: ptr(1), Text: ptr("hello"), Language: ptr("en-US"),
			CreatedAt: ptr("2026-10-01T10:00:00.000Z"),
			Speaker:   &utterance.Speaker{DisplayName: ptr("Ana"), Gender: "female", Age: 30},
			Recordings: []utterance.Recording{
				{StorageKey: ptr("a/1.m4a"), Ext: ptr("m4a"), Status: ptr("done")},
				{StorageKey: ptr("a/2.wav"), Ext: ptr("wav")},
			},
		},
		utterance.Record{ID: "bbbbbbbb-2", CreatedAt: ptr("2026-10-02T10:00:00.000Z")},
	)

	raws, err := repo.FetchByIDs(context.Background(), []string{"bbbbbbbb-2", "aaaaaaaa-1", "nope"})
	if err != nil {
		t.Fatalf("FetchByIDs: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(raws))
	}
	byID := map[string]utterance.Record{}
	for _, rec := range utterance.Normalize(raws) {
		byID[rec.ID] = rec
	}

	a := byID["aaaaaaaa-1"]
	if a.TextValue() != "hello" || a.Index == nil || *a.Index != 1 {
		t.Fatalf("unexpected scalars: %+v", a)
	}
	if a.SpeakerDisplayName() != "Ana" || a.Speaker.Gender != "female" || a.Speaker.Age != 30 {
		t.Fatalf("unexpected speaker: %+v", a.Speaker)
	}
	if len(a.Recordings) != 2 || *a.Recordings[0].StorageKey != "a/1.m4a" {
		t.Fatalf("unexpected recordings: %+v", a.Recordings)
	}

	b := byID["bbbbbbbb-2"]
	if b.Speaker != nil || b.Recordings != nil || b.Text != nil || b.Index != nil {
		t.Fatalf("expected bare record, got %+v", b)
	}
}

func TestSQLiteFetchByFilterOrdersNewestFirst(t *testing.T) {
	repo := openTestSQLite(t, 4)
	for i := 0; i < 10; i++ {
		lang := "en"
		if i%2 == 1 {
			lang = "ES-mx"
		}
		seed(t, repo, utterance.Record{
			ID:        fmt.Sprintf("utt-%02d", i),
			Language:  ptr(lang),
			CreatedAt: ptr(fmt.Sprintf("2026-10-01T10:00:%02d.000Z", i)),
		})
	}

	raws, err := repo.FetchByFilter(context.Background(), Filter{Language: " es "})
	if err != nil {
		t.Fatalf("FetchByFilter: %v", err)
	}
	if len(raws) != 5 {
		t.Fatalf("expected 5 matches, got %d", len(raws))
	}
	if raws[0].ID != "utt-09" || raws[4].ID != "utt-01" {
		t.Fatalf("unexpected order: first=%s last=%s", raws[0].ID, raws[4].ID)
	}

	all, err := repo.FetchByFilter(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("FetchByFilter: %v", err)
	}
	if len(all) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(all))
	}

	none, err := repo.FetchByFilter(context.Background(), Filter{Language: "fr"})
	if err != nil {
		t.Fatalf("FetchByFilter: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches, got %d", len(none))
	}
}

func TestSQLitePage(t *testing.T) {
	repo := openTestSQLite(t, 0)
	for i := 0; i < 7; i++ {
		seed(t, repo, utterance.Record{
			ID:        fmt.Sprintf("utt-%02d", i),
			Language:  ptr("en"),
			CreatedAt: ptr(fmt.Sprintf("2026-10-01T10:00:%02d.000Z", i)),
		})
	}
	page, err := repo.Page(context.Background(), Filter{Language: "EN"}, 5, 5)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if page.Total != 7 || len(page.Records) != 2 {
		t.Fatalf("unexpected page: total=%d rows=%d", page.Total, len(page.Records))
	}
	if page.Records[0].ID != "utt-01" {
		t.Fatalf("unexpected first row on page 2: %s", page.Records[0].ID)
	}
}

func TestSQLiteUpsertReplacesRecordings(t *testing.T) {
	repo := openTestSQLite(t, 0)
	rec := utterance.Record{ID: "utt-1", Recordings: []utterance.Recording{{StorageKey: ptr("old")}}}
	seed(t, repo, rec)
	rec.Recordings = []utterance.Recording{{StorageKey: ptr("new")}}
	seed(t, repo, rec)

	raws, err := repo.FetchByIDs(context.Background(), []string{"utt-1"})
	if err != nil {
		t.Fatalf("FetchByIDs: %v", err)
	}
	recs := raws[0].Recordings.All()
	if len(recs) != 1 || *recs[0].StorageKey != "new" {
		t.Fatalf("expected replaced recordings, got %+v", recs)
	}
}

func TestSQLiteUpsertRequiresID(t *testing.T) {
	repo := openTestSQLite(t, 0)
	if err := repo.Upsert(context.Background(), utterance.Record{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}
