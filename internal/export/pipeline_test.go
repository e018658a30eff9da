package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"uttervault/internal/archive"
	"uttervault/internal/catalog"
	"uttervault/internal/services"
	"uttervault/internal/utterance"
)

type fakeRepo struct {
	records   []utterance.RawRecord
	err       error
	started   chan struct{}
	release   chan struct{}
	idCalls   atomic.Int32
	filterArg catalog.Filter
}

func (r *fakeRepo) wait(ctx context.Context) error {
	if r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.err
}

func (r *fakeRepo) FetchByIDs(ctx context.Context, ids []string) ([]utterance.RawRecord, error) {
	r.idCalls.Add(1)
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var out []utterance.RawRecord
	for _, rec := range r.records {
		if wanted[rec.ID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRepo) FetchByFilter(ctx context.Context, f catalog.Filter) ([]utterance.RawRecord, error) {
	r.filterArg = f
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.records, nil
}

func (r *fakeRepo) Page(context.Context, catalog.Filter, int, int) (catalog.Page, error) {
	return catalog.Page{}, nil
}

type fakeArchiver struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (a *fakeArchiver) Assemble(_ context.Context, records []utterance.Record) ([]byte, archive.Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	a.calls = append(a.calls, ids)
	if a.err != nil {
		return nil, archive.Stats{}, a.err
	}
	return []byte("zip:" + strings.Join(ids, ",")), archive.Stats{Records: len(records)}, nil
}

type captureDeliverer struct {
	mu    sync.Mutex
	names []string
	data  [][]byte
}

func (c *captureDeliverer) Deliver(_ context.Context, name string, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	c.data = append(c.data, data)
	return "memory://" + name, nil
}

func rawRecords(ids ...string) []utterance.RawRecord {
	out := make([]utterance.RawRecord, len(ids))
	for i, id := range ids {
		out[i] = utterance.RawRecord{ID: id}
	}
	return out
}

var fixedNow = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 123_000_000, time.UTC) }

func newTestPipeline(repo catalog.Repository, arch Archiver, d Deliverer) *Pipeline {
	return NewPipeline(Options{Repository: repo, Archiver: arch, Deliverer: d, Now: fixedNow})
}

func TestExportByIDsOrdersRecordsAndDelivers(t *testing.T) {
	repo := &fakeRepo{records: rawRecords("c", "a", "b")}
	arch := &fakeArchiver{}
	dl := &captureDeliverer{}
	p := newTestPipeline(repo, arch, dl)

	out, err := p.ExportByIDs(context.Background(), []string{"b", "missing", "a", "c"})
	if err != nil {
		t.Fatalf("ExportByIDs: %v", err)
	}
	if out.Status != StatusCompleted {
		t.Fatalf("status = %s", out.Status)
	}
	if got := strings.Join(arch.calls[0], ","); got != "b,a,c" {
		t.Fatalf("archived order = %s, want b,a,c", got)
	}
	if out.FileName != "utterances-2026-10-18T09-30-00-123Z.zip" {
		t.Fatalf("file name = %s", out.FileName)
	}
	if len(dl.names) != 1 || out.Location != "memory://"+out.FileName {
		t.Fatalf("unexpected delivery: %v location=%s", dl.names, out.Location)
	}
	if repo.idCalls.Load() != 1 {
		t.Fatalf("expected one repository call, got %d", repo.idCalls.Load())
	}
	if p.Downloading() {
		t.Fatal("flag should be released after completion")
	}
}

func TestExportByIDsEmptyIsSkipped(t *testing.T) {
	repo := &fakeRepo{}
	p := newTestPipeline(repo, &fakeArchiver{}, &captureDeliverer{})
	out, err := p.ExportByIDs(context.Background(), nil)
	if err != nil || out.Status != StatusSkipped {
		t.Fatalf("got %+v, %v", out, err)
	}
	if repo.idCalls.Load() != 0 {
		t.Fatal("repository should not be queried for empty ids")
	}
}

func TestExportByIDsNoRecordsFound(t *testing.T) {
	arch := &fakeArchiver{}
	dl := &captureDeliverer{}
	p := newTestPipeline(&fakeRepo{records: rawRecords("x")}, arch, dl)

	out, err := p.ExportByIDs(context.Background(), []string{"unknown"})
	if !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords, got %v", err)
	}
	if out.Status != StatusFailed || out.Message != "Download failed: No data found for the requested utterances." {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(arch.calls) != 0 || len(dl.names) != 0 {
		t.Fatal("no archive should be built")
	}
	if p.Downloading() {
		t.Fatal("flag should be released after failure")
	}
}

func TestExportByFilterNoMatchesBuildsNoArchive(t *testing.T) {
	repo := &fakeRepo{}
	arch := &fakeArchiver{}
	dl := &captureDeliverer{}
	p := newTestPipeline(repo, arch, dl)

	out, err := p.ExportByFilter(context.Background(), catalog.Filter{Language: "  xx "})
	if err != nil {
		t.Fatalf("ExportByFilter: %v", err)
	}
	if out.Status != StatusNoMatches || out.Message != NoMatchesMessage {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(arch.calls) != 0 || len(dl.names) != 0 {
		t.Fatal("no archive should be built or delivered")
	}
	if repo.filterArg.Language != "xx" {
		t.Fatalf("filter not trimmed: %q", repo.filterArg.Language)
	}
}

func TestExportSingleFlight(t *testing.T) {
	repo := &fakeRepo{
		records: rawRecords("a", "b"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	arch := &fakeArchiver{}
	dl := &captureDeliverer{}
	p := newTestPipeline(repo, arch, dl)

	done := make(chan Outcome, 1)
	go func() {
		out, err := p.ExportByFilter(context.Background(), catalog.Filter{})
		if err != nil {
			t.Errorf("first export failed: %v", err)
		}
		done <- out
	}()

	<-repo.started
	if !p.Downloading() {
		t.Fatal("expected export to be in flight")
	}
	busy, err := p.ExportByIDs(context.Background(), []string{"a"})
	if err != nil || busy.Status != StatusBusy {
		t.Fatalf("second export = %+v, %v; want busy", busy, err)
	}
	busy, err = p.ExportByFilter(context.Background(), catalog.Filter{Language: "en"})
	if err != nil || busy.Status != StatusBusy {
		t.Fatalf("third export = %+v, %v; want busy", busy, err)
	}

	close(repo.release)
	first := <-done
	if first.Status != StatusCompleted {
		t.Fatalf("first export status = %s", first.Status)
	}
	if len(arch.calls) != 1 || len(dl.names) != 1 {
		t.Fatalf("expected exactly one archive, got %d assembled and %d delivered", len(arch.calls), len(dl.names))
	}
	if repo.idCalls.Load() != 0 {
		t.Fatal("busy export must not reach the repository")
	}
	if p.Downloading() {
		t.Fatal("flag should be released")
	}
}

func TestExportRepositoryErrorIsReported(t *testing.T) {
	cause := services.Wrap(services.ErrExternalTool, "catalog", "fetch by filter", "query utterances", errors.New("connection refused"))
	p := newTestPipeline(&fakeRepo{err: cause}, &fakeArchiver{}, &captureDeliverer{})

	out, err := p.ExportByFilter(context.Background(), catalog.Filter{})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected repository error, got %v", err)
	}
	if out.Status != StatusFailed || !strings.HasPrefix(out.Message, "Download failed: ") || !strings.Contains(out.Message, "connection refused") {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if p.Downloading() {
		t.Fatal("flag should be released after failure")
	}
}

func TestExportToExplicitDeliverer(t *testing.T) {
	def := &captureDeliverer{}
	explicit := &captureDeliverer{}
	p := newTestPipeline(&fakeRepo{records: rawRecords("a")}, &fakeArchiver{}, def)

	if _, err := p.ExportByIDsTo(context.Background(), []string{"a"}, explicit); err != nil {
		t.Fatalf("ExportByIDsTo: %v", err)
	}
	if len(def.names) != 0 || len(explicit.names) != 1 {
		t.Fatalf("archive delivered to the wrong destination: default=%d explicit=%d", len(def.names), len(explicit.names))
	}
}

func TestDirDeliverer(t *testing.T) {
	dir := t.TempDir()
	path, err := DirDeliverer{Dir: dir}.Deliver(context.Background(), "utterances-2026-10-18T09-30-00-123Z.zip", []byte("PK"))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if path != filepath.Join(dir, "utterances-2026-10-18T09-30-00-123Z.zip") {
		t.Fatalf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "PK" {
		t.Fatalf("read delivered archive: %q, %v", data, err)
	}
}

func TestArchiveName(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	got := ArchiveName(time.Date(2026, 1, 2, 5, 4, 5, 0, loc))
	if got != "utterances-2026-01-02T03-04-05-000Z.zip" {
		t.Fatalf("ArchiveName = %s", got)
	}
}
