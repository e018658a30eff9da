package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"uttervault/internal/api"
	"uttervault/internal/archive"
	"uttervault/internal/catalog"
	"uttervault/internal/config"
	"uttervault/internal/export"
	"uttervault/internal/testsupport"
	"uttervault/internal/utterance"
)

type stubRepo struct {
	rows    []utterance.RawRecord
	started chan struct{}
	release chan struct{}
}

func (r *stubRepo) block(ctx context.Context) error {
	if r.started == nil {
		return nil
	}
	close(r.started)
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *stubRepo) FetchByIDs(ctx context.Context, ids []string) ([]utterance.RawRecord, error) {
	if err := r.block(ctx); err != nil {
		return nil, err
	}
	var out []utterance.RawRecord
	for _, row := range r.rows {
		for _, id := range ids {
			if row.ID == id {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (r *stubRepo) FetchByFilter(ctx context.Context, f catalog.Filter) ([]utterance.RawRecord, error) {
	if err := r.block(ctx); err != nil {
		return nil, err
	}
	var out []utterance.RawRecord
	for _, row := range r.rows {
		if f.IsEmpty() || (row.Language != nil && strings.Contains(strings.ToLower(*row.Language), strings.ToLower(f.Language))) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *stubRepo) Page(_ context.Context, _ catalog.Filter, offset, limit int) (catalog.Page, error) {
	end := min(offset+limit, len(r.rows))
	var window []utterance.RawRecord
	if offset < len(r.rows) {
		window = r.rows[offset:end]
	}
	return catalog.Page{Records: window, Total: len(r.rows), Offset: offset, Limit: limit}, nil
}

type stubArchiver struct{}

func (stubArchiver) Assemble(_ context.Context, records []utterance.Record) ([]byte, archive.Stats, error) {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return []byte("PK:" + strings.Join(ids, ",")), archive.Stats{Records: len(records)}, nil
}

func lang(s string) *string { return &s }

func newTestDaemon(t *testing.T, repo *stubRepo, mutate func(*config.Config)) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Store.PageSize = 2
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	pipeline := export.NewPipeline(export.Options{
		Repository: repo,
		Archiver:   stubArchiver{},
		Deliverer:  export.DirDeliverer{Dir: cfg.Paths.OutputDir},
	})
	d, err := New(cfg, Dependencies{Repository: repo, Pipeline: pipeline}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func sampleRows() []utterance.RawRecord {
	return []utterance.RawRecord{
		{ID: "a", Language: lang("en")},
		{ID: "b", Language: lang("fr")},
		{ID: "c", Language: lang("en-GB")},
	}
}

func TestHandleUtterancesPages(t *testing.T) {
	d := newTestDaemon(t, &stubRepo{rows: sampleRows()}, nil)

	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/utterances?page=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.UtteranceListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || resp.TotalPages != 2 || len(resp.Items) != 1 || resp.Items[0].ID != "c" {
		t.Fatalf("unexpected page: %+v", resp)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}

	w = httptest.NewRecorder()
	d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/utterances?page=zero", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid page, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/utterances", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandleExportByIDsStreamsArchive(t *testing.T) {
	d := newTestDaemon(t, &stubRepo{rows: sampleRows()}, nil)

	body := bytes.NewBufferString(`{"ids":["c","a","zzz"]}`)
	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/export", body))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("unexpected content type %q", ct)
	}
	disposition := w.Header().Get("Content-Disposition")
	if !strings.HasPrefix(disposition, `attachment; filename="utterances-`) || !strings.HasSuffix(disposition, `.zip"`) {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	if got := w.Body.String(); got != "PK:c,a" {
		t.Fatalf("unexpected archive body %q", got)
	}
}

func TestHandleExportOutcomes(t *testing.T) {
	d := newTestDaemon(t, &stubRepo{rows: sampleRows()}, nil)

	tests := []struct {
		name   string
		body   string
		status int
		result string
	}{
		{"no matches", `{"language":"de"}`, http.StatusNotFound, "no_matches"},
		{"unknown ids", `{"ids":["nope"]}`, http.StatusNotFound, "failed"},
		{"empty ids", `{"ids":[]}`, http.StatusOK, "skipped"},
		{"bad json", `{"ids":`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/export", strings.NewReader(tt.body)))
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.result == "" {
				return
			}
			var result api.ExportResult
			if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if result.Status != tt.result {
				t.Fatalf("status = %q, want %q", result.Status, tt.result)
			}
		})
	}
}

func TestHandleExportWhileBusy(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(), started: make(chan struct{}), release: make(chan struct{})}
	d := newTestDaemon(t, repo, nil)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		w := httptest.NewRecorder()
		d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/export", strings.NewReader(`{}`)))
		first <- w
	}()
	<-repo.started

	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/export/status", nil))
	var status api.ExportStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil || !status.Downloading {
		t.Fatalf("expected downloading=true, got %s (%v)", w.Body.String(), err)
	}

	w = httptest.NewRecorder()
	d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/export", strings.NewReader(`{"ids":["a"]}`)))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while busy, got %d", w.Code)
	}

	close(repo.release)
	done := <-first
	if done.Code != http.StatusOK || done.Body.String() != "PK:a,b,c" {
		t.Fatalf("unexpected first export: %d %q", done.Code, done.Body.String())
	}
}

func TestAuthTokenRequired(t *testing.T) {
	d := newTestDaemon(t, &stubRepo{}, func(cfg *config.Config) { cfg.Paths.APIToken = "secret" })

	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/export/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/export/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	d.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func TestDaemonStartEnforcesSingleInstance(t *testing.T) {
	repo := &stubRepo{rows: sampleRows()}
	d := newTestDaemon(t, repo, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	second, err := New(d.cfg, Dependencies{Repository: repo, Pipeline: d.pipeline}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail")
	}

	resp, err := http.Get("http://" + d.Address() + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.PID == 0 || status.StoreDriver != "sqlite" || status.StartedAt == "" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(status.Dependencies) != 1 || status.Dependencies[0].Name != "FFmpeg" {
		t.Fatalf("unexpected dependencies: %+v", status.Dependencies)
	}
}
