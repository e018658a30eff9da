package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"uttervault/internal/services"
)

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case **string:
			if v == nil {
				*d = nil
			} else {
				s := v.(string)
				*d = &s
			}
		case **int:
			if v == nil {
				*d = nil
			} else {
				n := v.(int)
				*d = &n
			}
		case *[]byte:
			if v == nil {
				*d = nil
			} else {
				*d = []byte(v.(string))
			}
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func utteranceRow(id string, idx any, text any, speaker any, recordings any) []any {
	return []any{id, idx, text, "2026-10-01T10:00:00.000Z", "en", speaker, recordings}
}

func TestPostgresFetchByIDsSingleQuery(t *testing.T) {
	t.Parallel()

	var queries int
	rows := &mockRows{data: [][]any{
		utteranceRow("id-2", 2, "second", `{"display_name":"Ana","gender":null,"age":null}`, `[{"storage_key":"id-2.m4a","ext":"m4a","status":"done"}]`),
		utteranceRow("id-1", nil, nil, nil, nil),
	}}
	db := &mockDB{queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		queries++
		if !strings.Contains(sql, "ANY($1)") {
			t.Errorf("expected ANY($1) in query, got %s", sql)
		}
		ids, ok := args[0].([]string)
		if !ok || len(ids) != 3 {
			t.Errorf("unexpected args: %#v", args)
		}
		return rows, nil
	}}
	repo := NewPostgresRepository(db, 0)

	got, err := repo.FetchByIDs(context.Background(), []string{"id-1", "id-2", "missing"})
	if err != nil {
		t.Fatalf("FetchByIDs: %v", err)
	}
	if queries != 1 {
		t.Fatalf("expected one query, got %d", queries)
	}
	if !rows.closed {
		t.Fatal("rows were not closed")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if sp, ok := got[0].Speaker.First(); !ok || *sp.DisplayName != "Ana" {
		t.Fatalf("speaker not decoded: %+v", got[0].Speaker)
	}
	if recs := got[0].Recordings.All(); len(recs) != 1 || *recs[0].StorageKey != "id-2.m4a" {
		t.Fatalf("recordings not decoded: %+v", recs)
	}
	if got[1].Index != nil || got[1].Text != nil {
		t.Fatalf("expected nil scalars, got %+v", got[1])
	}
	if _, ok := got[1].Speaker.First(); ok {
		t.Fatal("expected absent speaker")
	}
}

func TestPostgresFetchByIDsEmptySkipsQuery(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
		t.Fatal("no query expected for empty ids")
		return nil, nil
	}}
	got, err := NewPostgresRepository(db, 0).FetchByIDs(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestPostgresFetchByFilterPages(t *testing.T) {
	t.Parallel()

	var calls []string
	db := &mockDB{queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		if !strings.Contains(sql, "ILIKE $1") || !strings.Contains(sql, "ORDER BY u.created_at DESC") {
			t.Errorf("unexpected query: %s", sql)
		}
		if args[0] != "%en%" {
			t.Errorf("pattern = %v", args[0])
		}
		limit, offset := args[1].(int), args[2].(int)
		calls = append(calls, fmt.Sprintf("%d/%d", offset, limit))
		n := limit
		if offset > 0 {
			n = 1
		}
		data := make([][]any, n)
		for i := range data {
			data[i] = utteranceRow(fmt.Sprintf("id-%d", offset+i), offset+i, "x", nil, "[]")
		}
		return &mockRows{data: data}, nil
	}}

	got, err := NewPostgresRepository(db, 2).FetchByFilter(context.Background(), Filter{Language: "  en "})
	if err != nil {
		t.Fatalf("FetchByFilter: %v", err)
	}
	if strings.Join(calls, ",") != "0/2,2/2" {
		t.Fatalf("unexpected rounds: %v", calls)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
}

func TestPostgresFetchByFilterWithoutLanguageHasNoWhere(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		if strings.Contains(sql, "WHERE u.language") {
			t.Errorf("unexpected filter clause: %s", sql)
		}
		if len(args) != 2 {
			t.Errorf("expected limit and offset only, got %#v", args)
		}
		return &mockRows{}, nil
	}}
	if _, err := NewPostgresRepository(db, 0).FetchByFilter(context.Background(), Filter{}); err != nil {
		t.Fatalf("FetchByFilter: %v", err)
	}
}

func TestPostgresQueryErrorIsExternal(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
		return nil, errors.New("connection refused")
	}}
	_, err := NewPostgresRepository(db, 0).FetchByFilter(context.Background(), Filter{})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected cause in message, got %v", err)
	}
}

func TestPostgresPageReturnsTotal(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			if !strings.HasPrefix(sql, "SELECT count(*)") {
				t.Errorf("unexpected count query: %s", sql)
			}
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*int) = 51
				return nil
			}}
		},
		queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			if args[0] != 25 || args[1] != 25 {
				t.Errorf("expected limit 25 offset 25, got %#v", args)
			}
			return &mockRows{data: [][]any{utteranceRow("id-26", 26, "x", nil, nil)}}, nil
		},
	}
	page, err := NewPostgresRepository(db, 0).Page(context.Background(), Filter{}, 25, 25)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if page.Total != 51 || len(page.Records) != 1 || page.Offset != 25 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestPostgresMigrate(t *testing.T) {
	t.Parallel()

	var executed string
	db := &mockDB{execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		executed = sql
		return pgconn.CommandTag{}, nil
	}}
	if err := NewPostgresRepository(db, 0).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !strings.Contains(executed, "CREATE TABLE IF NOT EXISTS utterances") {
		t.Fatalf("schema not applied: %s", executed)
	}
}
