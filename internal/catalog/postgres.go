package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"uttervault/internal/utterance"
)

// PostgresSchema is the DDL of the tables PostgresRepository reads. Hosted
// deployments usually manage it themselves; Migrate applies it for local
// development.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS speakers (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    display_name TEXT,
    gender       TEXT,
    age          DOUBLE PRECISION
);
CREATE TABLE IF NOT EXISTS utterances (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    idx        INTEGER,
    text       TEXT,
    language   TEXT,
    speaker_id UUID REFERENCES speakers(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS recordings (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    utterance_id UUID NOT NULL REFERENCES utterances(id) ON DELETE CASCADE,
    storage_key  TEXT,
    ext          TEXT,
    status       TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_utterances_created_at ON utterances(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_recordings_utterance ON recordings(utterance_id);
`

const pgSelect = `
SELECT u.id::text,
       u.idx,
       u.text,
       to_char(u.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.MS"Z"'),
       u.language,
       (SELECT row_to_json(s)
          FROM (SELECT sp.display_name, sp.gender, sp.age FROM speakers sp WHERE sp.id = u.speaker_id) s),
       (SELECT json_agg(json_build_object('storage_key', r.storage_key, 'ext', r.ext, 'status', r.status)
                        ORDER BY r.created_at)
          FROM recordings r WHERE r.utterance_id = u.id)
  FROM utterances u`

// DB is the database interface used by PostgresRepository. Both
// *pgxpool.Pool and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository is a Repository backed by PostgreSQL.
type PostgresRepository struct {
	db        DB
	batchSize int
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository wraps an open connection or pool.
func NewPostgresRepository(db DB, batchSize int) *PostgresRepository {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PostgresRepository{db: db, batchSize: batchSize}
}

// OpenPostgresPool connects to dsn and verifies the connection.
func OpenPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	return pool, nil
}

// Migrate applies PostgresSchema.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// FetchByIDs issues a single query for every id.
func (r *PostgresRepository) FetchByIDs(ctx context.Context, ids []string) ([]utterance.RawRecord, error) {
	if len(ids) == 0 {
		return []utterance.RawRecord{}, nil
	}
	rows, err := r.db.Query(ctx, pgSelect+"\n WHERE u.id::text = ANY($1)", ids)
	if err != nil {
		return nil, wrapQueryError("fetch by ids", err)
	}
	recs, err := scanPgRows(rows)
	if err != nil {
		return nil, wrapQueryError("fetch by ids", err)
	}
	return recs, nil
}

// FetchByFilter pages through matching rows, newest first.
func (r *PostgresRepository) FetchByFilter(ctx context.Context, f Filter) ([]utterance.RawRecord, error) {
	where, args := pgWhere(f)
	query := pgSelect + where + fmt.Sprintf("\n ORDER BY u.created_at DESC, u.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	recs, err := Paginate(ctx, r.batchSize, func(ctx context.Context, offset, limit int) ([]utterance.RawRecord, error) {
		rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
		if err != nil {
			return nil, err
		}
		return scanPgRows(rows)
	})
	if err != nil {
		return nil, wrapQueryError("fetch by filter", err)
	}
	return recs, nil
}

// Page returns one window of matching rows and the total count.
func (r *PostgresRepository) Page(ctx context.Context, f Filter, offset, limit int) (Page, error) {
	where, args := pgWhere(f)
	var total int
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM utterances u"+where, args...).Scan(&total); err != nil {
		return Page{}, wrapQueryError("count", err)
	}
	query := pgSelect + where + fmt.Sprintf("\n ORDER BY u.created_at DESC, u.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return Page{}, wrapQueryError("page", err)
	}
	recs, err := scanPgRows(rows)
	if err != nil {
		return Page{}, wrapQueryError("page", err)
	}
	return Page{Records: recs, Total: total, Offset: offset, Limit: limit}, nil
}

func pgWhere(f Filter) (string, []any) {
	f = f.Normalized()
	if f.Language == "" {
		return "", nil
	}
	return "\n WHERE u.language ILIKE $1", []any{likePattern(f.Language)}
}

func scanPgRows(rows pgx.Rows) ([]utterance.RawRecord, error) {
	defer rows.Close()
	var out []utterance.RawRecord
	for rows.Next() {
		var (
			rec            utterance.RawRecord
			speakerJSON    []byte
			recordingsJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Index, &rec.Text, &rec.CreatedAt, &rec.Language, &speakerJSON, &recordingsJSON); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		if err := decodeJoins(&rec, speakerJSON, recordingsJSON); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate utterances: %w", err)
	}
	return out, nil
}

func decodeJoins(rec *utterance.RawRecord, speakerJSON, recordingsJSON []byte) error {
	if len(strings.TrimSpace(string(speakerJSON))) > 0 {
		if err := json.Unmarshal(speakerJSON, &rec.Speaker); err != nil {
			return fmt.Errorf("decode speaker for %s: %w", rec.ID, err)
		}
	}
	if len(strings.TrimSpace(string(recordingsJSON))) > 0 {
		if err := json.Unmarshal(recordingsJSON, &rec.Recordings); err != nil {
			return fmt.Errorf("decode recordings for %s: %w", rec.ID, err)
		}
	}
	return nil
}
