package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"uttervault/internal/utterance"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

const sqliteSelect = `
SELECT u.id,
       u.idx,
       u.text,
       u.created_at,
       u.language,
       (SELECT json_object('display_name', sp.display_name, 'gender', sp.gender, 'age', sp.age)
          FROM speakers sp WHERE sp.id = u.speaker_id),
       (SELECT json_group_array(json_object('storage_key', r.storage_key, 'ext', r.ext, 'status', r.status))
          FROM (SELECT * FROM recordings WHERE utterance_id = u.id ORDER BY position) r)
  FROM utterances u`

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteRepository is a Repository backed by a local SQLite mirror.
type SQLiteRepository struct {
	db        *sql.DB
	path      string
	batchSize int
}

var _ Repository = (*SQLiteRepository)(nil)

// OpenSQLite opens or creates the mirror database at path.
func OpenSQLite(path string, batchSize int) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SQLiteRepository{db: db, path: path, batchSize: batchSize}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteRepository) Path() string { return s.path }

// FetchByIDs issues a single query for every id.
func (s *SQLiteRepository) FetchByIDs(ctx context.Context, ids []string) ([]utterance.RawRecord, error) {
	if len(ids) == 0 {
		return []utterance.RawRecord{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	recs, err := s.query(ctx, sqliteSelect+"\n WHERE u.id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, wrapQueryError("fetch by ids", err)
	}
	return recs, nil
}

// FetchByFilter pages through matching rows, newest first.
func (s *SQLiteRepository) FetchByFilter(ctx context.Context, f Filter) ([]utterance.RawRecord, error) {
	where, args := sqliteWhere(f)
	query := sqliteSelect + where + "\n ORDER BY u.created_at DESC, u.id LIMIT ? OFFSET ?"
	recs, err := Paginate(ctx, s.batchSize, func(ctx context.Context, offset, limit int) ([]utterance.RawRecord, error) {
		return s.query(ctx, query, append(args, limit, offset)...)
	})
	if err != nil {
		return nil, wrapQueryError("fetch by filter", err)
	}
	return recs, nil
}

// Page returns one window of matching rows and the total count.
func (s *SQLiteRepository) Page(ctx context.Context, f Filter, offset, limit int) (Page, error) {
	where, args := sqliteWhere(f)
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM utterances u"+where, args...).Scan(&total); err != nil {
		return Page{}, wrapQueryError("count", err)
	}
	recs, err := s.query(ctx, sqliteSelect+where+"\n ORDER BY u.created_at DESC, u.id LIMIT ? OFFSET ?", append(args, limit, offset)...)
	if err != nil {
		return Page{}, wrapQueryError("page", err)
	}
	return Page{Records: recs, Total: total, Offset: offset, Limit: limit}, nil
}

// Upsert stores rec in the mirror, replacing any existing row with the same
// id together with its speaker profile and recording references.
func (s *SQLiteRepository) Upsert(ctx context.Context, rec utterance.Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("upsert utterance: id is required")
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin upsert tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var speakerID any
		if rec.Speaker != nil {
			id := "spk-" + rec.ID
			var age any
			if rec.Speaker.HasAge() {
				age = rec.Speaker.Age
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO speakers (id, display_name, gender, age) VALUES (?, ?, ?, ?)
				 ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, gender = excluded.gender, age = excluded.age`,
				id, rec.Speaker.DisplayName, rec.Speaker.Gender, age,
			); err != nil {
				return fmt.Errorf("upsert speaker: %w", err)
			}
			speakerID = id
		}

		createdAt := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		if rec.CreatedAt != nil {
			createdAt = *rec.CreatedAt
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO utterances (id, idx, text, language, speaker_id, created_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET idx = excluded.idx, text = excluded.text, language = excluded.language,
			   speaker_id = excluded.speaker_id, created_at = excluded.created_at`,
			rec.ID, rec.Index, rec.Text, rec.Language, speakerID, createdAt,
		); err != nil {
			return fmt.Errorf("upsert utterance: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM recordings WHERE utterance_id = ?`, rec.ID); err != nil {
			return fmt.Errorf("clear recordings: %w", err)
		}
		for i, r := range rec.Recordings {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO recordings (utterance_id, position, storage_key, ext, status) VALUES (?, ?, ?, ?, ?)`,
				rec.ID, i, r.StorageKey, r.Ext, r.Status,
			); err != nil {
				return fmt.Errorf("insert recording: %w", err)
			}
		}
		return tx.Commit()
	})
}

func (s *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]utterance.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []utterance.RawRecord
	for rows.Next() {
		var (
			rec            utterance.RawRecord
			idx            sql.NullInt64
			text           sql.NullString
			createdAt      sql.NullString
			language       sql.NullString
			speakerJSON    sql.NullString
			recordingsJSON sql.NullString
		)
		if err := rows.Scan(&rec.ID, &idx, &text, &createdAt, &language, &speakerJSON, &recordingsJSON); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		if idx.Valid {
			v := int(idx.Int64)
			rec.Index = &v
		}
		rec.Text = nullString(text)
		rec.CreatedAt = nullString(createdAt)
		rec.Language = nullString(language)
		if err := decodeJoins(&rec, []byte(speakerJSON.String), []byte(recordingsJSON.String)); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate utterances: %w", err)
	}
	return out, nil
}

// sqliteWhere builds the language filter clause. SQLite lower() folds only
// ASCII letters, so unlike Postgres ILIKE a filter such as "É" matches its
// exact case only. Language tags are ASCII in practice.
func sqliteWhere(f Filter) (string, []any) {
	f = f.Normalized()
	if f.Language == "" {
		return "", nil
	}
	return "\n WHERE lower(u.language) LIKE lower(?) ESCAPE '\\'", []any{likePattern(f.Language)}
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
