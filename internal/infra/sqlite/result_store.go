package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cinematch-quiz-service/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_results (
	id TEXT PRIMARY KEY,
	identity_id TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	is_guest INTEGER NOT NULL DEFAULT 0,
	top_category_id TEXT NOT NULL DEFAULT '',
	answers TEXT NOT NULL DEFAULT '[]',
	breakdown TEXT NOT NULL DEFAULT '[]',
	total_answers INTEGER NOT NULL DEFAULT 0,
	client_ts INTEGER,
	server_ts INTEGER
);
CREATE INDEX IF NOT EXISTS quiz_results_recent_idx ON quiz_results (server_ts DESC, id DESC);
CREATE INDEX IF NOT EXISTS quiz_results_identity_idx ON quiz_results (identity_id, server_ts DESC, id DESC);

CREATE TABLE IF NOT EXISTS preferences (
	identity_id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	is_guest INTEGER NOT NULL DEFAULT 0,
	total_answers INTEGER NOT NULL DEFAULT 0,
	top_category_id TEXT NOT NULL DEFAULT '',
	top_categories TEXT NOT NULL DEFAULT '[]',
	updated_at INTEGER
);`

const resultColumns = `id, identity_id, display_name, is_guest, top_category_id, answers, breakdown, total_answers, client_ts, server_ts`

// ResultStore is a single-file SQLite implementation of app.ResultStore. Timestamps are stored
// as unix nanoseconds so ORDER BY matches chronological order.
type ResultStore struct {
	db *sql.DB
}

// Open opens the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*ResultStore, error) {
	if path == "" {
		path = "cinematch.db"
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer keeps INSERT OR IGNORE serialised
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}

func (s *ResultStore) CreateIfAbsent(ctx context.Context, result domain.StoredResult) (domain.StoredResult, bool, error) {
	if result.ID == "" {
		return domain.StoredResult{}, false, fmt.Errorf("%w: result id is required", domain.ErrStore)
	}
	answers, err := encodeJSON(result.Answers, "[]")
	if err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: encode answers: %v", domain.ErrStore, err)
	}
	breakdown, err := encodeJSON(result.Breakdown, "[]")
	if err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: encode breakdown: %v", domain.ErrStore, err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO quiz_results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.IdentityID, result.DisplayName, result.IsGuest, result.TopCategoryID,
		answers, breakdown, result.TotalAnswers,
		toNanos(result.ClientTimestamp), toNanos(result.ServerTimestamp),
	)
	if err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: insert result: %v", domain.ErrStore, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return result, true, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM quiz_results WHERE id = ?`, result.ID)
	existing, err := scanResult(row)
	if err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: load existing result: %v", domain.ErrStore, err)
	}
	return existing, false, nil
}

func (s *ResultStore) ListRecent(ctx context.Context, limit int) ([]domain.StoredResult, error) {
	return s.query(ctx, `SELECT `+resultColumns+` FROM quiz_results
		ORDER BY server_ts IS NULL, server_ts DESC, id DESC LIMIT ?`, limit)
}

func (s *ResultStore) ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.StoredResult, error) {
	return s.query(ctx, `SELECT `+resultColumns+` FROM quiz_results WHERE identity_id = ?
		ORDER BY server_ts IS NULL, server_ts DESC, id DESC LIMIT ?`, identityID, limit)
}

func (s *ResultStore) UpsertPreference(ctx context.Context, snapshot domain.PreferenceSnapshot) error {
	top, err := encodeJSON(snapshot.TopCategories, "[]")
	if err != nil {
		return fmt.Errorf("%w: encode preferences: %v", domain.ErrStore, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO preferences
		(identity_id, display_name, is_guest, total_answers, top_category_id, top_categories, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity_id) DO UPDATE SET
			display_name = excluded.display_name,
			is_guest = excluded.is_guest,
			total_answers = excluded.total_answers,
			top_category_id = excluded.top_category_id,
			top_categories = excluded.top_categories,
			updated_at = excluded.updated_at`,
		snapshot.IdentityID, snapshot.DisplayName, snapshot.IsGuest, snapshot.TotalAnswers,
		snapshot.TopCategoryID, top, toNanos(snapshot.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert preference: %v", domain.ErrStore, err)
	}
	return nil
}

func (s *ResultStore) GetPreference(ctx context.Context, identityID string) (domain.PreferenceSnapshot, error) {
	var (
		snapshot domain.PreferenceSnapshot
		top      string
		updated  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT identity_id, display_name, is_guest, total_answers,
		top_category_id, top_categories, updated_at FROM preferences WHERE identity_id = ?`, identityID).Scan(
		&snapshot.IdentityID, &snapshot.DisplayName, &snapshot.IsGuest, &snapshot.TotalAnswers,
		&snapshot.TopCategoryID, &top, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PreferenceSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PreferenceSnapshot{}, fmt.Errorf("%w: load preference: %v", domain.ErrStore, err)
	}
	if err := json.Unmarshal([]byte(top), &snapshot.TopCategories); err != nil {
		return domain.PreferenceSnapshot{}, fmt.Errorf("%w: decode preference: %v", domain.ErrStore, err)
	}
	snapshot.UpdatedAt = fromNanos(updated)
	return snapshot, nil
}

func (s *ResultStore) query(ctx context.Context, q string, args ...any) ([]domain.StoredResult, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query results: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	out := make([]domain.StoredResult, 0)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read results: %v", domain.ErrStore, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (domain.StoredResult, error) {
	var (
		r                  domain.StoredResult
		answers, breakdown string
		clientTS, serverTS sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.IdentityID, &r.DisplayName, &r.IsGuest, &r.TopCategoryID,
		&answers, &breakdown, &r.TotalAnswers, &clientTS, &serverTS); err != nil {
		return domain.StoredResult{}, err
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return domain.StoredResult{}, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdown), &r.Breakdown); err != nil {
		return domain.StoredResult{}, fmt.Errorf("decode breakdown: %w", err)
	}
	r.ClientTimestamp = fromNanos(clientTS)
	r.ServerTimestamp = fromNanos(serverTS)
	return r, nil
}

func encodeJSON(v any, empty string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return empty, nil
	}
	return string(raw), nil
}

func toNanos(t domain.Timestamp) sql.NullInt64 {
	if !t.Valid() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(v sql.NullInt64) domain.Timestamp {
	if !v.Valid {
		return domain.Timestamp{}
	}
	return domain.At(time.Unix(0, v.Int64).UTC())
}
