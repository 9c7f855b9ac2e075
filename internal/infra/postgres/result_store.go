package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cinematch-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const resultColumns = `id, identity_id, display_name, is_guest, top_category_id, answers, breakdown, total_answers, client_ts, server_ts`

// ResultStore persists quiz results and preference snapshots in Postgres.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Connect opens a pool and checks connectivity.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (s *ResultStore) CreateIfAbsent(ctx context.Context, result domain.StoredResult) (domain.StoredResult, bool, error) {
	if result.ID == "" {
		return domain.StoredResult{}, false, fmt.Errorf("%w: result id is required", domain.ErrStore)
	}
	answers, err := json.Marshal(nonNilAnswers(result.Answers))
	if err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: encode answers: %v", domain.ErrStore, err)
	}
	breakdown, err := json.Marshal(nonNilBreakdown(result.Breakdown))
	if err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: encode breakdown: %v", domain.ErrStore, err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_results (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		result.ID, result.IdentityID, result.DisplayName, result.IsGuest, result.TopCategoryID,
		string(answers), string(breakdown), result.TotalAnswers,
		nullableTime(result.ClientTimestamp), nullableTime(result.ServerTimestamp),
	)
	if err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: insert result: %v", domain.ErrStore, err)
	}
	if tag.RowsAffected() == 1 {
		return result, true, nil
	}

	row := s.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM quiz_results WHERE id=$1`, result.ID)
	existing, err := scanResult(row)
	if err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: load existing result: %v", domain.ErrStore, err)
	}
	return existing, false, nil
}

func (s *ResultStore) ListRecent(ctx context.Context, limit int) ([]domain.StoredResult, error) {
	return s.query(ctx, `
		SELECT `+resultColumns+` FROM quiz_results
		ORDER BY server_ts DESC NULLS LAST, id DESC
		LIMIT $1`, limit)
}

func (s *ResultStore) ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.StoredResult, error) {
	return s.query(ctx, `
		SELECT `+resultColumns+` FROM quiz_results
		WHERE identity_id=$2
		ORDER BY server_ts DESC NULLS LAST, id DESC
		LIMIT $1`, limit, identityID)
}

func (s *ResultStore) UpsertPreference(ctx context.Context, snapshot domain.PreferenceSnapshot) error {
	top, err := json.Marshal(nonNilBreakdown(snapshot.TopCategories))
	if err != nil {
		return fmt.Errorf("%w: encode preferences: %v", domain.ErrStore, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO preferences (identity_id, display_name, is_guest, total_answers, top_category_id, top_categories, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identity_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			is_guest = EXCLUDED.is_guest,
			total_answers = EXCLUDED.total_answers,
			top_category_id = EXCLUDED.top_category_id,
			top_categories = EXCLUDED.top_categories,
			updated_at = EXCLUDED.updated_at`,
		snapshot.IdentityID, snapshot.DisplayName, snapshot.IsGuest, snapshot.TotalAnswers,
		snapshot.TopCategoryID, string(top), nullableTime(snapshot.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert preference: %v", domain.ErrStore, err)
	}
	return nil
}

func (s *ResultStore) GetPreference(ctx context.Context, identityID string) (domain.PreferenceSnapshot, error) {
	var (
		snapshot domain.PreferenceSnapshot
		top      []byte
		updated  *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT identity_id, display_name, is_guest, total_answers, top_category_id, top_categories, updated_at
		FROM preferences WHERE identity_id=$1`, identityID).Scan(
		&snapshot.IdentityID, &snapshot.DisplayName, &snapshot.IsGuest, &snapshot.TotalAnswers,
		&snapshot.TopCategoryID, &top, &updated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PreferenceSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PreferenceSnapshot{}, fmt.Errorf("%w: load preference: %v", domain.ErrStore, err)
	}
	if err := json.Unmarshal(top, &snapshot.TopCategories); err != nil {
		return domain.PreferenceSnapshot{}, fmt.Errorf("%w: decode preference: %v", domain.ErrStore, err)
	}
	snapshot.UpdatedAt = fromNullable(updated)
	return snapshot, nil
}

func (s *ResultStore) query(ctx context.Context, sql string, args ...interface{}) ([]domain.StoredResult, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query results: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	out := make([]domain.StoredResult, 0)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			// malformed rows are skipped, not fatal
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read results: %v", domain.ErrStore, err)
	}
	return out, nil
}

func scanResult(row pgx.Row) (domain.StoredResult, error) {
	var (
		r                  domain.StoredResult
		answers, breakdown []byte
		clientTS, serverTS *time.Time
	)
	if err := row.Scan(&r.ID, &r.IdentityID, &r.DisplayName, &r.IsGuest, &r.TopCategoryID,
		&answers, &breakdown, &r.TotalAnswers, &clientTS, &serverTS); err != nil {
		return domain.StoredResult{}, err
	}
	if err := json.Unmarshal(answers, &r.Answers); err != nil {
		return domain.StoredResult{}, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(breakdown, &r.Breakdown); err != nil {
		return domain.StoredResult{}, fmt.Errorf("decode breakdown: %w", err)
	}
	r.ClientTimestamp = fromNullable(clientTS)
	r.ServerTimestamp = fromNullable(serverTS)
	return r, nil
}

func nullableTime(t domain.Timestamp) *time.Time {
	if !t.Valid() {
		return nil
	}
	v := t.UTC()
	return &v
}

func fromNullable(t *time.Time) domain.Timestamp {
	if t == nil {
		return domain.Timestamp{}
	}
	return domain.At(t.UTC())
}

func nonNilAnswers(a domain.AnswerSet) domain.AnswerSet {
	if a == nil {
		return domain.AnswerSet{}
	}
	return a
}

func nonNilBreakdown(b []domain.BreakdownEntry) []domain.BreakdownEntry {
	if b == nil {
		return []domain.BreakdownEntry{}
	}
	return b
}
