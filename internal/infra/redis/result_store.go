package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cinematch-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ResultStore keeps quiz results in Redis.
// Documents are stored as:   SET  quiz:result:{id} {json}   (SETNX, never overwritten)
// Recency indexes are:       ZADD quiz:results:recent {serverMillis} {id}
// and                        ZADD quiz:results:identity:{identityID} {serverMillis} {id}
// Preferences are stored as: HSET quiz:preference:{identityID} {field} {value}
type ResultStore struct {
	client *redis.Client
}

func NewResultStore(client *redis.Client) *ResultStore {
	return &ResultStore{client: client}
}

func (s *ResultStore) CreateIfAbsent(ctx context.Context, result domain.StoredResult) (domain.StoredResult, bool, error) {
	if result.ID == "" {
		return domain.StoredResult{}, false, fmt.Errorf("%w: result id is required", domain.ErrStore)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: encode result: %v", domain.ErrStore, err)
	}

	created, err := s.client.SetNX(ctx, s.resultKey(result.ID), payload, 0).Result()
	if err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	stored := result
	if !created {
		existing, err := s.get(ctx, result.ID)
		if err != nil {
			return domain.StoredResult{}, false, err
		}
		stored = existing
	}

	// ZADD is idempotent, so a retry after a failed indexing pass repairs the indexes.
	score := float64(stored.ServerTimestamp.UnixMilli())
	if !stored.ServerTimestamp.Valid() {
		score = 0
	}
	member := redis.Z{Score: score, Member: stored.ID}
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, s.recentKey(), member)
	if stored.IdentityID != "" {
		pipe.ZAdd(ctx, s.identityKey(stored.IdentityID), member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.StoredResult{}, false, fmt.Errorf("%w: index result: %v", domain.ErrStore, err)
	}
	return stored, created, nil
}

func (s *ResultStore) ListRecent(ctx context.Context, limit int) ([]domain.StoredResult, error) {
	return s.list(ctx, s.recentKey(), limit)
}

func (s *ResultStore) ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.StoredResult, error) {
	return s.list(ctx, s.identityKey(identityID), limit)
}

func (s *ResultStore) UpsertPreference(ctx context.Context, snapshot domain.PreferenceSnapshot) error {
	top, err := json.Marshal(snapshot.TopCategories)
	if err != nil {
		return fmt.Errorf("%w: encode preferences: %v", domain.ErrStore, err)
	}
	updated := ""
	if snapshot.UpdatedAt.Valid() {
		updated = snapshot.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	err = s.client.HSet(ctx, s.preferenceKey(snapshot.IdentityID),
		"identity_id", snapshot.IdentityID,
		"display_name", snapshot.DisplayName,
		"is_guest", strconv.FormatBool(snapshot.IsGuest),
		"total_answers", snapshot.TotalAnswers,
		"top_category_id", snapshot.TopCategoryID,
		"top_categories", string(top),
		"updated_at", updated,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	return nil
}

func (s *ResultStore) GetPreference(ctx context.Context, identityID string) (domain.PreferenceSnapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.preferenceKey(identityID)).Result()
	if err != nil {
		return domain.PreferenceSnapshot{}, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	if len(fields) == 0 {
		return domain.PreferenceSnapshot{}, domain.ErrNotFound
	}

	snapshot := domain.PreferenceSnapshot{
		IdentityID:    fields["identity_id"],
		DisplayName:   fields["display_name"],
		TopCategoryID: fields["top_category_id"],
	}
	snapshot.IsGuest, _ = strconv.ParseBool(fields["is_guest"])
	snapshot.TotalAnswers, _ = strconv.Atoi(fields["total_answers"])
	if raw := fields["top_categories"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &snapshot.TopCategories)
	}
	snapshot.UpdatedAt = domain.At(domain.ParseTime(fields["updated_at"]))
	return snapshot, nil
}

func (s *ResultStore) list(ctx context.Context, indexKey string, limit int) ([]domain.StoredResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	if len(ids) == 0 {
		return []domain.StoredResult{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.resultKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	out := make([]domain.StoredResult, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var r domain.StoredResult
		// malformed documents are skipped, not fatal
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *ResultStore) get(ctx context.Context, id string) (domain.StoredResult, error) {
	raw, err := s.client.Get(ctx, s.resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.StoredResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.StoredResult{}, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	var r domain.StoredResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.StoredResult{}, fmt.Errorf("%w: decode result %s: %v", domain.ErrStore, id, err)
	}
	return r, nil
}

func (s *ResultStore) resultKey(id string) string {
	return "quiz:result:" + id
}

func (s *ResultStore) recentKey() string {
	return "quiz:results:recent"
}

func (s *ResultStore) identityKey(identityID string) string {
	return "quiz:results:identity:" + identityID
}

func (s *ResultStore) preferenceKey(identityID string) string {
	return "quiz:preference:" + identityID
}
