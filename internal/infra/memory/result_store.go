package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cinematch-quiz-service/internal/domain"
)

// ResultStore is an in-memory implementation of app.ResultStore.
type ResultStore struct {
	mu          sync.RWMutex
	results     map[string]domain.StoredResult
	preferences map[string]domain.PreferenceSnapshot
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		results:     make(map[string]domain.StoredResult),
		preferences: make(map[string]domain.PreferenceSnapshot),
	}
}

func (s *ResultStore) CreateIfAbsent(ctx context.Context, result domain.StoredResult) (domain.StoredResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredResult{}, false, err
	}
	if result.ID == "" {
		return domain.StoredResult{}, false, fmt.Errorf("%w: result id is required", domain.ErrStore)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.results[result.ID]; ok {
		return clone(existing), false, nil
	}
	s.results[result.ID] = clone(result)
	return clone(result), true, nil
}

func (s *ResultStore) UpsertPreference(ctx context.Context, snapshot domain.PreferenceSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot.TopCategories = append([]domain.BreakdownEntry(nil), snapshot.TopCategories...)
	s.preferences[snapshot.IdentityID] = snapshot
	return nil
}

func (s *ResultStore) GetPreference(ctx context.Context, identityID string) (domain.PreferenceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.PreferenceSnapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.preferences[identityID]
	if !ok {
		return domain.PreferenceSnapshot{}, domain.ErrNotFound
	}
	snapshot.TopCategories = append([]domain.BreakdownEntry(nil), snapshot.TopCategories...)
	return snapshot, nil
}

func (s *ResultStore) ListRecent(ctx context.Context, limit int) ([]domain.StoredResult, error) {
	return s.list(ctx, limit, func(domain.StoredResult) bool { return true })
}

func (s *ResultStore) ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.StoredResult, error) {
	return s.list(ctx, limit, func(r domain.StoredResult) bool { return r.IdentityID == identityID })
}

// Len reports how many results are stored.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

func (s *ResultStore) list(ctx context.Context, limit int, keep func(domain.StoredResult) bool) ([]domain.StoredResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.StoredResult, 0, len(s.results))
	for _, r := range s.results {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].ServerTimestamp, out[j].ServerTimestamp
		if !ti.Equal(tj.Time) {
			return ti.After(tj.Time)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(r domain.StoredResult) domain.StoredResult {
	r.Answers = append(domain.AnswerSet(nil), r.Answers...)
	r.Breakdown = append([]domain.BreakdownEntry(nil), r.Breakdown...)
	return r
}
