package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cinematch-quiz-service/internal/catalog"
	"cinematch-quiz-service/internal/domain"
	"cinematch-quiz-service/internal/infra/memory"
)

func abcCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(
		[]domain.Category{
			{ID: "A", Label: "Alpha", Color: "#a00"},
			{ID: "B", Label: "Bravo", Color: "#0b0"},
			{ID: "C", Label: "Charlie", Color: "#00c"},
		},
		[]domain.Question{
			{ID: "q1", Text: "one", Options: []domain.Option{{Label: "a", CategoryID: "A"}, {Label: "b", CategoryID: "B"}}},
			{ID: "q2", Text: "two", Options: []domain.Option{{Label: "a", CategoryID: "A"}, {Label: "c", CategoryID: "C"}}},
			{ID: "q3", Text: "three", Options: []domain.Option{{Label: "b", CategoryID: "B"}, {Label: "c", CategoryID: "C"}}},
			{ID: "q4", Text: "four", Options: []domain.Option{{Label: "a", CategoryID: "A"}, {Label: "c", CategoryID: "C"}}},
		},
	)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return c
}

type fakeVerifier struct {
	verification domain.Verification
	err          error
	delay        time.Duration
	calls        atomic.Int32
}

func trusted(score float64) *fakeVerifier {
	return &fakeVerifier{verification: domain.Verification{Success: true, Score: score, Action: "quiz_submit"}}
}

func (v *fakeVerifier) Verify(ctx context.Context, _, _ string) (domain.Verification, error) {
	v.calls.Add(1)
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return domain.Verification{}, ctx.Err()
		}
	}
	return v.verification, v.err
}

// countingStore wraps the in-memory store and records write traffic.
type countingStore struct {
	*memory.ResultStore
	creates     atomic.Int32
	writes      atomic.Int32
	prefErr     error
	listErr     error
	mu          sync.Mutex
	preferences []domain.PreferenceSnapshot
}

func newCountingStore() *countingStore {
	return &countingStore{ResultStore: memory.NewResultStore()}
}

func (s *countingStore) CreateIfAbsent(ctx context.Context, r domain.StoredResult) (domain.StoredResult, bool, error) {
	s.creates.Add(1)
	stored, created, err := s.ResultStore.CreateIfAbsent(ctx, r)
	if created {
		s.writes.Add(1)
	}
	return stored, created, err
}

func (s *countingStore) UpsertPreference(ctx context.Context, p domain.PreferenceSnapshot) error {
	s.mu.Lock()
	s.preferences = append(s.preferences, p)
	s.mu.Unlock()
	if s.prefErr != nil {
		return s.prefErr
	}
	return s.ResultStore.UpsertPreference(ctx, p)
}

func (s *countingStore) ListRecent(ctx context.Context, limit int) ([]domain.StoredResult, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.ResultStore.ListRecent(ctx, limit)
}

var errBoom = errors.New("boom")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(v int) *int { return &v }
