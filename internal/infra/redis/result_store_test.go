package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"cinematch-quiz-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var base = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func newStore(t *testing.T) (*ResultStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := newClient(mr)
	t.Cleanup(func() { _ = client.Close() })
	return NewResultStore(client), mr
}

func sampleResult(id, identity string, at time.Time) domain.StoredResult {
	return domain.StoredResult{
		ID:            id,
		IdentityID:    identity,
		DisplayName:   "Ada",
		TopCategoryID: "drama",
		Answers:       domain.AnswerSet{"drama", "comedy"},
		Breakdown: []domain.BreakdownEntry{
			{Category: domain.Category{ID: "drama", Label: "Drama"}, Count: 1, Percentage: 50},
			{Category: domain.Category{ID: "comedy", Label: "Comedy"}, Count: 1, Percentage: 50},
		},
		TotalAnswers:    2,
		ServerTimestamp: domain.At(at),
	}
}

func TestResultStoreCreateIfAbsent(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	_, created, err := store.CreateIfAbsent(ctx, sampleResult("k1", "u1", base))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	dup := sampleResult("k1", "u1", base.Add(time.Hour))
	dup.TopCategoryID = "comedy"
	existing, created, err := store.CreateIfAbsent(ctx, dup)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate to be ignored")
	}
	if existing.TopCategoryID != "drama" || !existing.ServerTimestamp.Equal(base) {
		t.Fatalf("expected first document, got %+v", existing)
	}
	if !mr.Exists("quiz:result:k1") {
		t.Fatalf("expected document key")
	}
	members, err := mr.ZMembers("quiz:results:recent")
	if err != nil || len(members) != 1 {
		t.Fatalf("expected single index member, got %v (%v)", members, err)
	}
}

func TestResultStoreConcurrentCreate(t *testing.T) {
	store, _ := newStore(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.CreateIfAbsent(context.Background(), sampleResult("same", "u", base))
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("expected exactly one creation, got %d", created)
	}
}

func TestResultStoreListsNewestFirst(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	for i, identity := range []string{"u1", "u2", "u1", "u3"} {
		id := string(rune('a' + i))
		if _, _, err := store.CreateIfAbsent(ctx, sampleResult(id, identity, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	recent, err := store.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != "d" || recent[2].ID != "b" {
		t.Fatalf("unexpected recent window: %+v", recent)
	}
	if len(recent[0].Breakdown) != 2 || recent[0].Breakdown[0].Category.Label != "Drama" {
		t.Fatalf("breakdown not preserved: %+v", recent[0].Breakdown)
	}

	mine, err := store.ListByIdentity(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("list by identity: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "c" || mine[1].ID != "a" {
		t.Fatalf("unexpected identity window: %+v", mine)
	}

	none, err := store.ListByIdentity(ctx, "nobody", 10)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty window, got %v (%v)", none, err)
	}
}

func TestResultStoreSkipsMalformedDocuments(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	if _, _, err := store.CreateIfAbsent(ctx, sampleResult("good", "u", base)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mr.Set("quiz:result:bad", "{not json"); err != nil {
		t.Fatalf("seed bad: %v", err)
	}
	if _, err := mr.ZAdd("quiz:results:recent", float64(base.Add(time.Hour).UnixMilli()), "bad"); err != nil {
		t.Fatalf("index bad: %v", err)
	}
	if _, err := mr.ZAdd("quiz:results:recent", float64(base.Add(2*time.Hour).UnixMilli()), "missing"); err != nil {
		t.Fatalf("index missing: %v", err)
	}

	recent, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "good" {
		t.Fatalf("expected only the well-formed document, got %+v", recent)
	}
}

func TestResultStorePreferences(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	if _, err := store.GetPreference(ctx, "u"); err != domain.ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	snapshot := domain.PreferenceSnapshot{
		IdentityID:    "u",
		DisplayName:   "Ada",
		IsGuest:       true,
		TotalAnswers:  20,
		TopCategoryID: "drama",
		TopCategories: sampleResult("x", "u", base).Breakdown,
		UpdatedAt:     domain.At(base),
	}
	if err := store.UpsertPreference(ctx, snapshot); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	snapshot.TopCategoryID = "comedy"
	if err := store.UpsertPreference(ctx, snapshot); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}

	got, err := store.GetPreference(ctx, "u")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TopCategoryID != "comedy" || !got.IsGuest || got.TotalAnswers != 20 || len(got.TopCategories) != 2 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if !got.UpdatedAt.Equal(base) {
		t.Fatalf("updated_at not preserved: %v", got.UpdatedAt)
	}
}

func TestResultStoreUnavailable(t *testing.T) {
	store, mr := newStore(t)
	mr.Close()

	if _, _, err := store.CreateIfAbsent(context.Background(), sampleResult("k", "u", base)); err == nil {
		t.Fatalf("expected error when redis is down")
	}
	if _, err := store.ListRecent(context.Background(), 5); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
