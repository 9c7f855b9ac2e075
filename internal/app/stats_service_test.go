package app_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cinematch-quiz-service/internal/app"
	"cinematch-quiz-service/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// blockingReader holds each listing until both have started.
type blockingReader struct {
	*countingStore
	started  atomic.Int32
	release  chan struct{}
	identErr error
}

func (r *blockingReader) wait(ctx context.Context) error {
	if r.started.Add(1) == 2 {
		close(r.release)
	}
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *blockingReader) ListRecent(ctx context.Context, limit int) ([]domain.StoredResult, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.countingStore.ListRecent(ctx, limit)
}

func (r *blockingReader) ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.StoredResult, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	if r.identErr != nil {
		return nil, r.identErr
	}
	return r.countingStore.ListByIdentity(ctx, identityID, limit)
}

func seed(t *testing.T, store *countingStore, records ...domain.StoredResult) {
	t.Helper()
	for _, r := range records {
		_, _, err := store.CreateIfAbsent(context.Background(), r)
		require.NoError(t, err)
	}
}

func TestStatisticsFetchesBothWindowsInParallel(t *testing.T) {
	store := newCountingStore()
	seed(t, store,
		result("1", "me", "A", day0),
		result("2", "me", "B", day0.Add(time.Hour)),
		result("3", "other", "C", day0.Add(2*time.Hour)),
	)
	reader := &blockingReader{countingStore: store, release: make(chan struct{})}
	svc := app.NewStatsService(reader, abcCatalog(t), 0, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stats, err := svc.Statistics(ctx, "me", app.Limits{})
	require.NoError(t, err)

	require.Equal(t, "me", stats.IdentityID)
	require.Len(t, stats.History, 2)
	require.Equal(t, "2", stats.History[0].ID)
	require.Len(t, stats.Series, 2)
	require.Equal(t, 2, stats.Population.Total)
}

func TestStatisticsFailsWhenEitherFetchFails(t *testing.T) {
	store := newCountingStore()
	seed(t, store, result("1", "me", "A", day0))
	reader := &blockingReader{countingStore: store, release: make(chan struct{}), identErr: errBoom}
	svc := app.NewStatsService(reader, abcCatalog(t), 0, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stats, err := svc.Statistics(ctx, "me", app.Limits{})
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, stats.Population.Latest)
	require.Empty(t, stats.History)
}

func TestStatisticsWithoutIdentitySkipsPersonalFetch(t *testing.T) {
	store := newCountingStore()
	seed(t, store, result("1", "me", "A", day0))
	svc := app.NewStatsService(store, abcCatalog(t), 0, 0)

	stats, err := svc.Statistics(context.Background(), "", app.Limits{})
	require.NoError(t, err)
	require.Empty(t, stats.History)
	require.Equal(t, 1, stats.Population.Total)
}

func TestStatisticsRespectsGlobalWindow(t *testing.T) {
	store := newCountingStore()
	for i := 0; i < 5; i++ {
		seed(t, store, result(string(rune('a'+i)), string(rune('p'+i)), "A", day0.Add(time.Duration(i)*time.Minute)))
	}
	svc := app.NewStatsService(store, abcCatalog(t), 0, 0)

	stats, err := svc.Statistics(context.Background(), "", app.Limits{Global: 3})
	require.NoError(t, err)
	require.Equal(t, 3, stats.Population.Total)
	require.Equal(t, "e", stats.Population.Latest[0].ID)
}

func TestPopulationPropagatesStoreError(t *testing.T) {
	store := newCountingStore()
	store.listErr = errBoom
	svc := app.NewStatsService(store, abcCatalog(t), 0, 0)

	_, err := svc.Population(context.Background())
	require.ErrorIs(t, err, errBoom)
}
