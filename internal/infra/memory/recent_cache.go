package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"cinematch-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ResultLister is the read side of a result store.
type ResultLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.StoredResult, error)
	ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.StoredResult, error)
}

// RecentCache caches the global recent window with TTL to avoid repeated store hits.
// Per-identity listings pass through.
type RecentCache struct {
	inner ResultLister
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu         sync.RWMutex
	generation uint64
	cache      map[int]cachedWindow
}

type cachedWindow struct {
	results   []domain.StoredResult
	expiresAt time.Time
}

func NewRecentCache(inner ResultLister, ttl time.Duration) *RecentCache {
	return &RecentCache{
		inner: inner,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[int]cachedWindow),
	}
}

func (c *RecentCache) ListRecent(ctx context.Context, limit int) ([]domain.StoredResult, error) {
	if c.ttl <= 0 {
		return c.inner.ListRecent(ctx, limit)
	}
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[limit]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return copyWindow(entry.results), nil
	}
	generation := c.generation
	c.mu.RUnlock()

	key := strconv.Itoa(limit) + "@" + strconv.FormatUint(generation, 10)
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		results, err := c.inner.ListRecent(ctx, limit)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// a write landed while loading; do not cache a stale window
		if c.generation == generation {
			c.cache[limit] = cachedWindow{
				results:   results,
				expiresAt: now.Add(c.ttlWithJitter()),
			}
		}
		c.mu.Unlock()
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return copyWindow(result.([]domain.StoredResult)), nil
}

func (c *RecentCache) ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.StoredResult, error) {
	return c.inner.ListByIdentity(ctx, identityID, limit)
}

// Invalidate drops every cached window. Call it after a new result is stored.
func (c *RecentCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache = make(map[int]cachedWindow)
}

func (c *RecentCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func copyWindow(results []domain.StoredResult) []domain.StoredResult {
	return append([]domain.StoredResult(nil), results...)
}
