package app

import (
	"context"
	"sync"

	"cinematch-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// PopulationSource computes the current population view.
type PopulationSource interface {
	Population(ctx context.Context) (domain.Population, error)
}

// PopulationFeed fans population snapshots out to live subscribers.
type PopulationFeed struct {
	source PopulationSource
	sf     singleflight.Group

	mu          sync.Mutex
	last        *domain.Population
	subscribers map[chan domain.Population]struct{}
}

func NewPopulationFeed(source PopulationSource) *PopulationFeed {
	return &PopulationFeed{
		source:      source,
		subscribers: make(map[chan domain.Population]struct{}),
	}
}

// Subscribe returns a channel primed with the current snapshot. The caller must invoke the
// returned cancel function to avoid leaks.
func (f *PopulationFeed) Subscribe(ctx context.Context) (<-chan domain.Population, func(), error) {
	f.mu.Lock()
	cached := f.last
	f.mu.Unlock()

	initial := domain.Population{}
	if cached != nil {
		initial = *cached
	} else {
		fresh, err := f.load(ctx)
		if err != nil {
			return nil, nil, err
		}
		initial = fresh
	}

	ch := make(chan domain.Population, 4)
	ch <- initial

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

// Refresh recomputes the population and broadcasts it. Concurrent refreshes share one load.
func (f *PopulationFeed) Refresh(ctx context.Context) error {
	population, err := f.load(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcastLocked(population)
	return nil
}

// Subscribers reports how many subscribers are attached.
func (f *PopulationFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

func (f *PopulationFeed) load(ctx context.Context) (domain.Population, error) {
	result, err, _ := f.sf.Do("population", func() (interface{}, error) {
		population, err := f.source.Population(ctx)
		if err != nil {
			return domain.Population{}, err
		}
		f.mu.Lock()
		f.last = &population
		f.mu.Unlock()
		return population, nil
	})
	if err != nil {
		return domain.Population{}, err
	}
	return result.(domain.Population), nil
}

func (f *PopulationFeed) broadcastLocked(population domain.Population) {
	for ch := range f.subscribers {
		select {
		case ch <- population:
		default:
			// slow subscriber: drop its oldest frame so the newest always lands
			select {
			case <-ch:
			default:
			}
			ch <- population
		}
	}
}
