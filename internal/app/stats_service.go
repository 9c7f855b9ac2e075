package app

import (
	"context"
	"fmt"

	"cinematch-quiz-service/internal/catalog"
	"cinematch-quiz-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMineLimit   = 14
	DefaultGlobalLimit = 24
	maxWindow          = 500
)

// StatsService fetches bounded result windows and runs them through the Aggregator.
type StatsService struct {
	reader      ResultReader
	agg         *Aggregator
	mineLimit   int
	globalLimit int
}

func NewStatsService(reader ResultReader, c *catalog.Catalog, mineLimit, globalLimit int) *StatsService {
	return &StatsService{
		reader:      reader,
		agg:         NewAggregator(c),
		mineLimit:   windowOr(mineLimit, DefaultMineLimit),
		globalLimit: windowOr(globalLimit, DefaultGlobalLimit),
	}
}

// Limits overrides the fetch windows of a single Statistics call. Zero keeps the default.
type Limits struct {
	Mine   int
	Global int
}

// Statistics fetches the identity's results and the global window in parallel. Neither view is
// returned unless both fetches succeed. An empty identityID skips the personal fetch.
func (s *StatsService) Statistics(ctx context.Context, identityID string, limits Limits) (domain.Statistics, error) {
	var (
		mine   []domain.StoredResult
		global []domain.StoredResult
		g      errgroup.Group
	)
	if identityID != "" {
		g.Go(func() error {
			records, err := s.reader.ListByIdentity(ctx, identityID, windowOr(limits.Mine, s.mineLimit))
			if err != nil {
				return fmt.Errorf("fetch personal results: %w", err)
			}
			mine = records
			return nil
		})
	}
	g.Go(func() error {
		records, err := s.reader.ListRecent(ctx, windowOr(limits.Global, s.globalLimit))
		if err != nil {
			return fmt.Errorf("fetch recent results: %w", err)
		}
		global = records
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Statistics{}, err
	}

	history, series := s.agg.Personal(mine)
	return domain.Statistics{
		IdentityID: identityID,
		History:    history,
		Series:     series,
		Population: s.agg.Population(global),
	}, nil
}

// Population computes only the population view over the default global window.
func (s *StatsService) Population(ctx context.Context) (domain.Population, error) {
	records, err := s.reader.ListRecent(ctx, s.globalLimit)
	if err != nil {
		return domain.Population{}, fmt.Errorf("fetch recent results: %w", err)
	}
	return s.agg.Population(records), nil
}

func windowOr(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxWindow {
		return maxWindow
	}
	return limit
}
