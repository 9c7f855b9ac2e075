package app_test

import (
	"math"
	"testing"
	"time"

	"cinematch-quiz-service/internal/app"
	"cinematch-quiz-service/internal/domain"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)

func result(id, identity, top string, at time.Time) domain.StoredResult {
	r := domain.StoredResult{ID: id, IdentityID: identity, TopCategoryID: top, DisplayName: identity}
	if !at.IsZero() {
		r.ServerTimestamp = domain.At(at)
	}
	return r
}

func entry(id, label string, pct float64) domain.BreakdownEntry {
	return domain.BreakdownEntry{Category: domain.Category{ID: id, Label: label}, Percentage: pct}
}

func TestResolveTopFallbackChain(t *testing.T) {
	agg := app.NewAggregator(abcCatalog(t))

	explicit := result("1", "u", "B", day0)
	explicit.Breakdown = []domain.BreakdownEntry{entry("A", "Alpha", 60), entry("B", "Bravo", 40)}
	id, pct, ok := agg.ResolveTop(explicit)
	require.True(t, ok)
	require.Equal(t, "B", id)
	require.Equal(t, 40.0, pct)

	fromBreakdown := result("2", "u", "", day0)
	fromBreakdown.Breakdown = []domain.BreakdownEntry{entry("C", "Charlie", 20), entry("A", "Alpha", 80)}
	id, pct, ok = agg.ResolveTop(fromBreakdown)
	require.True(t, ok)
	require.Equal(t, "A", id)
	require.Equal(t, 80.0, pct)

	_, _, ok = agg.ResolveTop(result("3", "u", "", day0))
	require.False(t, ok)

	nanEntry := result("4", "u", "", day0)
	nanEntry.Breakdown = []domain.BreakdownEntry{entry("A", "Alpha", math.NaN()), entry("C", "Charlie", 10)}
	id, _, ok = agg.ResolveTop(nanEntry)
	require.True(t, ok)
	require.Equal(t, "C", id)
}

func TestLatestPerIdentityKeepsNewest(t *testing.T) {
	agg := app.NewAggregator(abcCatalog(t))

	records := []domain.StoredResult{
		result("a1", "alice", "A", day0),
		result("b1", "bob", "B", day0.Add(time.Hour)),
		result("a2", "alice", "C", day0.Add(2*time.Hour)),
		result("x", "", "A", day0.Add(3*time.Hour)),
		result("c1", "carol", "A", time.Time{}),
	}
	latest := agg.LatestPerIdentity(records)
	require.Len(t, latest, 3)
	require.Equal(t, "a2", latest[0].ID)
	require.Equal(t, "b1", latest[1].ID)
	require.Equal(t, "c1", latest[2].ID, "undated records sort last")
}

func TestLatestPerIdentityTieBreaksOnID(t *testing.T) {
	agg := app.NewAggregator(abcCatalog(t))

	latest := agg.LatestPerIdentity([]domain.StoredResult{
		result("b", "u", "B", day0),
		result("a", "u", "A", day0),
	})
	require.Len(t, latest, 1)
	require.Equal(t, "b", latest[0].ID)
}

func TestFoldDuplicatesKeepsRepeatedResults(t *testing.T) {
	agg := app.NewAggregator(abcCatalog(t))

	records := []domain.StoredResult{
		result("1", "u", "A", day0),
		result("2", "u", "A", day0),
		result("3", "u", "A", day0.Add(24*time.Hour)),
		result("4", "u", "B", day0),
		result("5", "u", "A", time.Time{}),
		result("6", "u", "A", time.Time{}),
	}
	folded := agg.FoldDuplicates(records)
	ids := make([]string, 0, len(folded))
	for _, r := range folded {
		ids = append(ids, r.ID)
	}
	require.ElementsMatch(t, []string{"1", "3", "4", "5", "6"}, ids)
	require.Equal(t, "3", ids[0])
}

func TestPopulationPieCountsAndOrder(t *testing.T) {
	agg := app.NewAggregator(abcCatalog(t))

	population := []domain.StoredResult{
		result("1", "u1", "C", day0),
		result("2", "u2", "B", day0),
		result("3", "u3", "C", day0),
		result("4", "u4", "A", day0),
		result("5", "u5", "", day0),
	}
	pie := agg.PopulationPie(population)
	require.Len(t, pie, 3)
	require.Equal(t, "C", pie[0].CategoryID)
	require.Equal(t, 2, pie[0].Count)
	require.Equal(t, 50.0, pie[0].Percentage)
	require.Equal(t, "A", pie[1].CategoryID, "ties follow catalog order")
	require.Equal(t, "B", pie[2].CategoryID)
	require.Equal(t, "Charlie", pie[0].Label)

	sum, count := 0.0, 0
	for _, s := range pie {
		sum += s.Percentage
		count += s.Count
	}
	require.Equal(t, 4, count)
	require.InDelta(t, 100, sum, 0.1)

	require.Empty(t, agg.PopulationPie(nil))
}

func TestPopulationPieOneSlicePerCategory(t *testing.T) {
	agg := app.NewAggregator(abcCatalog(t))

	pie := agg.PopulationPie([]domain.StoredResult{
		result("1", "u1", "A", day0),
		result("2", "u2", "A", day0),
		result("3", "u3", "A", day0),
	})
	require.Len(t, pie, 1)
	require.Equal(t, 100.0, pie[0].Percentage)
}

func TestPersonalSeriesHeights(t *testing.T) {
	agg := app.NewAggregator(abcCatalog(t))

	low := result("low", "u", "", day0)
	low.Breakdown = []domain.BreakdownEntry{entry("A", "Alpha", 2)}
	high := result("high", "u", "", day0.Add(-24*time.Hour))
	high.Breakdown = []domain.BreakdownEntry{entry("B", "Bravo", 80)}
	mid := result("mid", "u", "", day0.Add(24*time.Hour))
	mid.Breakdown = []domain.BreakdownEntry{entry("C", "Charlie", 40)}
	undated := result("undated", "u", "A", time.Time{})

	series := agg.PersonalSeries([]domain.StoredResult{low, high, mid, undated})
	require.Len(t, series, 3)
	require.Equal(t, []string{"high", "low", "mid"}, []string{series[0].ID, series[1].ID, series[2].ID})
	require.Equal(t, 100, series[0].Height)
	require.Equal(t, 6, series[1].Height)
	require.Equal(t, 50, series[2].Height)
	require.Equal(t, "19/11", series[0].ShortDate)

	for _, p := range series {
		require.GreaterOrEqual(t, p.Height, 6)
		require.LessOrEqual(t, p.Height, 100)
	}
}

func TestPersonalSeriesAllZero(t *testing.T) {
	agg := app.NewAggregator(abcCatalog(t))

	r := result("z", "u", "A", day0)
	series := agg.PersonalSeries([]domain.StoredResult{r})
	require.Len(t, series, 1)
	require.Equal(t, 6, series[0].Height)
}

func TestSplitAndSummaries(t *testing.T) {
	agg := app.NewAggregator(abcCatalog(t))

	guest := result("1", "g", "A", day0)
	guest.IsGuest = true
	guest.DisplayName = ""
	member := result("2", "m", "", day0)

	split := agg.Split([]domain.StoredResult{guest, member})
	require.Equal(t, domain.GuestSplit{Guests: 1, Registered: 1}, split)

	summaries := agg.Summaries([]domain.StoredResult{guest, member})
	require.Equal(t, "Guest", summaries[0].DisplayName)
	require.Equal(t, "Alpha", summaries[0].Label)
	require.Equal(t, "N/A", summaries[1].Label)
}

func TestPopulationDeduplicatesIdentities(t *testing.T) {
	agg := app.NewAggregator(abcCatalog(t))

	pop := agg.Population([]domain.StoredResult{
		result("1", "u", "A", day0),
		result("2", "u", "B", day0.Add(time.Minute)),
		result("3", "v", "B", day0),
	})
	require.Equal(t, 2, pop.Total)
	require.Len(t, pop.Pie, 1)
	require.Equal(t, "B", pop.Pie[0].CategoryID)
	require.Equal(t, 2, pop.Pie[0].Count)
	require.Equal(t, domain.GuestSplit{Registered: 2}, pop.Split)
}
