package app

import (
	"math"
	"sort"
	"strconv"

	"cinematch-quiz-service/internal/catalog"
	"cinematch-quiz-service/internal/domain"
)

// minSeriesHeight keeps tiny columns visible in the personal chart.
const minSeriesHeight = 6

// Aggregator derives personal and population views from fetched results. It has no side
// effects; malformed records are skipped rather than reported.
type Aggregator struct {
	catalog *catalog.Catalog
}

func NewAggregator(c *catalog.Catalog) *Aggregator {
	return &Aggregator{catalog: c}
}

type resolvedTop struct {
	categoryID string
	label      string
	color      string
	percentage float64
}

// ResolveTop finds a record's top category: the explicit field first, then the highest
// percentage breakdown entry. ok is false when neither yields a category.
func (a *Aggregator) ResolveTop(r domain.StoredResult) (categoryID string, percentage float64, ok bool) {
	top, ok := a.resolve(r)
	return top.categoryID, top.percentage, ok
}

func (a *Aggregator) resolve(r domain.StoredResult) (resolvedTop, bool) {
	if r.TopCategoryID != "" {
		top := resolvedTop{categoryID: r.TopCategoryID}
		for _, entry := range r.Breakdown {
			if entry.Category.ID == r.TopCategoryID {
				top.percentage = entry.Percentage
				top.label, top.color = entry.Category.Label, entry.Category.Color
				break
			}
		}
		a.describe(&top)
		return top, true
	}

	if len(r.Breakdown) == 0 {
		return resolvedTop{}, false
	}
	ordered := append([]domain.BreakdownEntry(nil), r.Breakdown...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return finite(ordered[i].Percentage) > finite(ordered[j].Percentage)
	})
	entry := ordered[0]
	if entry.Category.ID == "" && entry.Category.Label == "" {
		return resolvedTop{}, false
	}
	top := resolvedTop{
		categoryID: entry.Category.ID,
		label:      entry.Category.Label,
		color:      entry.Category.Color,
		percentage: finite(entry.Percentage),
	}
	if top.categoryID == "" {
		top.categoryID = entry.Category.Label
	}
	a.describe(&top)
	return top, true
}

// describe prefers catalog labels and falls back to whatever the record carried.
func (a *Aggregator) describe(top *resolvedTop) {
	if category, ok := a.catalog.Category(top.categoryID); ok {
		top.label, top.color = category.Label, category.Color
		return
	}
	if top.label == "" {
		top.label = top.categoryID
	}
}

// LatestPerIdentity keeps the most recent record of every identity, newest first. Recency is
// the server timestamp; equal timestamps fall back to the larger document id.
func (a *Aggregator) LatestPerIdentity(records []domain.StoredResult) []domain.StoredResult {
	latest := make(map[string]domain.StoredResult, len(records))
	for _, r := range records {
		if r.IdentityID == "" {
			continue
		}
		current, ok := latest[r.IdentityID]
		if !ok || newer(r, current) {
			latest[r.IdentityID] = r
		}
	}
	out := make([]domain.StoredResult, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sortNewestFirst(out)
	return out
}

// FoldDuplicates removes rows sharing identity, server timestamp and top category. It keeps a
// user's legitimately repeated results.
func (a *Aggregator) FoldDuplicates(records []domain.StoredResult) []domain.StoredResult {
	seen := make(map[string]struct{}, len(records))
	out := make([]domain.StoredResult, 0, len(records))
	for _, r := range records {
		top, _ := a.resolve(r)
		// undated rows are never folded together
		stamp := "id:" + r.ID
		if r.ServerTimestamp.Valid() {
			stamp = strconv.FormatInt(r.ServerTimestamp.UnixNano(), 10)
		}
		key := r.IdentityID + "\x00" + stamp + "\x00" + top.categoryID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	sortNewestFirst(out)
	return out
}

// PopulationPie counts resolved top categories of an already deduplicated population.
// Slices are ordered by count, ties by catalog order.
func (a *Aggregator) PopulationPie(population []domain.StoredResult) []domain.PieSlice {
	counts := make(map[string]*domain.PieSlice)
	total := 0
	for _, r := range population {
		top, ok := a.resolve(r)
		if !ok {
			continue
		}
		total++
		slice, exists := counts[top.categoryID]
		if !exists {
			slice = &domain.PieSlice{CategoryID: top.categoryID, Label: top.label, Color: top.color}
			counts[top.categoryID] = slice
		}
		slice.Count++
	}

	slices := make([]domain.PieSlice, 0, len(counts))
	for _, slice := range counts {
		slice.Percentage = Percentage(slice.Count, total)
		slices = append(slices, *slice)
	}
	sort.Slice(slices, func(i, j int) bool {
		if slices[i].Count != slices[j].Count {
			return slices[i].Count > slices[j].Count
		}
		pi, pj := a.position(slices[i].CategoryID), a.position(slices[j].CategoryID)
		if pi != pj {
			return pi < pj
		}
		return slices[i].CategoryID < slices[j].CategoryID
	})
	return slices
}

// PersonalSeries maps dated records to chart columns, oldest first. Heights are relative to the
// tallest column and never drop below minSeriesHeight.
func (a *Aggregator) PersonalSeries(records []domain.StoredResult) []domain.SeriesPoint {
	points := make([]domain.SeriesPoint, 0, len(records))
	for i, r := range records {
		if !r.ServerTimestamp.Valid() {
			continue
		}
		top, ok := a.resolve(r)
		if !ok {
			continue
		}
		date := r.ServerTimestamp.UTC()
		id := r.ID
		if id == "" {
			id = strconv.FormatInt(date.UnixMilli(), 10) + "-" + strconv.Itoa(i)
		}
		points = append(points, domain.SeriesPoint{
			ID:         id,
			Date:       date,
			ShortDate:  date.Format("02/01"),
			CategoryID: top.categoryID,
			Label:      top.label,
			Color:      top.color,
			Percentage: math.Round(clamp(top.percentage, 0, 100)*10) / 10,
		})
	}
	if len(points) == 0 {
		return points
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	maxValue := 0.0
	for _, p := range points {
		maxValue = math.Max(maxValue, p.Percentage)
	}
	if maxValue == 0 {
		maxValue = 100
	}
	for i := range points {
		height := int(math.Round(points[i].Percentage / maxValue * 100))
		if height < minSeriesHeight {
			height = minSeriesHeight
		}
		if height > 100 {
			height = 100
		}
		points[i].Height = height
	}
	return points
}

// Split counts guests and registered users.
func (a *Aggregator) Split(population []domain.StoredResult) domain.GuestSplit {
	var split domain.GuestSplit
	for _, r := range population {
		if r.IsGuest {
			split.Guests++
		} else {
			split.Registered++
		}
	}
	return split
}

// Summaries renders display rows in input order.
func (a *Aggregator) Summaries(records []domain.StoredResult) []domain.ResultSummary {
	out := make([]domain.ResultSummary, 0, len(records))
	for _, r := range records {
		summary := domain.ResultSummary{
			ID:          r.ID,
			IdentityID:  r.IdentityID,
			DisplayName: r.DisplayName,
			IsGuest:     r.IsGuest,
			Label:       "N/A",
			Timestamp:   r.ServerTimestamp,
		}
		if summary.DisplayName == "" {
			summary.DisplayName = defaultDisplayName
		}
		if top, ok := a.resolve(r); ok {
			summary.CategoryID = top.categoryID
			summary.Label = top.label
			summary.Color = top.color
			summary.Percentage = math.Round(top.percentage*10) / 10
		}
		out = append(out, summary)
	}
	return out
}

// Population builds the deduplicated population view.
func (a *Aggregator) Population(records []domain.StoredResult) domain.Population {
	latest := a.LatestPerIdentity(records)
	return domain.Population{
		Latest: a.Summaries(latest),
		Pie:    a.PopulationPie(latest),
		Split:  a.Split(latest),
		Total:  len(latest),
	}
}

// Personal builds the history list and chart series for one identity's records.
func (a *Aggregator) Personal(records []domain.StoredResult) ([]domain.ResultSummary, []domain.SeriesPoint) {
	folded := a.FoldDuplicates(records)
	return a.Summaries(folded), a.PersonalSeries(folded)
}

func (a *Aggregator) position(categoryID string) int {
	if p := a.catalog.Position(categoryID); p >= 0 {
		return p
	}
	return math.MaxInt
}

func newer(candidate, current domain.StoredResult) bool {
	cv, pv := candidate.ServerTimestamp.Valid(), current.ServerTimestamp.Valid()
	switch {
	case cv && !pv:
		return true
	case !cv && pv:
		return false
	case cv && pv && !candidate.ServerTimestamp.Equal(current.ServerTimestamp.Time):
		return candidate.ServerTimestamp.After(current.ServerTimestamp.Time)
	}
	return candidate.ID > current.ID
}

func sortNewestFirst(records []domain.StoredResult) {
	sort.SliceStable(records, func(i, j int) bool {
		return newer(records[i], records[j])
	})
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(finite(v), hi))
}
