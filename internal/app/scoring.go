package app

import (
	"fmt"
	"math"
	"sort"

	"cinematch-quiz-service/internal/catalog"
	"cinematch-quiz-service/internal/domain"
)

// ScoringEngine turns answer sets into ranked breakdowns.
type ScoringEngine struct {
	catalog *catalog.Catalog
}

func NewScoringEngine(c *catalog.Catalog) *ScoringEngine {
	return &ScoringEngine{catalog: c}
}

// Score checks that every session question was answered and ranks the answers.
func (e *ScoringEngine) Score(session domain.Session, answers domain.AnswerSet) (domain.QuizResult, error) {
	if len(answers) != len(session.Questions) {
		return domain.QuizResult{}, fmt.Errorf("%w: %d of %d answered", domain.ErrIncompleteAnswers, len(answers), len(session.Questions))
	}
	return e.ScoreAnswers(answers)
}

// ScoreAnswers ranks an answer set without a session. Percentages are
// round(count/total*1000)/10 with halves rounded away from zero; ties keep catalog order.
func (e *ScoringEngine) ScoreAnswers(answers domain.AnswerSet) (domain.QuizResult, error) {
	if len(answers) == 0 {
		return domain.QuizResult{}, fmt.Errorf("%w: no answers", domain.ErrIncompleteAnswers)
	}

	counts := make(map[string]int, len(answers))
	for i, id := range answers {
		if id == "" {
			return domain.QuizResult{}, fmt.Errorf("%w: question %d has no answer", domain.ErrIncompleteAnswers, i+1)
		}
		if _, ok := e.catalog.Category(id); !ok {
			return domain.QuizResult{}, fmt.Errorf("%w %q", domain.ErrUnknownCategory, id)
		}
		counts[id]++
	}

	total := len(answers)
	breakdown := make([]domain.BreakdownEntry, 0, len(counts))
	for _, category := range e.catalog.Categories() {
		count := counts[category.ID]
		if count == 0 {
			continue
		}
		breakdown = append(breakdown, domain.BreakdownEntry{
			Category:   category,
			Count:      count,
			Percentage: Percentage(count, total),
		})
	}
	sort.SliceStable(breakdown, func(i, j int) bool {
		return breakdown[i].Percentage > breakdown[j].Percentage
	})

	return domain.QuizResult{
		Answers:      append(domain.AnswerSet(nil), answers...),
		Breakdown:    breakdown,
		TotalAnswers: total,
	}, nil
}

// Percentage returns part/total as a percentage with one decimal place.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
