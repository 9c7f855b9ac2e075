package app

import (
	"math/rand"
	"sync"
	"time"

	"cinematch-quiz-service/internal/catalog"
	"cinematch-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// SessionGenerator draws randomized question subsets for quiz attempts.
type SessionGenerator struct {
	catalog *catalog.Catalog
	now     func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSessionGenerator(c *catalog.Catalog) *SessionGenerator {
	return NewSessionGeneratorWithRand(c, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSessionGeneratorWithRand is used by tests for reproducible shuffles.
func NewSessionGeneratorWithRand(c *catalog.Catalog, rnd *rand.Rand) *SessionGenerator {
	return &SessionGenerator{catalog: c, now: time.Now, rnd: rnd}
}

// StartSession returns min(desired, catalog size) distinct questions in random order.
// A non-positive desired count yields an empty session.
func (g *SessionGenerator) StartSession(desired int) domain.Session {
	questions := g.catalog.Questions()

	g.mu.Lock()
	for i := len(questions) - 1; i > 0; i-- {
		j := g.rnd.Intn(i + 1)
		questions[i], questions[j] = questions[j], questions[i]
	}
	g.mu.Unlock()

	if desired < 0 {
		desired = 0
	}
	if desired < len(questions) {
		questions = questions[:desired]
	}
	return domain.Session{
		ID:        uuid.NewString(),
		Questions: questions,
		CreatedAt: g.now(),
	}
}
