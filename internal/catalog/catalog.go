package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"cinematch-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is the read-only registry of categories and questions. It is safe to share
// between goroutines once loaded.
type Catalog struct {
	categories []domain.Category
	questions  []domain.Question
	order      map[string]int
}

type document struct {
	Categories []domain.Category `yaml:"categories"`
	Questions  []domain.Question `yaml:"questions"`
}

// Default returns the embedded film-genre catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a YAML catalog from path; an empty path yields the embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc.Categories, doc.Questions)
}

// New validates categories and questions and builds a Catalog from them.
func New(categories []domain.Category, questions []domain.Question) (*Catalog, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}
	order := make(map[string]int, len(categories))
	for i, c := range categories {
		if c.ID == "" {
			return nil, fmt.Errorf("category %d has no id", i)
		}
		if _, dup := order[c.ID]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.ID)
		}
		order[c.ID] = i
	}

	seen := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question without id")
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question %q", q.ID)
		}
		seen[q.ID] = struct{}{}
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("question %q needs at least two options", q.ID)
		}
		for _, opt := range q.Options {
			if _, ok := order[opt.CategoryID]; !ok {
				return nil, fmt.Errorf("question %q: %w %q", q.ID, domain.ErrUnknownCategory, opt.CategoryID)
			}
		}
	}

	return &Catalog{
		categories: append([]domain.Category(nil), categories...),
		questions:  append([]domain.Question(nil), questions...),
		order:      order,
	}, nil
}

// Categories returns the categories in declaration order.
func (c *Catalog) Categories() []domain.Category {
	return append([]domain.Category(nil), c.categories...)
}

// Questions returns the questions in declaration order.
func (c *Catalog) Questions() []domain.Question {
	return append([]domain.Question(nil), c.questions...)
}

// Category looks up a category by id.
func (c *Catalog) Category(id string) (domain.Category, bool) {
	i, ok := c.order[id]
	if !ok {
		return domain.Category{}, false
	}
	return c.categories[i], true
}

// Position returns the declaration index of a category, or -1 if unknown.
func (c *Catalog) Position(id string) int {
	if i, ok := c.order[id]; ok {
		return i
	}
	return -1
}
