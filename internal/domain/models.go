package domain

import "time"

// Category is one of the fixed preference buckets an option maps to.
type Category struct {
	ID                 string `json:"id" yaml:"id"`
	Label              string `json:"label" yaml:"label"`
	Color              string `json:"color" yaml:"color"`
	ExternalTaxonomyID int    `json:"externalTaxonomyId" yaml:"external_taxonomy_id"`
}

// Option represents a possible answer for a question.
type Option struct {
	Label      string `json:"label" yaml:"label"`
	CategoryID string `json:"categoryId" yaml:"category"`
	HelperText string `json:"helperText,omitempty" yaml:"helper,omitempty"`
}

// Question is a multiple-choice question whose options each point at a category.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Text    string   `json:"text" yaml:"text"`
	Options []Option `json:"options" yaml:"options"`
}

// Session is one quiz attempt: an ordered subset of the catalog questions.
type Session struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
}

// AnswerSet holds one category id per session question, index-aligned with Session.Questions.
type AnswerSet []string

// BreakdownEntry is one ranked row of a breakdown.
type BreakdownEntry struct {
	Category   Category `json:"category"`
	Count      int      `json:"count"`
	Percentage float64  `json:"percentage"`
}

// QuizResult is the scored outcome of a completed session.
type QuizResult struct {
	Answers      AnswerSet        `json:"answers"`
	Breakdown    []BreakdownEntry `json:"breakdown"`
	TotalAnswers int              `json:"totalAnswers"`
}

// Top returns the highest ranked breakdown entry.
func (r QuizResult) Top() (BreakdownEntry, bool) {
	if len(r.Breakdown) == 0 {
		return BreakdownEntry{}, false
	}
	return r.Breakdown[0], true
}

// StoredResult is the persisted form of a submission. ID is the idempotency key.
type StoredResult struct {
	ID              string           `json:"id"`
	IdentityID      string           `json:"identityId"`
	DisplayName     string           `json:"displayName"`
	IsGuest         bool             `json:"isGuest"`
	TopCategoryID   string           `json:"topCategoryId,omitempty"`
	Answers         AnswerSet        `json:"answers,omitempty"`
	Breakdown       []BreakdownEntry `json:"breakdown,omitempty"`
	TotalAnswers    int              `json:"totalAnswers"`
	ClientTimestamp Timestamp        `json:"clientTimestamp"`
	ServerTimestamp Timestamp        `json:"serverTimestamp"`
}

// PreferenceSnapshot is the per-identity "current preference" projection.
type PreferenceSnapshot struct {
	IdentityID    string           `json:"identityId"`
	DisplayName   string           `json:"displayName"`
	IsGuest       bool             `json:"isGuest"`
	TotalAnswers  int              `json:"totalAnswers"`
	TopCategoryID string           `json:"topCategoryId"`
	TopCategories []BreakdownEntry `json:"topCategories"`
	UpdatedAt     Timestamp        `json:"updatedAt"`
}

// Submission is an inbound request to persist a quiz result.
type Submission struct {
	Token           string           `json:"token"`
	IdentityID      string           `json:"identityId"`
	TopCategoryID   string           `json:"topCategoryId,omitempty"`
	Answers         AnswerSet        `json:"answers,omitempty"`
	Breakdown       []BreakdownEntry `json:"breakdown,omitempty"`
	TotalAnswers    *int             `json:"totalAnswers,omitempty"`
	IsGuest         bool             `json:"isGuest"`
	DisplayName     string           `json:"displayName"`
	ClientTimestamp Timestamp        `json:"clientTimestamp"`
	RemoteIP        string           `json:"-"`
}

// SubmitResult is returned for an accepted submission, whether it was written now or earlier.
type SubmitResult struct {
	StoredResultID string  `json:"storedResultId"`
	TrustScore     float64 `json:"trustScore"`
	Created        bool    `json:"-"`
}

// Verification is what the external trust verifier reports about a token.
type Verification struct {
	Success    bool
	Score      float64
	Action     string
	ErrorCodes []string
}

// ResultSummary is a display row derived from a stored result.
type ResultSummary struct {
	ID          string    `json:"id"`
	IdentityID  string    `json:"identityId"`
	DisplayName string    `json:"displayName"`
	IsGuest     bool      `json:"isGuest"`
	CategoryID  string    `json:"categoryId,omitempty"`
	Label       string    `json:"label"`
	Color       string    `json:"color"`
	Percentage  float64   `json:"percentage"`
	Timestamp   Timestamp `json:"timestamp"`
}

// PieSlice is one category share of the deduplicated population.
type PieSlice struct {
	CategoryID string  `json:"categoryId"`
	Label      string  `json:"label"`
	Color      string  `json:"color"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// SeriesPoint is one column of the personal history chart.
type SeriesPoint struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	ShortDate  string    `json:"shortDate"`
	CategoryID string    `json:"categoryId"`
	Label      string    `json:"label"`
	Color      string    `json:"color"`
	Percentage float64   `json:"percentage"`
	Height     int       `json:"height"`
}

// GuestSplit counts guests and registered users of the deduplicated population.
type GuestSplit struct {
	Guests     int `json:"guests"`
	Registered int `json:"registered"`
}

// Population is the population-wide view over the latest result of each identity.
type Population struct {
	Latest []ResultSummary `json:"latest"`
	Pie    []PieSlice      `json:"pie"`
	Split  GuestSplit      `json:"split"`
	Total  int             `json:"total"`
}

// Statistics combines the personal and population views for one identity.
type Statistics struct {
	IdentityID string          `json:"identityId,omitempty"`
	History    []ResultSummary `json:"history"`
	Series     []SeriesPoint   `json:"series"`
	Population Population      `json:"population"`
}
