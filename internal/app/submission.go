package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cinematch-quiz-service/internal/catalog"
	"cinematch-quiz-service/internal/domain"
)

const (
	DefaultMinScore          = 0.5
	DefaultExpectedAction    = "quiz_submit"
	DefaultVerifyTimeout     = 5 * time.Second
	DefaultIdempotencyWindow = 24 * time.Hour

	defaultDisplayName = "Guest"
	preferenceTopN     = 5
)

// ResultWriter is the write side of the result store.
type ResultWriter interface {
	// CreateIfAbsent atomically stores result under result.ID unless a document with that id
	// exists. It returns the stored document and whether this call created it.
	CreateIfAbsent(ctx context.Context, result domain.StoredResult) (domain.StoredResult, bool, error)
	// UpsertPreference merges the snapshot into the identity's preference document.
	UpsertPreference(ctx context.Context, snapshot domain.PreferenceSnapshot) error
}

// ResultReader is the read side of the result store. Both listings are newest first.
type ResultReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.StoredResult, error)
	ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.StoredResult, error)
}

// ResultStore abstracts where results and preference snapshots live (memory, Redis, Postgres, SQLite).
type ResultStore interface {
	ResultWriter
	ResultReader
	GetPreference(ctx context.Context, identityID string) (domain.PreferenceSnapshot, error)
}

// Verifier asks the bot-verification service about a token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (domain.Verification, error)
}

// GateConfig tunes the submission gate. Zero values fall back to the defaults above.
type GateConfig struct {
	MinScore          float64
	ExpectedAction    string
	VerifyTimeout     time.Duration
	IdempotencyWindow time.Duration
}

func (c GateConfig) withDefaults() GateConfig {
	if c.MinScore <= 0 {
		c.MinScore = DefaultMinScore
	}
	if c.ExpectedAction == "" {
		c.ExpectedAction = DefaultExpectedAction
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = DefaultVerifyTimeout
	}
	if c.IdempotencyWindow <= 0 {
		c.IdempotencyWindow = DefaultIdempotencyWindow
	}
	return c
}

// SubmissionGate validates, verifies and persists quiz results at most once per idempotency key.
type SubmissionGate struct {
	store    ResultWriter
	verifier Verifier
	catalog  *catalog.Catalog
	scorer   *ScoringEngine
	cfg      GateConfig
	now      func() time.Time
	onStored func(domain.StoredResult)
}

func NewSubmissionGate(store ResultWriter, verifier Verifier, c *catalog.Catalog, cfg GateConfig) *SubmissionGate {
	return &SubmissionGate{
		store:    store,
		verifier: verifier,
		catalog:  c,
		scorer:   NewScoringEngine(c),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// WithClock swaps the time source; tests use it to pin idempotency buckets.
func (g *SubmissionGate) WithClock(now func() time.Time) *SubmissionGate {
	g.now = now
	return g
}

// OnStored registers a callback invoked after a result is written for the first time.
func (g *SubmissionGate) OnStored(fn func(domain.StoredResult)) {
	g.onStored = fn
}

// Submit runs shape validation, trust verification, key derivation and the at-most-once write.
// A failing preference projection is logged and does not fail the submission.
func (g *SubmissionGate) Submit(ctx context.Context, sub domain.Submission) (domain.SubmitResult, error) {
	result, topCategoryID, err := g.validate(sub)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	verification, err := g.verify(ctx, sub.Token, sub.RemoteIP)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	now := g.now().UTC()
	name := strings.TrimSpace(sub.DisplayName)
	if name == "" {
		name = defaultDisplayName
	}
	record := domain.StoredResult{
		ID:              IdempotencyKey(sub.IdentityID, topCategoryID, now, g.cfg.IdempotencyWindow),
		IdentityID:      sub.IdentityID,
		DisplayName:     name,
		IsGuest:         sub.IsGuest,
		TopCategoryID:   topCategoryID,
		Answers:         result.Answers,
		Breakdown:       result.Breakdown,
		TotalAnswers:    result.TotalAnswers,
		ClientTimestamp: sub.ClientTimestamp,
		ServerTimestamp: domain.At(now),
	}

	stored, created, err := g.store.CreateIfAbsent(ctx, record)
	if err != nil {
		if !errors.Is(err, domain.ErrStore) {
			err = fmt.Errorf("%w: %v", domain.ErrStore, err)
		}
		return domain.SubmitResult{}, err
	}

	g.projectPreference(ctx, record)

	if created && g.onStored != nil {
		g.onStored(stored)
	}
	return domain.SubmitResult{
		StoredResultID: stored.ID,
		TrustScore:     verification.Score,
		Created:        created,
	}, nil
}

func (g *SubmissionGate) validate(sub domain.Submission) (domain.QuizResult, string, error) {
	if strings.TrimSpace(sub.Token) == "" {
		return domain.QuizResult{}, "", fmt.Errorf("%w: token is required", domain.ErrInvalidPayload)
	}
	if strings.TrimSpace(sub.IdentityID) == "" {
		return domain.QuizResult{}, "", fmt.Errorf("%w: identityId is required", domain.ErrInvalidPayload)
	}
	if sub.TopCategoryID == "" && len(sub.Answers) == 0 {
		return domain.QuizResult{}, "", fmt.Errorf("%w: topCategoryId or answers is required", domain.ErrInvalidPayload)
	}

	var result domain.QuizResult
	if len(sub.Answers) > 0 {
		if sub.TotalAnswers != nil && *sub.TotalAnswers != len(sub.Answers) {
			return domain.QuizResult{}, "", fmt.Errorf("%w: totalAnswers %d does not match %d answers", domain.ErrInvalidPayload, *sub.TotalAnswers, len(sub.Answers))
		}
		scored, err := g.scorer.ScoreAnswers(sub.Answers)
		if err != nil {
			return domain.QuizResult{}, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		result = scored
	}

	top := sub.TopCategoryID
	if top == "" {
		entry, _ := result.Top()
		top = entry.Category.ID
	}
	if _, ok := g.catalog.Category(top); !ok {
		return domain.QuizResult{}, "", fmt.Errorf("%w: %w %q", domain.ErrInvalidPayload, domain.ErrUnknownCategory, top)
	}
	return result, top, nil
}

// verify fails closed: a hung or unreachable verifier rejects the submission.
func (g *SubmissionGate) verify(ctx context.Context, token, remoteIP string) (domain.Verification, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, g.cfg.VerifyTimeout)
	defer cancel()

	v, err := g.verifier.Verify(verifyCtx, token, remoteIP)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrVerifierUnavailable):
			return domain.Verification{}, err
		default:
			return domain.Verification{}, fmt.Errorf("%w: %v", domain.ErrVerifierUnavailable, err)
		}
	}

	if !v.Success {
		return v, fmt.Errorf("%w: token rejected %v", domain.ErrUntrustedSubmission, v.ErrorCodes)
	}
	if v.Action != g.cfg.ExpectedAction {
		return v, fmt.Errorf("%w: action mismatch %q", domain.ErrUntrustedSubmission, v.Action)
	}
	if v.Score < g.cfg.MinScore {
		return v, fmt.Errorf("%w: score %.2f below %.2f", domain.ErrUntrustedSubmission, v.Score, g.cfg.MinScore)
	}
	return v, nil
}

func (g *SubmissionGate) projectPreference(ctx context.Context, record domain.StoredResult) {
	top := record.Breakdown
	if len(top) > preferenceTopN {
		top = top[:preferenceTopN]
	}
	snapshot := domain.PreferenceSnapshot{
		IdentityID:    record.IdentityID,
		DisplayName:   record.DisplayName,
		IsGuest:       record.IsGuest,
		TotalAnswers:  record.TotalAnswers,
		TopCategoryID: record.TopCategoryID,
		TopCategories: append([]domain.BreakdownEntry(nil), top...),
		UpdatedAt:     record.ServerTimestamp,
	}
	if err := g.store.UpsertPreference(ctx, snapshot); err != nil {
		slog.Warn("preference projection failed", "identity", record.IdentityID, "error", err)
	}
}

// IdempotencyKey hashes identity, top category and the start of the window containing at.
// Windows are aligned to UTC, so the default 24h window means "same UTC calendar day".
func IdempotencyKey(identityID, topCategoryID string, at time.Time, window time.Duration) string {
	if window <= 0 {
		window = DefaultIdempotencyWindow
	}
	bucket := at.UTC().Truncate(window).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(identityID + "|" + topCategoryID + "|" + bucket))
	return hex.EncodeToString(sum[:])
}
