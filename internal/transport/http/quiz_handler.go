package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cinematch-quiz-service/internal/app"
	"cinematch-quiz-service/internal/catalog"
	"cinematch-quiz-service/internal/domain"
)

type QuizHandler struct {
	catalog     *catalog.Catalog
	sessions    *app.SessionGenerator
	scorer      *app.ScoringEngine
	sessionSize int
}

func NewQuizHandler(c *catalog.Catalog, sessions *app.SessionGenerator, scorer *app.ScoringEngine, sessionSize int) *QuizHandler {
	if sessionSize <= 0 {
		sessionSize = 10
	}
	return &QuizHandler{catalog: c, sessions: sessions, scorer: scorer, sessionSize: sessionSize}
}

type catalogResponse struct {
	Categories []domain.Category `json:"categories"`
	Questions  []domain.Question `json:"questions"`
}

// Catalog handles GET /catalog.
func (h *QuizHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{
		Categories: h.catalog.Categories(),
		Questions:  h.catalog.Questions(),
	})
}

type sessionRequest struct {
	Count int `json:"count"`
}

// StartSession handles POST /sessions. An empty body starts a default-sized session.
func (h *QuizHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err))
		return
	}
	count := req.Count
	if count <= 0 {
		count = h.sessionSize
	}
	writeJSON(w, http.StatusCreated, h.sessions.StartSession(count))
}

type scoreRequest struct {
	Answers domain.AnswerSet `json:"answers"`
}

// Score handles POST /score.
func (h *QuizHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err))
		return
	}
	result, err := h.scorer.ScoreAnswers(req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
