package http

import (
	"context"
	"net/http"
	"time"

	"cinematch-quiz-service/internal/app"
	"cinematch-quiz-service/internal/catalog"
	"cinematch-quiz-service/internal/domain"
	"cinematch-quiz-service/internal/verifier"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PreferenceReader loads preference snapshots.
type PreferenceReader interface {
	GetPreference(ctx context.Context, identityID string) (domain.PreferenceSnapshot, error)
}

// Deps are the collaborators the HTTP surface is wired to.
type Deps struct {
	Catalog     *catalog.Catalog
	Sessions    *app.SessionGenerator
	Scorer      *app.ScoringEngine
	Gate        *app.SubmissionGate
	Stats       *app.StatsService
	Preferences PreferenceReader
	Attestation *verifier.AttestationChecker
	Feed        *app.PopulationFeed
	SessionSize int
	CORSOrigins []string
}

// NewRouter mounts every endpoint behind the shared middleware stack.
func NewRouter(d Deps) http.Handler {
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     origins,
		AllowedMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:     []string{"Content-Type", attestationHeader},
		ExposedHeaders:     []string{"Content-Length"},
		OptionsPassthrough: true,
		MaxAge:             300,
	}))

	submit := NewSubmitHandler(d.Gate, d.Attestation)
	quiz := NewQuizHandler(d.Catalog, d.Sessions, d.Scorer, d.SessionSize)
	stats := NewStatsHandler(d.Stats, d.Preferences)

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(30 * time.Second))
		api.Post("/submit", submit.Submit)
		api.Get("/catalog", quiz.Catalog)
		api.Post("/sessions", quiz.StartSession)
		api.Post("/score", quiz.Score)
		api.Get("/stats", stats.Statistics)
		api.Get("/preferences/{identityID}", stats.Preference)
	})
	r.Options("/submit", preflight)
	r.Options("/*", preflight)

	if d.Feed != nil {
		r.Get("/ws/stats", NewWSHandler(d.Feed).ServeWS)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

// preflight answers CORS preflight requests with permissive headers.
func preflight(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	if h.Get("Access-Control-Allow-Origin") == "" {
		h.Set("Access-Control-Allow-Origin", "*")
	}
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+attestationHeader)
	h.Set("Access-Control-Max-Age", "300")
	w.WriteHeader(http.StatusNoContent)
}
