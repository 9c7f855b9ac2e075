package http

import (
	"fmt"
	"net/http"
	"strconv"

	"cinematch-quiz-service/internal/app"
	"cinematch-quiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

type StatsHandler struct {
	stats       *app.StatsService
	preferences PreferenceReader
}

func NewStatsHandler(stats *app.StatsService, preferences PreferenceReader) *StatsHandler {
	return &StatsHandler{stats: stats, preferences: preferences}
}

// Statistics handles GET /stats?identityId=&mine=&global=.
func (h *StatsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mine, err := optionalInt(q.Get("mine"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	global, err := optionalInt(q.Get("global"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := h.stats.Statistics(r.Context(), q.Get("identityId"), app.Limits{Mine: mine, Global: global})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Preference handles GET /preferences/{identityID}.
func (h *StatsHandler) Preference(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.preferences.GetPreference(r.Context(), chi.URLParam(r, "identityID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q is not a valid limit", domain.ErrInvalidPayload, raw)
	}
	return v, nil
}
