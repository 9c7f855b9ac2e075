package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cinematch-quiz-service/internal/domain"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Server-side faults are logged and not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Success: false, Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrIncompleteAnswers),
		errors.Is(err, domain.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidAttestation):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUntrustedSubmission):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVerifierUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
