package http

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"cinematch-quiz-service/internal/app"
	"cinematch-quiz-service/internal/domain"
	"cinematch-quiz-service/internal/verifier"
)

const (
	attestationHeader = "X-Attestation-Token"
	maxSubmitBody     = 64 << 10
)

type SubmitHandler struct {
	gate        *app.SubmissionGate
	attestation *verifier.AttestationChecker
}

func NewSubmitHandler(gate *app.SubmissionGate, attestation *verifier.AttestationChecker) *SubmitHandler {
	return &SubmitHandler{gate: gate, attestation: attestation}
}

type submitResponse struct {
	Success        bool    `json:"success"`
	StoredResultID string  `json:"storedResultId"`
	TrustScore     float64 `json:"trustScore"`
}

// Submit handles POST /submit.
func (h *SubmitHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if token := strings.TrimSpace(r.Header.Get(attestationHeader)); token != "" {
		if err := h.checkAttestation(token); err != nil {
			writeError(w, r, err)
			return
		}
	}

	var sub domain.Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	if err := dec.Decode(&sub); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err))
		return
	}
	sub.RemoteIP = remoteIP(r)

	res, err := h.gate.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Success:        true,
		StoredResultID: res.StoredResultID,
		TrustScore:     res.TrustScore,
	})
}

func (h *SubmitHandler) checkAttestation(token string) error {
	if h.attestation == nil {
		return fmt.Errorf("%w: attestation secret is not set", domain.ErrConfiguration)
	}
	_, err := h.attestation.Check(token)
	return err
}

func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
