package domain

import "errors"

var (
	// ErrInvalidPayload is returned when a submission is malformed or missing required fields.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrUntrustedSubmission is returned when the trust verifier rejects a submission.
	ErrUntrustedSubmission = errors.New("untrusted submission")
	// ErrVerifierUnavailable indicates the trust verifier could not be reached or timed out.
	ErrVerifierUnavailable = errors.New("trust verifier unavailable")
	// ErrInvalidAttestation is returned when a supplied attestation token fails verification.
	ErrInvalidAttestation = errors.New("invalid attestation token")
	// ErrConfiguration indicates an operator fault such as a missing verifier secret.
	ErrConfiguration = errors.New("configuration error")
	// ErrStore wraps read/write failures of the result store.
	ErrStore = errors.New("result store error")
	// ErrIncompleteAnswers is returned when not every session question has an answer.
	ErrIncompleteAnswers = errors.New("not all questions answered")
	// ErrUnknownCategory indicates an answer references a category missing from the catalog.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrNotFound is returned by stores when a document does not exist.
	ErrNotFound = errors.New("not found")
)
