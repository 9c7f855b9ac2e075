package verifier

import (
	"fmt"

	"cinematch-quiz-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// AttestationClaims is the payload of an app attestation token.
type AttestationClaims struct {
	AppID string `json:"app_id,omitempty"`
	jwt.RegisteredClaims
}

// AttestationChecker validates HS256 app attestation tokens.
type AttestationChecker struct {
	hmac     []byte
	audience string
}

func NewAttestationChecker(secret, audience string) *AttestationChecker {
	return &AttestationChecker{hmac: []byte(secret), audience: audience}
}

// Enabled reports whether a signing secret is configured.
func (a *AttestationChecker) Enabled() bool {
	return len(a.hmac) > 0
}

func (a *AttestationChecker) Check(tokenStr string) (*AttestationClaims, error) {
	if !a.Enabled() {
		return nil, fmt.Errorf("%w: attestation secret is not set", domain.ErrConfiguration)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &AttestationClaims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAttestation, err)
	}
	claims, ok := token.Claims.(*AttestationClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidAttestation
	}
	return claims, nil
}

// Issue signs claims with the configured secret.
func (a *AttestationChecker) Issue(claims AttestationClaims) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("%w: attestation secret is not set", domain.ErrConfiguration)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmac)
}
