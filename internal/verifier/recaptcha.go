package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cinematch-quiz-service/internal/domain"
)

// DefaultSiteVerifyURL is the reCAPTCHA v3 verification endpoint.
const DefaultSiteVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// SiteVerifier checks tokens against a siteverify-compatible endpoint.
type SiteVerifier struct {
	URL    string
	Secret string
	HTTP   *http.Client
}

func NewSiteVerifier(endpoint, secret string, timeout time.Duration) *SiteVerifier {
	if endpoint == "" {
		endpoint = DefaultSiteVerifyURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SiteVerifier{
		URL:    endpoint,
		Secret: secret,
		HTTP:   &http.Client{Timeout: timeout},
	}
}

type siteVerifyResp struct {
	Success     bool     `json:"success"`
	Score       float64  `json:"score"`
	Action      string   `json:"action"`
	Hostname    string   `json:"hostname,omitempty"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
}

// Verify posts the token to the endpoint. A missing secret is a configuration error; transport
// failures and non-2xx replies mean the verifier is unavailable.
func (v *SiteVerifier) Verify(ctx context.Context, token, remoteIP string) (domain.Verification, error) {
	if v.Secret == "" {
		return domain.Verification{}, fmt.Errorf("%w: verifier secret is not set", domain.ErrConfiguration)
	}

	form := url.Values{}
	form.Set("secret", v.Secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Verification{}, fmt.Errorf("%w: build request: %v", domain.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.HTTP.Do(req)
	if err != nil {
		return domain.Verification{}, fmt.Errorf("%w: %v", domain.ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return domain.Verification{}, fmt.Errorf("%w: siteverify returned %s", domain.ErrVerifierUnavailable, resp.Status)
	}

	var out siteVerifyResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Verification{}, fmt.Errorf("%w: decode siteverify: %v", domain.ErrVerifierUnavailable, err)
	}
	return domain.Verification{
		Success:    out.Success,
		Score:      out.Score,
		Action:     out.Action,
		ErrorCodes: out.ErrorCodes,
	}, nil
}
