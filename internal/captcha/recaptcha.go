package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const siteVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Verifier gates token-issuing operations behind a human-verification
// challenge. It is a precondition check only, never part of the token
// lifecycle itself.
type Verifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// Recaptcha verifies challenge tokens against Google's siteverify API.
type Recaptcha struct {
	secretKey string
	client    *http.Client
}

func NewRecaptcha(secretKey string) *Recaptcha {
	return &Recaptcha{
		secretKey: secretKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Recaptcha) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", r.secretKey)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, siteVerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("siteverify request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool `json:"success"`
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return false, fmt.Errorf("failed to decode siteverify response: %w", err)
	}

	return result.Success, nil
}

// AllowAll accepts every challenge token. Used in development when no
// reCAPTCHA secret is configured.
type AllowAll struct{}

func (AllowAll) Verify(ctx context.Context, token string) (bool, error) {
	slog.Debug("bot verification skipped (dev mode)")
	return true, nil
}

// New returns the verifier for the given secret: the real client when a
// secret is configured, the allow-all verifier otherwise.
func New(secretKey string) Verifier {
	if secretKey == "" {
		return AllowAll{}
	}
	return NewRecaptcha(secretKey)
}
