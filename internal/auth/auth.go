// Package auth is the boundary to the external auth collaborator. The
// coordinator never issues or decodes tokens itself; it asks the collaborator
// whether a bearer token is good and who it belongs to.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-coordinator/internal/domain"
)

// Identity is the verified principal behind a bearer token.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// TokenVerifier checks a bearer token once per connection.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// envelope is the collaborator's response shape for both token issuance and
// verification: {"status": "success"|"error", "message": ..., "data": {...}}.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTPVerifier delegates verification to the auth service over HTTP.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPVerifier(baseURL string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, domain.ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/verify", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Identity{}, domain.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("auth service returned %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Identity{}, fmt.Errorf("decode verify response: %w", err)
	}
	if env.Status != "success" {
		return Identity{}, domain.ErrUnauthorized
	}
	var identity Identity
	if err := json.Unmarshal(env.Data, &identity); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if identity.UserID == "" {
		return Identity{}, domain.ErrUnauthorized
	}
	return identity, nil
}

// Client obtains tokens from the collaborator's POST /auth/token endpoint
// (form fields username, password). Used by tooling and tests; the
// coordinator itself only verifies.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Token exchanges credentials for an access token.
func (c *Client) Token(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if env.Status != "success" {
		if env.Message != "" {
			return "", fmt.Errorf("token request failed: %s", env.Message)
		}
		return "", domain.ErrUnauthorized
	}
	var data struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("decode token payload: %w", err)
	}
	if data.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return data.AccessToken, nil
}

// InsecureVerifier accepts any non-empty token and uses it as both user ID
// and display name. For local development when no auth service is configured.
type InsecureVerifier struct{}

func (InsecureVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, domain.ErrUnauthorized
	}
	return Identity{UserID: token, Username: token}, nil
}
