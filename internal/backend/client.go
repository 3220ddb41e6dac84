// Package backend talks to the external auth service: token renewal,
// sign-out, and the lifecycle event stream.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angola031/ecoswap-session/internal/domain"
)

const httpCallTimeout = 10 * time.Second

// Client is the HTTP client against the auth service.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	clock   clockwork.Clock
}

// NewClient constructs the auth client. A missing base URL or API key is
// a terminal configuration error.
func NewClient(baseURL, apiKey string, clock clockwork.Clock) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL not set", domain.ErrConfigurationMissing)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key not set", domain.ErrConfigurationMissing)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: httpCallTimeout},
		clock:   clock,
	}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// RefreshSession exchanges the refresh handle for a new credential.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*domain.Credential, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	url := c.baseURL + "/auth/v1/token?grant_type=refresh_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyFailure(resp, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: backend returned no session", domain.ErrRenewalFailed)
	}

	return &domain.Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    c.clock.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// SignOut revokes the session server-side.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to create sign-out request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("sign-out request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return classifyFailure(resp, body)
	}
	return nil
}

// classifyFailure maps an error response onto the error taxonomy. 429 or
// a rate-limit message is the throttle signal; 401 the authorization
// failure signal.
func classifyFailure(resp *http.Response, body []byte) error {
	msg := errorMessage(body)

	if resp.StatusCode == http.StatusTooManyRequests || domain.IsRateLimitMessage(msg) {
		return &domain.ThrottledError{
			RetryAfter: retryAfterHint(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("status %d: %s", resp.StatusCode, msg),
		}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: status 401: %s", domain.ErrUnauthorized, msg)
	}
	return fmt.Errorf("backend error: status %d: %s", resp.StatusCode, msg)
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Message != "" {
			return er.Message
		}
		if er.Error != "" {
			return er.Error
		}
	}
	return string(body)
}

func retryAfterHint(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
