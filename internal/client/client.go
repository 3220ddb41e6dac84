// Package client wraps an HTTP client with session awareness: requests
// carry the current access token, and an authorization failure on a
// previously valid session triggers one renewal-and-replay cycle.
package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TokenSource is the slice of the session store the client needs.
type TokenSource interface {
	Refresh(ctx context.Context) bool
	ForceRefresh(ctx context.Context) bool
	CurrentToken() (string, bool)
}

// Client issues authenticated requests against application APIs.
type Client struct {
	httpc  *http.Client
	tokens TokenSource
}

func New(tokens TokenSource, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{httpc: httpc, tokens: tokens}
}

// Do sends the request with a bearer token when one is available. A 401
// response is recovered from at most once: if the session was valid
// going in, the token is force-renewed and the request replayed. A 401
// without a prior valid session, or a second 401, is returned as-is so
// the caller can redirect to sign-in.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	hadValid := c.tokens.Refresh(req.Context())
	c.attachToken(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !hadValid {
		return resp, nil
	}

	slog.Debug("Request rejected with 401, attempting one token renewal", "url", req.URL.Path)
	if !c.tokens.ForceRefresh(req.Context()) {
		return resp, nil
	}

	replay, ok := c.cloneForReplay(req)
	if !ok {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	c.attachToken(replay)
	return c.httpc.Do(replay)
}

// Get is a convenience wrapper for authenticated GET requests.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func (c *Client) attachToken(req *http.Request) {
	if token, ok := c.tokens.CurrentToken(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}
}

// cloneForReplay copies the request for a second attempt. A consumed
// body without GetBody cannot be replayed.
func (c *Client) cloneForReplay(req *http.Request) (*http.Request, bool) {
	replay := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return replay, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	replay.Body = body
	return replay, true
}
