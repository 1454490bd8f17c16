// Package upstream talks to the third-party completion API: it opens
// streaming calls, issues blocking fallback calls, checks connectivity, and
// knows how to strip request fields the upstream rejects.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// maxErrorBody caps how much of an upstream error body is retained for
// pattern matching and logging.
const maxErrorBody = 8 * 1024

// APIError is a non-2xx upstream response. The body is retained so the
// resilience layer can pattern-match rejection reasons.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// Client is the upstream provider client. One instance is shared across
// requests; it carries no per-request state.
type Client struct {
	base       string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns a Client for the given API base (no trailing slash) and
// bearer token. Request lifetimes are bounded by caller contexts, not a
// transport-level timeout, since streams legitimately run for minutes.
func NewClient(base, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		base:       base,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// OpenStream POSTs the payload with streaming enabled and returns the
// response body for SSE decoding. Non-2xx responses are drained into an
// *APIError.
func (c *Client) OpenStream(ctx context.Context, payload []byte) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling upstream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, drainError(resp)
	}

	return resp.Body, nil
}

// Complete issues the payload as a blocking call and extracts the answer
// text from the known response shapes.
func (c *Client) Complete(ctx context.Context, payload []byte) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", drainError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading upstream response: %w", err)
	}

	// An empty string at a known path is still an answer; only a response
	// with none of the known shapes is an error.
	for _, path := range []string{"choices.0.message.content", "output_text", "response"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			return v.String(), nil
		}
	}
	return "", fmt.Errorf("upstream response carried no answer text")
}

// ListModels proxies the provider's model-listing endpoint; used by the
// connectivity check. Returns the upstream status code and raw body.
func (c *Client) ListModels(ctx context.Context) (int, []byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return 0, nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return 0, nil, fmt.Errorf("reading upstream response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// drainError consumes a failed response into an *APIError and closes it.
func drainError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
}
