package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// EndpointPath is the path the explanation proxy serves.
const EndpointPath = "/explain-error"

// maxResponseBytes caps how much of a proxy response is read.
const maxResponseBytes = 1 << 20

// Client calls an explanation proxy over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient returns a client for the proxy at baseURL, for example
// "http://localhost:3000".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default().With("component", "explain"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Explain implements Explainer.
func (c *Client) Explain(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("explain: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("explain: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("explanation request failed", "error", err)
		return "", fmt.Errorf("explain: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("explain: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return "", fmt.Errorf("explain: proxy returned %d: %s", resp.StatusCode, e.Error)
		}
		return "", fmt.Errorf("explain: proxy returned %d", resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("explain: malformed response: %w", err)
	}
	if strings.TrimSpace(out.Explanation) == "" {
		return "", ErrEmpty
	}
	return out.Explanation, nil
}
