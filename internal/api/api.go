package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"ai-trading-floor/internal/logger"
)

// Client is a JSON HTTP client with shared base URL, headers and retry
// policy.
type Client struct {
	rc         *resty.Client
	useLogging bool
}

type ClientOption func(*Client)

// WithTimeout bounds each attempt. The caller's ctx still bounds the whole
// call including retries.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.rc.SetTimeout(timeout)
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.rc.SetBaseURL(baseURL)
	}
}

func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.rc.SetHeader(key, value)
	}
}

func WithLogging(enabled bool) ClientOption {
	return func(c *Client) {
		c.useLogging = enabled
	}
}

// WithRetry retries transport errors, 429 and 5xx responses with backoff.
func WithRetry(attempts int, wait, maxWait time.Duration) ClientOption {
	return func(c *Client) {
		c.rc.SetRetryCount(attempts).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(maxWait)
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{rc: resty.New().SetTimeout(30 * time.Second)}
	for _, opt := range opts {
		opt(c)
	}
	c.rc.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})
	return c
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// PostJSON sends body as JSON and decodes a 2xx response into out.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any, headers ...map[string]string) error {
	req := c.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if out != nil {
		req.SetResult(out)
	}
	if len(headers) > 0 {
		req.SetHeaders(headers[0])
	}
	return c.do(ctx, req, http.MethodPost, url)
}

// GetJSON decodes a 2xx response into out.
func (c *Client) GetJSON(ctx context.Context, url string, query map[string]string, out any, headers ...map[string]string) error {
	req := c.rc.R().SetContext(ctx).SetQueryParams(query)
	if out != nil {
		req.SetResult(out)
	}
	if len(headers) > 0 {
		req.SetHeaders(headers[0])
	}
	return c.do(ctx, req, http.MethodGet, url)
}

func (c *Client) do(ctx context.Context, req *resty.Request, method, url string) error {
	start := time.Now()
	resp, err := req.Execute(method, url)
	if err != nil {
		if c.useLogging {
			logger.Warn(ctx, "HTTP request failed", "method", method, "url", url, "error", err)
		}
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	if c.useLogging {
		logger.Debug(ctx, "HTTP Response",
			"method", method,
			"url", url,
			"status", resp.StatusCode(),
			"duration", time.Since(start),
			"bodySize", len(resp.Body()),
			"attempts", resp.Request.Attempt,
		)
	}
	if resp.IsError() || resp.StatusCode() >= 300 {
		return &StatusError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}
	return nil
}

// BrowserHeaders mimics a desktop browser for sites that reject bots.
func BrowserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
