package claude

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"ai-trading-floor/internal/api"
	"ai-trading-floor/internal/trace"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
}

// Client calls the Anthropic Messages API.
type Client struct {
	api  *api.Client
	opts Options
}

func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("CLAUDE_API_KEY missing")
	}
	if opts.Model == "" {
		opts.Model = "claude-3-5-haiku-latest"
	}
	if opts.BaseURL == "" {
		// proxies and gateways can be set via CLAUDE_API_ENDPOINT
		opts.BaseURL = defaultBaseURL
		if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
			opts.BaseURL = ep
		}
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 800
	}
	return &Client{
		api: api.NewClient(
			api.WithBaseURL(opts.BaseURL),
			api.WithHeader("x-api-key", opts.APIKey),
			api.WithHeader("anthropic-version", anthropicVersion),
			api.WithTimeout(60*time.Second),
			api.WithRetry(2, 500*time.Millisecond, 4*time.Second),
			api.WithLogging(true),
		),
		opts: opts,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	req := messagesRequest{
		Model:       c.opts.Model,
		System:      system,
		Messages:    []message{{Role: "user", Content: user}},
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}
	var resp messagesResponse
	if err := c.api.PostJSON(ctx, "/v1/messages", req, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("empty claude response")
	}
	return strings.TrimSpace(sb.String()), nil
}
