package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"ai-trading-floor/internal/api"
	"ai-trading-floor/internal/trace"
)

const defaultBaseURL = "https://api.openai.com"

type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
}

// Client calls the chat completions endpoint.
type Client struct {
	api  *api.Client
	opts Options
}

func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY missing")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	return &Client{
		api: api.NewClient(
			api.WithBaseURL(opts.BaseURL),
			api.WithHeader("Authorization", "Bearer "+opts.APIKey),
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

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	req := chatRequest{
		Model: c.opts.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}
	var resp chatResponse
	if err := c.api.PostJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
