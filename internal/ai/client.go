// Package ai talks to an OpenAI-compatible chat-completions endpoint to
// categorize expenses, forecast spending and read receipt images. Replies
// are model output: callers treat them as untrusted suggestions.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"spendwise/internal/retry"
)

const (
	DefaultModel    = "google/gemini-2.5-flash"
	DefaultTimeout  = 30 * time.Second
	DefaultDeadline = 60 * time.Second

	maxResponseBytes = 1 << 20
)

var (
	ErrNotConfigured = errors.New("ai client not configured")
	ErrEmptyResponse = errors.New("ai response has no choices")
)

// APIError is a non-2xx answer from the completion endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ai api returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration // per attempt
	Deadline   time.Duration // whole call, backoff included
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL  string
	apiKey   string
	model    string
	timeout  time.Duration
	deadline time.Duration
	policy   retry.Policy
	http     *http.Client
	logger   *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 8 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		deadline: cfg.Deadline,
		policy: retry.Policy{
			Attempts:  cfg.MaxRetries,
			BaseDelay: cfg.BaseDelay,
			MaxDelay:  cfg.MaxDelay,
			Retryable: isRetryable,
		},
		http:   cfg.HTTPClient,
		logger: slog.Default().With("component", "ai"),
	}
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// transport failures, per-attempt timeouts and unreadable bodies
	return true
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends messages and returns the text of the first choice.
func (c *Client) complete(ctx context.Context, op string, messages []message) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	var content string
	attempt := 0
	err = retry.Do(ctx, c.policy, func(ctx context.Context) error {
		attempt++
		out, err := c.post(ctx, body)
		if err != nil {
			c.logger.WarnContext(ctx, "AI request failed",
				"operation", op,
				"attempt", attempt,
				"error", err)
			return err
		}
		content = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return content, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", retry.Permanent(ErrEmptyResponse)
	}
	return parsed.Choices[0].Message.Content, nil
}
