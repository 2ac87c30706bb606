// Package upstream is a focused client for OpenAI-compatible chat
// completion APIs, covering both streaming and one-shot requests.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Message is one entry in a chat conversation. Content is either a plain
// string or, for vision-capable models, a []ContentPart.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multi-part message body.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference, typically a data: URI.
type ImageURL struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part from a URL or data: URI.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// StreamRequest describes one completion call.
type StreamRequest struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// chatResponse is the minimal response shape returned by a non-streaming
// Chat Completions call.
type chatResponse struct {
	Choices []struct {
		Index   int     `json:"index"`
		Message Message `json:"message"`
	} `json:"choices"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

var (
	// ErrUnauthorized indicates the upstream rejected the API key.
	ErrUnauthorized = errors.New("upstream: invalid or missing API key")

	// ErrInsufficientBalance indicates the upstream account has no credit left.
	ErrInsufficientBalance = errors.New("upstream: insufficient account balance")
)

// Client talks to one OpenAI-compatible provider with a fixed key and model.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client. The default HTTP client carries no overall
// timeout: streamed bodies outlive any fixed deadline, so cancellation is
// governed by the request context instead.
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("upstream: api key must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("upstream: model must not be empty")
	}
	c := &Client{
		baseURL:    "https://api.openai.com/v1",
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// StreamCompletion starts a streaming completion and returns the raw
// response body. The caller owns the reader and must close it; the byte
// framing inside is provider-specific and left to the caller to decode.
func (c *Client) StreamCompletion(ctx context.Context, req StreamRequest) (io.ReadCloser, error) {
	res, url, err := c.do(ctx, req, true)
	if err != nil {
		return nil, err
	}
	if serr := statusError(res, url); serr != nil {
		_ = res.Body.Close()
		return nil, serr
	}
	return res.Body, nil
}

// Complete performs a non-streaming completion and returns the assistant
// message content.
func (c *Client) Complete(ctx context.Context, req StreamRequest) (string, error) {
	res, url, err := c.do(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer func() { _ = res.Body.Close() }()

	if serr := statusError(res, url); serr != nil {
		return "", serr
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("upstream: read response body: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("upstream: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("upstream: no choices in response")
	}
	content, _ := payload.Choices[0].Message.Content.(string)
	return content, nil
}

func (c *Client) do(ctx context.Context, req StreamRequest, stream bool) (*http.Response, string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, "", fmt.Errorf("upstream: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return nil, "", fmt.Errorf("upstream: create request: %w", reqErr)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	res, doErr := c.httpClient.Do(httpReq)
	if doErr != nil {
		return nil, "", fmt.Errorf("upstream: request failed: %w", doErr)
	}
	return res, url, nil
}

// statusError maps a non-2xx response to an error, folding the well-known
// auth and billing statuses into sentinel errors callers can match on.
func statusError(res *http.Response, url string) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	herr := &HTTPStatusError{
		StatusCode: res.StatusCode,
		URL:        url,
		Body:       string(buf),
	}

	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrUnauthorized, herr)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, herr)
	}
	return herr
}
