// Package openai is a minimal client for OpenAI-compatible chat completion
// endpoints such as Together.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dezso-dfield/ai-agent-representation/internal/model"
	"github.com/dezso-dfield/ai-agent-representation/internal/prompt"
)

// DefaultURL is the Together chat completions endpoint.
const DefaultURL = "https://api.together.xyz/v1/chat/completions"

// ErrMalformedResponse is returned when the endpoint answers 2xx with a body
// that carries no usable completion.
var ErrMalformedResponse = errors.New("malformed chat completion response")

// Client is a minimal chat completions client.
type Client struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

var _ model.Provider = (*Client)(nil)

// NewClient creates a client. A zero timeout leaves the transport default in
// place.
func NewClient(apiKey, url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		apiKey: apiKey,
		url:    url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []prompt.Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ChatCompletion sends conv to modelID and returns the first choice's content
// unchanged.
func (c *Client) ChatCompletion(ctx context.Context, modelID string, conv prompt.Conversation) (model.CompletionResponse, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    modelID,
		Messages: conv,
	})
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("failed reading chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.CompletionResponse{}, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 400),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.CompletionResponse{}, fmt.Errorf("%w: %s", ErrMalformedResponse, truncate(string(body), 400))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil {
		return model.CompletionResponse{}, fmt.Errorf("%w: no message content", ErrMalformedResponse)
	}

	result := model.CompletionResponse{Content: *parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		result.InputTokens = parsed.Usage.PromptTokens
		result.OutputTokens = parsed.Usage.CompletionTokens
	}
	return result, nil
}

// StatusError reports a non-2xx answer from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion non-success status=%d body=%s", e.StatusCode, e.Body)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
