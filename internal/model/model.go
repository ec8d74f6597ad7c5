package model

import (
	"context"

	"github.com/dezso-dfield/ai-agent-representation/internal/prompt"
)

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the chat completion capability used by the agent. A failed
// remote call (auth, network, quota, malformed reply) is returned as an
// error and never retried here.
type Provider interface {
	ChatCompletion(ctx context.Context, modelID string, conv prompt.Conversation) (CompletionResponse, error)
}
