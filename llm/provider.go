package llm

import (
	"context"
	"strings"
	"time"

	"github.com/genflow-ai/genflow/types"
)

// Request is a single completion request sent to a provider.
type Request struct {
	Prompt       string            `json:"prompt"`
	Model        string            `json:"model,omitempty"`
	Temperature  float32           `json:"temperature,omitempty"`
	MaxTokens    int               `json:"max_tokens,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Validate checks request fields against provider-independent bounds.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return types.NewError(types.ErrInvalidRequest, "prompt cannot be empty")
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return types.NewErrorf(types.ErrInvalidRequest, "temperature %.2f out of range [0, 2]", r.Temperature)
	}
	if r.MaxTokens < 0 {
		return types.NewErrorf(types.ErrInvalidRequest, "max_tokens must be non-negative, got %d", r.MaxTokens)
	}
	return nil
}

// Response is the provider's completion result.
type Response struct {
	Content      string           `json:"content"`
	Model        string           `json:"model,omitempty"`
	Usage        types.TokenUsage `json:"usage"`
	Latency      time.Duration    `json:"latency,omitempty"`
	FinishReason string           `json:"finish_reason,omitempty"`
}

// Provider is the adapter interface implemented for each LLM backend.
type Provider interface {
	// Complete issues a synchronous completion request.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Name returns the provider's unique identifier.
	Name() string
}
