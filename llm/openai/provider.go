// Package openai adapts the OpenAI chat completions API to the llm.Provider
// interface, mapping API failures onto the framework's error classification.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/genflow-ai/genflow/llm"
	"github.com/genflow-ai/genflow/types"
)

const providerName = "openai"

// Provider calls OpenAI chat completions.
type Provider struct {
	client       *goopenai.Client
	defaultModel string
}

// Option configures a Provider.
type Option func(*Provider)

// WithDefaultModel sets the model used when a request does not name one.
func WithDefaultModel(model string) Option {
	return func(p *Provider) { p.defaultModel = model }
}

// New creates a provider from an API key.
func New(apiKey string, opts ...Option) *Provider {
	return NewWithClient(goopenai.NewClient(apiKey), opts...)
}

// NewWithClient creates a provider around an existing client, e.g. one
// configured for an OpenAI-compatible endpoint.
func NewWithClient(client *goopenai.Client, opts ...Option) *Provider {
	p := &Provider{
		client:       client,
		defaultModel: goopenai.GPT4oMini,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return providerName }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	latency := time.Since(start)
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.ErrProviderError, "empty choice list in completion response").
			WithProvider(providerName)
	}

	choice := resp.Choices[0]
	return &llm.Response{
		Content: strings.TrimSpace(choice.Message.Content),
		Model:   resp.Model,
		Usage: types.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Model:            resp.Model,
			Provider:         providerName,
		},
		Latency:      latency,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// classifyError maps API failures onto framework error codes so the retry
// layer can tell transient failures from permanent ones.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamTimeout, "completion request timed out").
			WithProvider(providerName).WithRetryable(true).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrAborted, "completion request cancelled").
			WithProvider(providerName).WithCause(err)
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return types.NewError(types.ErrAuthentication, "authentication failed").
				WithProvider(providerName).WithHTTPStatus(apiErr.HTTPStatusCode).WithCause(err)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return types.NewError(types.ErrRateLimited, "rate limited by upstream").
				WithProvider(providerName).WithHTTPStatus(apiErr.HTTPStatusCode).WithRetryable(true).WithCause(err)
		case apiErr.HTTPStatusCode >= 500:
			return types.NewErrorf(types.ErrUpstreamError, "upstream error (%d)", apiErr.HTTPStatusCode).
				WithProvider(providerName).WithHTTPStatus(apiErr.HTTPStatusCode).WithRetryable(true).WithCause(err)
		default:
			return types.NewError(types.ErrInvalidRequest, apiErr.Message).
				WithProvider(providerName).WithHTTPStatus(apiErr.HTTPStatusCode).WithCause(err)
		}
	}

	// Network-level failures have no status code; assume transient.
	return types.NewError(types.ErrUpstreamError, "completion request failed").
		WithProvider(providerName).WithRetryable(true).WithCause(err)
}
