package llm

import (
	"context"
	"sync"
	"time"

	"github.com/genflow-ai/genflow/types"
)

// MockProvider is a deterministic in-memory provider for tests and local
// development. Responses are keyed by exact prompt; the "default" key is
// the fallback for unmatched prompts.
type MockProvider struct {
	name      string
	responses map[string]string
	failWith  error
	latency   time.Duration

	mu       sync.Mutex
	requests []*Request
}

// MockOption configures a MockProvider.
type MockOption func(*MockProvider)

// WithResponses sets the canned prompt-to-response table.
func WithResponses(responses map[string]string) MockOption {
	return func(m *MockProvider) {
		for k, v := range responses {
			m.responses[k] = v
		}
	}
}

// WithFailure makes every Complete call return err.
func WithFailure(err error) MockOption {
	return func(m *MockProvider) { m.failWith = err }
}

// WithLatency simulates provider latency on each call.
func WithLatency(d time.Duration) MockOption {
	return func(m *MockProvider) { m.latency = d }
}

// NewMockProvider creates a mock provider named "mock".
func NewMockProvider(opts ...MockOption) *MockProvider {
	m := &MockProvider{
		name:      "mock",
		responses: map[string]string{"default": "mock response"},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	reqCopy := *req
	m.requests = append(m.requests, &reqCopy)
	m.mu.Unlock()

	if m.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.latency):
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.failWith != nil {
		return nil, m.failWith
	}

	content, ok := m.responses[req.Prompt]
	if !ok {
		content = m.responses["default"]
	}

	// Rough 4-chars-per-token estimate keeps metrics non-zero and stable.
	promptTokens := len(req.Prompt)/4 + 1
	completionTokens := len(content)/4 + 1

	return &Response{
		Content: content,
		Model:   "mock-model",
		Usage: types.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
			Model:            "mock-model",
			Provider:         m.name,
		},
		FinishReason: "stop",
	}, nil
}

// Name implements Provider.
func (m *MockProvider) Name() string { return m.name }

// CallCount returns how many Complete calls the provider has received.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of all received requests, in order.
func (m *MockProvider) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears the recorded request log.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}
