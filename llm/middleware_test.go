package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/genflow-ai/genflow/types"
)

func usageOf(total int) types.TokenUsage {
	return types.TokenUsage{TotalTokens: total}
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *Request) (*Response, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	chain := NewChain(tag("outer")).Use(tag("inner"))
	handler := chain.Then(func(ctx context.Context, req *Request) (*Response, error) {
		order = append(order, "handler")
		return &Response{Content: "ok"}, nil
	})

	resp, err := handler(context.Background(), &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
	assert.Equal(t, 2, chain.Len())
}

func TestProviderHandler(t *testing.T) {
	mock := NewMockProvider(WithResponses(map[string]string{"hello": "world"}))
	handler := ProviderHandler(mock)

	resp, err := handler(context.Background(), &Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "world", resp.Content)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRateLimitMiddleware(t *testing.T) {
	// 1 request per 50ms with burst 1: the second call must wait.
	limiter := rate.NewLimiter(rate.Every(50*time.Millisecond), 1)
	handler := RateLimitMiddleware(limiter)(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{}, nil
	})

	start := time.Now()
	_, err := handler(context.Background(), &Request{Prompt: "a"})
	require.NoError(t, err)
	_, err = handler(context.Background(), &Request{Prompt: "b"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRateLimitMiddleware_ContextCancelled(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	handler := RateLimitMiddleware(limiter)(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{}, nil
	})

	// Drain the burst so the next call has to wait, then cancel.
	_, err := handler(context.Background(), &Request{Prompt: "a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = handler(ctx, &Request{Prompt: "b"})
	assert.Error(t, err)
}

type recordingCollector struct {
	mu       sync.Mutex
	requests int
	tokens   int
	failures int
}

func (c *recordingCollector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
	if status != "success" {
		c.failures++
	}
	c.tokens += promptTokens + completionTokens
}

func TestMetricsMiddleware(t *testing.T) {
	collector := &recordingCollector{}
	mw := MetricsMiddleware(collector)

	ok := mw(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Usage: types.TokenUsage{PromptTokens: 6, CompletionTokens: 4, TotalTokens: 10}}, nil
	})
	_, err := ok(context.Background(), &Request{Prompt: "x", Model: "m"})
	require.NoError(t, err)

	failing := mw(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, errors.New("boom")
	})
	_, err = failing(context.Background(), &Request{Prompt: "x", Model: "m"})
	require.Error(t, err)

	assert.Equal(t, 2, collector.requests)
	assert.Equal(t, 1, collector.failures)
	assert.Equal(t, 10, collector.tokens)
}

func TestPIIRedactionMiddleware(t *testing.T) {
	var seen string
	handler := PIIRedactionMiddleware(zap.NewNop())(func(ctx context.Context, req *Request) (*Response, error) {
		seen = req.Prompt
		return &Response{}, nil
	})

	original := &Request{Prompt: "email me at user@example.com please"}
	_, err := handler(context.Background(), original)
	require.NoError(t, err)

	assert.Contains(t, seen, "[EMAIL_REDACTED]")
	assert.NotContains(t, seen, "user@example.com")
	// The caller's request is left untouched.
	assert.Contains(t, original.Prompt, "user@example.com")
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(func(ctx context.Context, req *Request) (*Response, error) {
		panic("provider bug")
	})

	resp, err := handler(context.Background(), &Request{Prompt: "x"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "provider panic")
}
