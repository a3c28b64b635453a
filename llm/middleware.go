package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/genflow-ai/genflow/types"
)

// Handler processes a request and returns a response.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Middleware wraps a handler with additional functionality.
type Middleware func(next Handler) Handler

// Chain represents a middleware chain.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps a handler with all middleware. The first middleware added is
// the outermost.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len returns the number of middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// ProviderHandler adapts a Provider into a Handler so it can sit at the
// end of a chain.
func ProviderHandler(p Provider) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		return p.Complete(ctx, req)
	}
}

// LoggingMiddleware logs request/response details.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			start := time.Now()
			logger.Debug("llm request",
				zap.String("component", "llm"),
				zap.String("model", req.Model),
				zap.Int("prompt_chars", len(req.Prompt)),
			)

			resp, err := next(ctx, req)

			duration := time.Since(start)
			if err != nil {
				logger.Warn("llm request failed",
					zap.String("component", "llm"),
					zap.String("model", req.Model),
					zap.Duration("duration", duration),
					zap.Error(err),
				)
			} else {
				logger.Debug("llm response",
					zap.String("component", "llm"),
					zap.String("model", resp.Model),
					zap.Int("total_tokens", resp.Usage.TotalTokens),
					zap.Duration("duration", duration),
				)
			}

			return resp, err
		}
	}
}

// RateLimitMiddleware throttles outgoing requests with a token bucket.
// Waiting respects context cancellation.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, types.NewError(types.ErrRateLimited, "rate limit wait aborted").WithCause(err)
			}
			return next(ctx, req)
		}
	}
}

// MetricsCollector receives per-call metrics. Satisfied by
// observability.Collector.
type MetricsCollector interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// MetricsMiddleware collects request metrics.
func MetricsMiddleware(collector MetricsCollector) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			status := "success"
			if err != nil {
				status = "error"
			}
			provider, model := "", req.Model
			var promptTokens, completionTokens int
			if resp != nil {
				provider = resp.Usage.Provider
				if resp.Model != "" {
					model = resp.Model
				}
				promptTokens = resp.Usage.PromptTokens
				completionTokens = resp.Usage.CompletionTokens
			}
			collector.RecordLLMRequest(provider, model, status, duration, promptTokens, completionTokens)

			return resp, err
		}
	}
}

// PIIRedactionMiddleware masks detected PII in prompts before they leave
// the process. The original request is not modified.
func PIIRedactionMiddleware(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			matches := DetectPII(req.Prompt)
			if len(matches) == 0 {
				return next(ctx, req)
			}

			logger.Warn("PII detected in prompt, redacting",
				zap.String("component", "llm"),
				zap.Strings("kinds", matches),
			)

			redacted := *req
			redacted.Prompt = RedactPII(req.Prompt)
			return next(ctx, &redacted)
		}
	}
}

// RecoveryMiddleware converts provider panics into errors.
func RecoveryMiddleware(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (resp *Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("provider panic recovered",
						zap.String("component", "llm"),
						zap.Any("panic", r),
					)
					err = types.NewErrorf(types.ErrProviderError, "provider panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}
