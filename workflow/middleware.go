package workflow

import (
	"context"

	"github.com/genflow-ai/genflow/llm"
)

// Middleware is the extension point for cross-cutting concerns around
// provider calls and workflow lifecycle events. Hooks run in registration
// order (FIFO). A hook failure or panic never crashes the engine: it is
// logged and ignored, with one exception — BeforeCall may short-circuit
// the provider call by returning an error classified as types.ErrAborted.
type Middleware interface {
	// BeforeCall runs before each provider call. Returning a non-nil
	// request substitutes it for the original.
	BeforeCall(ctx context.Context, req *llm.Request, meta map[string]any) (*llm.Request, error)

	// AfterCall runs after each successful provider call. Returning a
	// non-nil response substitutes it for the original.
	AfterCall(ctx context.Context, resp *llm.Response, meta map[string]any) (*llm.Response, error)

	// OnWorkflowStart runs when a workflow begins execution.
	OnWorkflowStart(ctx context.Context, workflowID string, meta map[string]any)

	// OnWorkflowEnd runs when a workflow reaches any terminal status.
	OnWorkflowEnd(ctx context.Context, result *WorkflowResult, meta map[string]any)

	// OnNodeError runs when a critical node fails.
	OnNodeError(ctx context.Context, err error, nodeName string, meta map[string]any)
}

// BaseMiddleware is a no-op Middleware. Embed it to implement only the
// hooks you need.
type BaseMiddleware struct{}

func (BaseMiddleware) BeforeCall(ctx context.Context, req *llm.Request, meta map[string]any) (*llm.Request, error) {
	return nil, nil
}

func (BaseMiddleware) AfterCall(ctx context.Context, resp *llm.Response, meta map[string]any) (*llm.Response, error) {
	return nil, nil
}

func (BaseMiddleware) OnWorkflowStart(ctx context.Context, workflowID string, meta map[string]any) {}

func (BaseMiddleware) OnWorkflowEnd(ctx context.Context, result *WorkflowResult, meta map[string]any) {
}

func (BaseMiddleware) OnNodeError(ctx context.Context, err error, nodeName string, meta map[string]any) {
}
