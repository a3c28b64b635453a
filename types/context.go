package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyCorrelationID contextKey = "correlation_id"
	keyWorkflowID    contextKey = "workflow_id"
)

// WithCorrelationID adds the correlation ID to context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, keyCorrelationID, correlationID)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyCorrelationID).(string)
	return v, ok && v != ""
}

// WithWorkflowID adds the workflow ID to context.
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, keyWorkflowID, workflowID)
}

// WorkflowID extracts the workflow ID from context.
func WorkflowID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyWorkflowID).(string)
	return v, ok && v != ""
}
