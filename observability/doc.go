// Package observability provides structured logging, Prometheus metrics,
// token usage tracking, and node timing for workflow executions.
package observability
