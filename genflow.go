// Package genflow provides a top-level convenience entry point for
// assembling a workflow engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/genflow-ai/genflow"
//
//	engine, err := genflow.New(genflow.WithOpenAI("gpt-4o-mini"))
//	engine, err := genflow.New(genflow.WithMock(nil))
//
// This is a thin wrapper around [quick.New]; both produce identical
// results. Use this package when you prefer the shorter import path.
package genflow

import (
	"github.com/genflow-ai/genflow/quick"
	"github.com/genflow-ai/genflow/workflow"
)

// Option configures the engine created by [New].
type Option = quick.Option

// New assembles a [workflow.Engine] with minimal configuration.
func New(opts ...Option) (*workflow.Engine, error) {
	return quick.New(opts...)
}

// Re-export options so callers never need to import quick/.

// WithProvider sets a pre-built LLM provider.
var WithProvider = quick.WithProvider

// WithOpenAI creates an OpenAI provider. API key from OPENAI_API_KEY env.
var WithOpenAI = quick.WithOpenAI

// WithMock uses the deterministic in-memory provider.
var WithMock = quick.WithMock

// WithAPIKey overrides the API key for provider shortcuts.
var WithAPIKey = quick.WithAPIKey

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger

// WithConfig applies a full configuration.
var WithConfig = quick.WithConfig
