// Package quick provides a convenience entry point for assembling a
// workflow engine with minimal boilerplate. It delegates to the llm,
// retry, observability, and workflow packages internally.
//
// Usage:
//
//	import "github.com/genflow-ai/genflow/quick"
//
//	engine, err := quick.New(quick.WithOpenAI("gpt-4o-mini"))
//	engine, err := quick.New(quick.WithProvider(myProvider))
//	engine, err := quick.New(quick.WithConfig(cfg))
package quick

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/genflow-ai/genflow/config"
	"github.com/genflow-ai/genflow/llm"
	"github.com/genflow-ai/genflow/llm/openai"
	"github.com/genflow-ai/genflow/llm/retry"
	"github.com/genflow-ai/genflow/observability"
	"github.com/genflow-ai/genflow/workflow"
)

// Option configures the engine created by New.
type Option func(*options)

type options struct {
	provider   llm.Provider
	logger     *zap.Logger
	cfg        *config.Config
	mock       bool
	metrics    bool
	registerer prometheus.Registerer

	// Provider shortcut fields, used when provider is nil.
	providerName string
	model        string
	apiKey       string
}

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithOpenAI creates an OpenAI provider using the given model. The API
// key is read from the OPENAI_API_KEY environment variable.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.providerName = "openai"
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithMock uses the deterministic in-memory provider. Intended for tests
// and local development.
func WithMock(responses map[string]string) Option {
	return func(o *options) {
		o.mock = true
		o.provider = llm.NewMockProvider(llm.WithResponses(responses))
	}
}

// WithAPIKey overrides the API key for provider shortcuts.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConfig applies a full configuration (retry policy, rate limits,
// default model). Defaults to config.DefaultConfig().
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithMetrics enables Prometheus metrics for workflow, node, and provider
// calls. A nil registerer uses prometheus.DefaultRegisterer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.metrics = true
		o.registerer = reg
	}
}

// New assembles a workflow engine with a single registered provider, the
// configured retry policy, and a rate-limited call chain.
func New(opts ...Option) (*workflow.Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := o.provider
	providerName := o.providerName
	if p == nil {
		if providerName == "" {
			providerName = cfg.LLM.Provider
		}
		if providerName != "openai" {
			return nil, fmt.Errorf("unsupported provider %q: use WithProvider for custom providers", providerName)
		}
		apiKey := o.apiKey
		if apiKey == "" {
			apiKey = cfg.LLM.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("API key is required for %s: set OPENAI_API_KEY or use WithAPIKey", providerName)
		}
		model := o.model
		if model == "" {
			model = cfg.LLM.Model
		}
		p = openai.New(apiKey, openai.WithDefaultModel(model))
	}

	registry := llm.NewRegistry()
	if err := registry.Register(p.Name(), p); err != nil {
		return nil, err
	}
	// Alias the provider under the configured name so workflows built from
	// config resolve it even when a custom provider reports another name.
	if p.Name() != cfg.LLM.Provider {
		if err := registry.Register(cfg.LLM.Provider, p); err != nil {
			return nil, err
		}
	}

	var collector *observability.Collector
	if o.metrics {
		collector = observability.NewCollector("genflow", o.registerer)
	}

	chain := llm.NewChain(llm.RecoveryMiddleware(logger))
	if cfg.Limits.RequestsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.Limits.RequestsPerSecond), cfg.Limits.Burst)
		chain.Use(llm.RateLimitMiddleware(limiter))
	}
	chain.Use(llm.LoggingMiddleware(logger))
	if collector != nil {
		chain.Use(llm.MetricsMiddleware(collector))
	}

	policy := &retry.Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
		Jitter:       cfg.Retry.Jitter,
	}

	engineOpts := []workflow.EngineOption{
		workflow.WithLogger(logger),
		workflow.WithRetryPolicy(policy),
		workflow.WithCallChain(chain),
	}
	if collector != nil {
		engineOpts = append(engineOpts, workflow.WithCollector(collector))
	}
	return workflow.NewEngine(registry, engineOpts...), nil
}

// DefaultWorkflowConfig maps the loaded configuration onto per-workflow
// settings.
func DefaultWorkflowConfig(cfg *config.Config, providerName string) *workflow.WorkflowConfig {
	wc := workflow.DefaultWorkflowConfig()
	wc.Provider = providerName
	wc.Model = cfg.LLM.Model
	wc.Temperature = cfg.LLM.Temperature
	wc.MaxTokens = cfg.LLM.MaxTokens
	wc.MaxIterations = cfg.Workflow.MaxIterations
	wc.MaxNestingDepth = cfg.Workflow.MaxNestingDepth
	return wc
}
