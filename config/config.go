package config

import (
	"time"

	"github.com/genflow-ai/genflow/types"
)

// Config is the full engine configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Retry    RetryConfig    `yaml:"retry"`
	Log      LogConfig      `yaml:"log"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// LLMConfig selects the provider and default generation parameters.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// WorkflowConfig bounds workflow execution.
type WorkflowConfig struct {
	MaxIterations   int           `yaml:"max_iterations"`
	MaxNestingDepth int           `yaml:"max_nesting_depth"`
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
}

// RetryConfig shapes the provider-call retry policy.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// LogConfig shapes structured logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LimitsConfig throttles outbound provider traffic.
type LimitsConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Workflow: WorkflowConfig{
			MaxIterations:   100,
			MaxNestingDepth: 5,
			DefaultTimeout:  5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Limits: LimitsConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
	}
}

// Validate checks all fields against their allowed ranges.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return types.NewError(types.ErrConfiguration, "llm.provider cannot be empty")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return types.NewErrorf(types.ErrConfiguration, "llm.temperature %.2f out of range [0, 2]", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 128000 {
		return types.NewErrorf(types.ErrConfiguration, "llm.max_tokens %d out of range [1, 128000]", c.LLM.MaxTokens)
	}
	if c.Workflow.MaxIterations < 1 || c.Workflow.MaxIterations > 10000 {
		return types.NewErrorf(types.ErrConfiguration, "workflow.max_iterations %d out of range [1, 10000]", c.Workflow.MaxIterations)
	}
	if c.Workflow.MaxNestingDepth < 1 || c.Workflow.MaxNestingDepth > 20 {
		return types.NewErrorf(types.ErrConfiguration, "workflow.max_nesting_depth %d out of range [1, 20]", c.Workflow.MaxNestingDepth)
	}
	if c.Workflow.DefaultTimeout < 0 {
		return types.NewError(types.ErrConfiguration, "workflow.default_timeout cannot be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return types.NewErrorf(types.ErrConfiguration, "retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay <= 0 {
		return types.NewErrorf(types.ErrConfiguration, "retry.initial_delay must be positive, got %s", c.Retry.InitialDelay)
	}
	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		return types.NewErrorf(types.ErrConfiguration, "retry.max_delay %s is smaller than retry.initial_delay %s",
			c.Retry.MaxDelay, c.Retry.InitialDelay)
	}
	if c.Retry.Multiplier < 1.0 {
		return types.NewErrorf(types.ErrConfiguration, "retry.multiplier must be >= 1.0, got %g", c.Retry.Multiplier)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return types.NewErrorf(types.ErrConfiguration, "log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Limits.RequestsPerSecond < 0 {
		return types.NewError(types.ErrConfiguration, "limits.requests_per_second cannot be negative")
	}
	if c.Limits.Burst < 0 {
		return types.NewError(types.ErrConfiguration, "limits.burst cannot be negative")
	}
	return nil
}
