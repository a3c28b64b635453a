package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/genflow-ai/genflow/types"
)

// Loader assembles a Config from defaults, an optional YAML file, and
// environment variables. Precedence: defaults < file < environment.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a loader with the "GENFLOW" environment prefix and no
// config file.
func NewLoader() *Loader {
	return &Loader{envPrefix: "GENFLOW"}
}

// WithConfigPath sets the YAML file to load. A missing file is an error;
// leave the path empty to skip file loading entirely.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix, e.g. "GENFLOW" for
// GENFLOW_LLM_MODEL.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load builds and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		fileCfg, err := loadFile(l.configPath)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, types.NewError(types.ErrConfiguration, "failed to merge file configuration").WithCause(err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.NewErrorf(types.ErrConfiguration, "config file %q not found", path).WithCause(err)
		}
		return nil, types.NewErrorf(types.ErrConfiguration, "failed to read config file %q", path).WithCause(err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, types.NewErrorf(types.ErrConfiguration, "failed to parse config file %q", path).WithCause(err)
	}
	return &cfg, nil
}

// applyEnv overrides cfg fields from <prefix>_SECTION_FIELD variables.
// Unparseable values are ignored so a stray variable cannot take the
// process down; validation still catches out-of-range results.
func (l *Loader) applyEnv(cfg *Config) {
	setString(l.key("LLM_PROVIDER"), &cfg.LLM.Provider)
	setString(l.key("LLM_MODEL"), &cfg.LLM.Model)
	setString(l.key("LLM_API_KEY"), &cfg.LLM.APIKey)
	setString(l.key("LLM_BASE_URL"), &cfg.LLM.BaseURL)
	setFloat32(l.key("LLM_TEMPERATURE"), &cfg.LLM.Temperature)
	setInt(l.key("LLM_MAX_TOKENS"), &cfg.LLM.MaxTokens)

	setInt(l.key("WORKFLOW_MAX_ITERATIONS"), &cfg.Workflow.MaxIterations)
	setInt(l.key("WORKFLOW_MAX_NESTING_DEPTH"), &cfg.Workflow.MaxNestingDepth)
	setDuration(l.key("WORKFLOW_DEFAULT_TIMEOUT"), &cfg.Workflow.DefaultTimeout)

	setInt(l.key("RETRY_MAX_ATTEMPTS"), &cfg.Retry.MaxAttempts)
	setDuration(l.key("RETRY_INITIAL_DELAY"), &cfg.Retry.InitialDelay)
	setDuration(l.key("RETRY_MAX_DELAY"), &cfg.Retry.MaxDelay)
	setFloat64(l.key("RETRY_MULTIPLIER"), &cfg.Retry.Multiplier)
	setBool(l.key("RETRY_JITTER"), &cfg.Retry.Jitter)

	setString(l.key("LOG_LEVEL"), &cfg.Log.Level)
	setString(l.key("LOG_FORMAT"), &cfg.Log.Format)

	setFloat64(l.key("LIMITS_REQUESTS_PER_SECOND"), &cfg.Limits.RequestsPerSecond)
	setInt(l.key("LIMITS_BURST"), &cfg.Limits.Burst)
}

func (l *Loader) key(suffix string) string {
	if l.envPrefix == "" {
		return suffix
	}
	return l.envPrefix + "_" + suffix
}

func setString(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*target = v
	}
}

func setInt(key string, target *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = n
		}
	}
}

func setFloat32(key string, target *float32) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 32); err == nil {
			*target = float32(f)
		}
	}
}

func setFloat64(key string, target *float64) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*target = f
		}
	}
}

func setBool(key string, target *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*target = b
		}
	}
}

func setDuration(key string, target *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*target = d
		}
	}
}
