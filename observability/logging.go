package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/genflow-ai/genflow/llm"
	"github.com/genflow-ai/genflow/types"
)

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// NewLogger builds a zap logger from config. Secret-shaped string fields
// (API keys, bearer tokens) are redacted before they reach any sink.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, types.NewErrorf(types.ErrConfiguration, "invalid log level %q", cfg.Level).WithCause(err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "", "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, types.NewErrorf(types.ErrConfiguration, "invalid log format %q (want json or console)", cfg.Format)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &redactingCore{Core: core}
	}))
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, "build logger").WithCause(err)
	}
	return logger, nil
}

// redactingCore masks secrets in string field values.
type redactingCore struct {
	zapcore.Core
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *redactingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = llm.RedactSecrets(entry.Message)
	return c.Core.Write(entry, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		if f.Type == zapcore.StringType {
			f.String = llm.RedactSecrets(f.String)
		}
		out[i] = f
	}
	return out
}
