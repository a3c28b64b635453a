// Command genflow runs a single-prompt workflow from the command line.
// It loads configuration from an optional YAML file plus GENFLOW_*
// environment variables, assembles an engine, and prints the result.
//
//	genflow -prompt "Summarize: {text}" -input text="..." [-config genflow.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/genflow-ai/genflow/config"
	"github.com/genflow-ai/genflow/observability"
	"github.com/genflow-ai/genflow/quick"
	"github.com/genflow-ai/genflow/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "genflow:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		prompt     = flag.String("prompt", "", "prompt template, e.g. \"Summarize: {text}\"")
		useMock    = flag.Bool("mock", false, "use the in-memory mock provider")
	)
	var inputs inputFlags
	flag.Var(&inputs, "input", "workflow input as key=value (repeatable)")
	flag.Parse()

	if *prompt == "" {
		return fmt.Errorf("-prompt is required")
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := []quick.Option{
		quick.WithConfig(cfg),
		quick.WithLogger(logger),
	}
	if *useMock {
		opts = append(opts, quick.WithMock(nil))
	}
	engine, err := quick.New(opts...)
	if err != nil {
		return err
	}

	node, err := workflow.NewLLMNode("answer", *prompt)
	if err != nil {
		return err
	}

	wfConfig := quick.DefaultWorkflowConfig(cfg, cfg.LLM.Provider)
	wf, err := workflow.NewWorkflow("cli", []workflow.Node{node}, wfConfig)
	if err != nil {
		return err
	}

	result := engine.Execute(context.Background(), wf, inputs.values, cfg.Workflow.DefaultTimeout)
	if result.Err != nil {
		return result.Err
	}

	fmt.Println(result.Output["answer_output"])
	if result.Metrics.TokenUsageTotal != nil {
		fmt.Fprintf(os.Stderr, "tokens: %d, duration: %s\n",
			result.Metrics.TokenUsageTotal.TotalTokens, result.Metrics.TotalDuration)
	}
	return nil
}

// inputFlags collects repeated -input key=value flags.
type inputFlags struct {
	values map[string]any
}

func (f *inputFlags) String() string {
	pairs := make([]string, 0, len(f.values))
	for k, v := range f.values {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(pairs, ",")
}

func (f *inputFlags) Set(value string) error {
	key, val, found := strings.Cut(value, "=")
	if !found || key == "" {
		return fmt.Errorf("input %q is not in key=value form", value)
	}
	if f.values == nil {
		f.values = map[string]any{}
	}
	f.values[key] = val
	return nil
}
