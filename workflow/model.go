package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/genflow-ai/genflow/types"
)

// WorkflowStatus is the lifecycle state of a workflow execution.
//
// Transitions:
//
//	Pending → Running → Completed
//	                  → Failed
//	                  → Cancelled
//	                  → TimedOut
type WorkflowStatus string

const (
	StatusPending   WorkflowStatus = "pending"
	StatusRunning   WorkflowStatus = "running"
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
	StatusCancelled WorkflowStatus = "cancelled"
	StatusTimedOut  WorkflowStatus = "timeout"
)

// IsTerminal reports whether the status is final.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// NodeStatus is the terminal state of a single node execution.
type NodeStatus string

const (
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// NodeContext is the per-execution-slot value passed to each node. A fresh
// SlotID is assigned per invocation, including each loop iteration, so a
// failure can always be attributed to one specific execution slot.
type NodeContext struct {
	WorkflowID    string
	SlotID        string
	CorrelationID string

	// InputData is the workflow input, shared read-only by all nodes.
	InputData map[string]any

	// Variables holds values injected by enclosing composites, e.g. the
	// loop variable of a foreach node. They shadow input and outputs in
	// template and expression resolution.
	Variables map[string]any

	// PreviousOutputs accumulates outputs of prior nodes, keyed by the
	// keys each node emitted.
	PreviousOutputs map[string]any

	Config *WorkflowConfig

	runtime *runtime
}

// fork derives a child context with a fresh slot ID. PreviousOutputs and
// Variables are copied so sibling scopes never share accumulator state;
// InputData stays shared because it is immutable.
func (nc *NodeContext) fork() *NodeContext {
	child := &NodeContext{
		WorkflowID:      nc.WorkflowID,
		SlotID:          uuid.NewString(),
		CorrelationID:   nc.CorrelationID,
		InputData:       nc.InputData,
		Variables:       copyMap(nc.Variables),
		PreviousOutputs: copyMap(nc.PreviousOutputs),
		Config:          nc.Config,
		runtime:         nc.runtime,
	}
	return child
}

// varSpace merges input data, previous outputs, and injected variables
// into the resolution space used for templates and expressions. Injected
// variables take precedence, then outputs, then input.
func (nc *NodeContext) varSpace() map[string]any {
	merged := make(map[string]any, len(nc.InputData)+len(nc.PreviousOutputs)+len(nc.Variables))
	for k, v := range nc.InputData {
		merged[k] = v
	}
	for k, v := range nc.PreviousOutputs {
		merged[k] = v
	}
	for k, v := range nc.Variables {
		merged[k] = v
	}
	return merged
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// NodeResult is the outcome of one node execution slot.
type NodeResult struct {
	SlotID     string
	Status     NodeStatus
	Output     map[string]any
	Err        error
	Duration   time.Duration
	TokenUsage *types.TokenUsage
}

func completedResult(slotID string, output map[string]any, duration time.Duration, usage *types.TokenUsage) *NodeResult {
	return &NodeResult{
		SlotID:     slotID,
		Status:     NodeCompleted,
		Output:     output,
		Duration:   duration,
		TokenUsage: usage,
	}
}

func failedResult(slotID string, err error, duration time.Duration) *NodeResult {
	return &NodeResult{
		SlotID:   slotID,
		Status:   NodeFailed,
		Err:      err,
		Duration: duration,
	}
}

// WorkflowConfig holds per-workflow settings, range-validated at
// construction. MaxIterations and MaxNestingDepth bound resource and cost
// exposure from runaway loop or nesting definitions.
type WorkflowConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	MaxIterations   int `yaml:"max_iterations"`
	MaxNestingDepth int `yaml:"max_nesting_depth"`
}

// DefaultWorkflowConfig returns the baseline configuration.
func DefaultWorkflowConfig() *WorkflowConfig {
	return &WorkflowConfig{
		Provider:        "openai",
		Model:           "gpt-4o-mini",
		Temperature:     0.7,
		MaxTokens:       1024,
		MaxIterations:   100,
		MaxNestingDepth: 5,
	}
}

// Validate checks all fields against their allowed ranges.
func (c *WorkflowConfig) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return types.NewErrorf(types.ErrValidation, "temperature %.2f out of range [0, 2]", c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 128000 {
		return types.NewErrorf(types.ErrValidation, "max_tokens %d out of range [1, 128000]", c.MaxTokens)
	}
	if c.MaxIterations < 1 || c.MaxIterations > 10000 {
		return types.NewErrorf(types.ErrValidation, "max_iterations %d out of range [1, 10000]", c.MaxIterations)
	}
	if c.MaxNestingDepth < 1 || c.MaxNestingDepth > 20 {
		return types.NewErrorf(types.ErrValidation, "max_nesting_depth %d out of range [1, 20]", c.MaxNestingDepth)
	}
	return nil
}

// ExecutionMetrics aggregates observability data for one workflow run.
// It is populated even when the run fails.
type ExecutionMetrics struct {
	TotalDuration   time.Duration
	NodeDurations   map[string]time.Duration
	TokenUsageTotal *types.TokenUsage
	NodeTokenUsage  map[string]types.TokenUsage
	NodesCompleted  int
	NodesFailed     int
	NodesSkipped    int
}

func newExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{
		NodeDurations:  make(map[string]time.Duration),
		NodeTokenUsage: make(map[string]types.TokenUsage),
	}
}

// WorkflowResult is the terminal value returned to the caller.
type WorkflowResult struct {
	WorkflowID    string
	CorrelationID string
	Status        WorkflowStatus
	Output        map[string]any
	Err           error
	Metrics       *ExecutionMetrics
	CreatedAt     time.Time
	CompletedAt   time.Time
}

// Workflow is an immutable ordered sequence of top-level nodes. Safe to
// reuse concurrently across independent Execute calls.
type Workflow struct {
	id     string
	name   string
	nodes  []Node
	config *WorkflowConfig
}

// NewWorkflow validates and constructs a workflow definition. Node names
// must be non-empty and unique across the whole tree (including composite
// children), and control-flow nesting must not exceed the configured
// depth. A nil config selects DefaultWorkflowConfig.
func NewWorkflow(name string, nodes []Node, config *WorkflowConfig) (*Workflow, error) {
	if len(nodes) == 0 {
		return nil, types.NewError(types.ErrValidation, "workflow must have at least one node")
	}
	if config == nil {
		config = DefaultWorkflowConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := validateTree(nodes, config.MaxNestingDepth); err != nil {
		return nil, err
	}

	cfg := *config
	return &Workflow{
		id:     uuid.NewString(),
		name:   name,
		nodes:  nodes,
		config: &cfg,
	}, nil
}

// ID returns the definition's unique identifier.
func (w *Workflow) ID() string { return w.id }

// Name returns the human-readable workflow name.
func (w *Workflow) Name() string { return w.name }

// Nodes returns the top-level node sequence.
func (w *Workflow) Nodes() []Node { return w.nodes }

// Config returns the workflow configuration.
func (w *Workflow) Config() *WorkflowConfig { return w.config }
