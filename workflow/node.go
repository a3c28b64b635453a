package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/genflow-ai/genflow/llm"
	"github.com/genflow-ai/genflow/types"
)

// Node is the polymorphic unit of work. Implementations must be immutable
// after construction and safe for concurrent Execute calls.
type Node interface {
	// Name returns the node identifier used in outputs, metrics, and logs.
	Name() string

	// Critical reports whether this node's failure aborts the enclosing
	// scope. Non-critical failures are recorded and execution continues.
	Critical() bool

	// Execute runs the node. It never panics and never returns nil; all
	// failures are expressed as a NodeResult with status NodeFailed.
	Execute(ctx context.Context, nc *NodeContext) *NodeResult
}

// composite is implemented by control-flow nodes so construction-time
// validation can walk the whole tree.
type composite interface {
	children() []Node
}

// baseNode carries the fields shared by all built-in nodes.
type baseNode struct {
	name     string
	critical bool
}

func (b *baseNode) Name() string   { return b.name }
func (b *baseNode) Critical() bool { return b.critical }

// NodeOption configures a built-in node at construction.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	provider string
	critical bool
}

// WithProvider overrides the workflow-level provider for this node.
func WithProvider(name string) NodeOption {
	return func(o *nodeOptions) { o.provider = name }
}

// WithCritical sets the node's critical flag. Nodes are critical by
// default.
func WithCritical(critical bool) NodeOption {
	return func(o *nodeOptions) { o.critical = critical }
}

func applyNodeOptions(opts []NodeOption) nodeOptions {
	o := nodeOptions{critical: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LLMNode renders a prompt template and calls an LLM provider. The
// template supports {key} placeholders substituted from the input data,
// previous outputs, and injected variables; {{ and }} escape literal
// braces.
type LLMNode struct {
	baseNode
	promptTemplate string
	provider       string
}

// NewLLMNode constructs an LLM-call node. The prompt template must be
// non-empty; placeholder variables are resolved at execution time.
func NewLLMNode(name, promptTemplate string, opts ...NodeOption) (*LLMNode, error) {
	if name == "" {
		return nil, types.NewError(types.ErrValidation, "node name cannot be empty")
	}
	if promptTemplate == "" {
		return nil, types.NewErrorf(types.ErrValidation, "llm node %q requires a non-empty prompt template", name)
	}
	o := applyNodeOptions(opts)
	return &LLMNode{
		baseNode:       baseNode{name: name, critical: o.critical},
		promptTemplate: promptTemplate,
		provider:       o.provider,
	}, nil
}

// Execute renders the prompt, resolves the provider, and calls it through
// the retry policy and middleware pipeline. The output carries the
// response text under both "<name>_output" and "llm_response".
func (n *LLMNode) Execute(ctx context.Context, nc *NodeContext) *NodeResult {
	start := time.Now()
	slotID := nc.SlotID
	if slotID == "" {
		slotID = uuid.NewString()
	}

	prompt, err := renderTemplate(n.promptTemplate, nc.varSpace())
	if err != nil {
		return failedResult(slotID, err, time.Since(start))
	}

	rt := nc.runtime
	if rt == nil {
		return failedResult(slotID,
			types.NewErrorf(types.ErrConfiguration, "llm node %q executed outside an engine", n.name),
			time.Since(start))
	}

	providerName := n.provider
	if providerName == "" && nc.Config != nil {
		providerName = nc.Config.Provider
	}
	provider, err := rt.registry.Get(providerName)
	if err != nil {
		return failedResult(slotID, err, time.Since(start))
	}

	req := &llm.Request{
		Prompt: prompt,
	}
	if nc.Config != nil {
		req.Model = nc.Config.Model
		req.Temperature = nc.Config.Temperature
		req.MaxTokens = nc.Config.MaxTokens
	}

	resp, err := rt.callProvider(ctx, provider, req)
	if err != nil {
		return failedResult(slotID,
			types.NewErrorf(types.ErrNodeFailed, "node %q provider call failed", n.name).WithCause(err),
			time.Since(start))
	}

	usage := resp.Usage
	if usage.TotalTokens == 0 && resp.Content != "" {
		// Provider omitted usage; fall back to estimation so cost
		// accounting stays non-zero.
		usage = types.TokenUsage{
			PromptTokens:     llm.EstimateTokens(prompt, req.Model),
			CompletionTokens: llm.EstimateTokens(resp.Content, req.Model),
			Provider:         provider.Name(),
			Model:            resp.Model,
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	output := map[string]any{
		n.name + "_output": resp.Content,
		"llm_response":     resp.Content,
	}
	return completedResult(slotID, output, time.Since(start), &usage)
}

// TransformFunc is a pure mapping over the accumulated variable space.
type TransformFunc func(data map[string]any) (map[string]any, error)

// TransformNode applies a pure transformation to the accumulated context
// data. Panics inside the function are recovered into a failed result.
type TransformNode struct {
	baseNode
	fn TransformFunc
}

// NewTransformNode constructs a transform node.
func NewTransformNode(name string, fn TransformFunc, opts ...NodeOption) (*TransformNode, error) {
	if name == "" {
		return nil, types.NewError(types.ErrValidation, "node name cannot be empty")
	}
	if fn == nil {
		return nil, types.NewErrorf(types.ErrValidation, "transform node %q requires a function", name)
	}
	o := applyNodeOptions(opts)
	return &TransformNode{
		baseNode: baseNode{name: name, critical: o.critical},
		fn:       fn,
	}, nil
}

// Execute applies the transform to the merged variable space.
func (n *TransformNode) Execute(ctx context.Context, nc *NodeContext) (result *NodeResult) {
	start := time.Now()
	slotID := nc.SlotID
	if slotID == "" {
		slotID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			if rt := nc.runtime; rt != nil {
				rt.logger.Error("transform panic recovered",
					zap.String("component", "workflow"),
					zap.String("node", n.name),
					zap.Any("panic", r),
				)
			}
			result = failedResult(slotID,
				types.NewErrorf(types.ErrNodeFailed, "node %q transform panicked: %v", n.name, r),
				time.Since(start))
		}
	}()

	out, err := n.fn(nc.varSpace())
	if err != nil {
		return failedResult(slotID,
			types.NewErrorf(types.ErrNodeFailed, "node %q transform failed", n.name).WithCause(err),
			time.Since(start))
	}
	return completedResult(slotID, out, time.Since(start), nil)
}

// renderTemplate substitutes {key} placeholders from vars. "{{" and "}}"
// escape to literal braces. An unmatched placeholder is an error naming
// the missing variable.
func renderTemplate(template string, vars map[string]any) (string, error) {
	var sb strings.Builder
	sb.Grow(len(template))

	for i := 0; i < len(template); {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			sb.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			sb.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", types.NewErrorf(types.ErrValidation, "unclosed placeholder at offset %d", i)
			}
			key := template[i+1 : i+end]
			value, ok := vars[key]
			if !ok {
				return "", types.NewErrorf(types.ErrNodeFailed, "missing template variable: %q", key)
			}
			sb.WriteString(stringify(value))
			i += end + 1
		case c == '}':
			return "", types.NewErrorf(types.ErrValidation, "unmatched '}' at offset %d", i)
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
