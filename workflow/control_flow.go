package workflow

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/genflow-ai/genflow/expr"
	"github.com/genflow-ai/genflow/types"
)

// ConditionalNode evaluates a boolean expression and runs either its true
// branch or its false branch.
type ConditionalNode struct {
	baseNode
	condition  *expr.Expr
	trueNodes  []Node
	falseNodes []Node
}

// NewConditionalNode validates the condition syntax and branch structure
// at definition time. The false branch may be empty (no-op on false);
// the true branch must not be.
func NewConditionalNode(name, condition string, trueNodes, falseNodes []Node, opts ...NodeOption) (*ConditionalNode, error) {
	if name == "" {
		return nil, types.NewError(types.ErrValidation, "node name cannot be empty")
	}
	compiled, err := expr.Compile(condition)
	if err != nil {
		return nil, types.NewErrorf(types.ErrValidation, "conditional node %q: invalid condition", name).WithCause(err)
	}
	if len(trueNodes) == 0 {
		return nil, types.NewErrorf(types.ErrValidation, "conditional node %q must have at least one true-branch node", name)
	}
	o := applyNodeOptions(opts)
	return &ConditionalNode{
		baseNode:   baseNode{name: name, critical: o.critical},
		condition:  compiled,
		trueNodes:  trueNodes,
		falseNodes: falseNodes,
	}, nil
}

func (n *ConditionalNode) children() []Node {
	return append(append([]Node{}, n.trueNodes...), n.falseNodes...)
}

// Execute evaluates the condition against the variable space and runs
// exactly one branch. An empty false branch on a false condition yields
// an empty successful output.
func (n *ConditionalNode) Execute(ctx context.Context, nc *NodeContext) *NodeResult {
	start := time.Now()

	value, err := n.condition.Eval(nc.varSpace())
	if err != nil {
		return failedResult(nc.SlotID,
			types.NewErrorf(types.ErrExpression, "conditional node %q: condition evaluation failed", n.name).WithCause(err),
			time.Since(start))
	}

	branch := "false"
	selected := n.falseNodes
	if expr.Truthy(value) {
		branch = "true"
		selected = n.trueNodes
	}

	if rt := nc.runtime; rt != nil {
		rt.logger.Info("control flow decision",
			zap.String("component", "workflow"),
			zap.String("construct", n.name),
			zap.String("construct_type", "conditional"),
			zap.String("branch", branch),
			zap.String("correlation_id", nc.CorrelationID),
		)
	}

	output, usage, err := runSequence(ctx, nc, selected)
	duration := time.Since(start)
	if err != nil {
		return &NodeResult{
			SlotID:     nc.SlotID,
			Status:     NodeFailed,
			Output:     output,
			Err:        err,
			Duration:   duration,
			TokenUsage: usage,
		}
	}
	return completedResult(nc.SlotID, output, duration, usage)
}

// ForEachNode iterates over a list resolved from the variable space,
// running its loop body once per item with the loop variable injected.
// Per-iteration outputs are appended, in input order, to a result list
// stored under the output variable.
type ForEachNode struct {
	baseNode
	itemsVar      string
	loopVar       string
	loopNodes     []Node
	outputVar     string
	maxIterations int // 0 means use the workflow-level default
}

// ForEachOption configures a ForEachNode beyond the common node options.
type ForEachOption func(*ForEachNode)

// WithMaxIterations overrides the workflow-level iteration limit for this
// node.
func WithMaxIterations(n int) ForEachOption {
	return func(f *ForEachNode) { f.maxIterations = n }
}

// NewForEachNode validates identifiers and loop body at definition time.
func NewForEachNode(name, itemsVar, loopVar string, loopNodes []Node, outputVar string, opts []NodeOption, forOpts ...ForEachOption) (*ForEachNode, error) {
	if name == "" {
		return nil, types.NewError(types.ErrValidation, "node name cannot be empty")
	}
	if itemsVar == "" || loopVar == "" || outputVar == "" {
		return nil, types.NewErrorf(types.ErrValidation,
			"foreach node %q requires non-empty items, loop, and output variable names", name)
	}
	if len(loopNodes) == 0 {
		return nil, types.NewErrorf(types.ErrValidation, "foreach node %q must have at least one loop node", name)
	}
	o := applyNodeOptions(opts)
	f := &ForEachNode{
		baseNode:  baseNode{name: name, critical: o.critical},
		itemsVar:  itemsVar,
		loopVar:   loopVar,
		loopNodes: loopNodes,
		outputVar: outputVar,
	}
	for _, opt := range forOpts {
		opt(f)
	}
	if f.maxIterations < 0 {
		return nil, types.NewErrorf(types.ErrValidation, "foreach node %q: max iterations must be non-negative", name)
	}
	return f, nil
}

func (n *ForEachNode) children() []Node { return n.loopNodes }

// Execute resolves the items list and runs the loop body sequentially.
// A critical failure at iteration k preserves the k-1 already-collected
// results in the output. An empty list succeeds with an empty result
// list and no loop-body execution.
func (n *ForEachNode) Execute(ctx context.Context, nc *NodeContext) *NodeResult {
	start := time.Now()

	raw, ok := nc.varSpace()[n.itemsVar]
	if !ok {
		available := availableNames(nc.varSpace())
		return failedResult(nc.SlotID,
			types.NewErrorf(types.ErrExpression,
				"foreach node %q: items variable %q not found in context (available: %s)",
				n.name, n.itemsVar, available),
			time.Since(start))
	}
	items, err := asList(raw)
	if err != nil {
		return failedResult(nc.SlotID,
			types.NewErrorf(types.ErrNodeFailed, "foreach node %q: items variable %q is not a list", n.name, n.itemsVar).WithCause(err),
			time.Since(start))
	}

	limit := n.maxIterations
	if limit == 0 {
		limit = 100
		if nc.Config != nil && nc.Config.MaxIterations > 0 {
			limit = nc.Config.MaxIterations
		}
	}
	if len(items) > limit {
		return failedResult(nc.SlotID,
			types.NewErrorf(types.ErrLimitExceeded,
				"foreach node %q: %d items exceed the max iterations limit of %d; raise max_iterations or reduce the input",
				n.name, len(items), limit),
			time.Since(start))
	}

	if rt := nc.runtime; rt != nil {
		rt.logger.Info("control flow decision",
			zap.String("component", "workflow"),
			zap.String("construct", n.name),
			zap.String("construct_type", "foreach"),
			zap.Int("iterations", len(items)),
			zap.String("correlation_id", nc.CorrelationID),
		)
	}

	results := make([]any, 0, len(items))
	var totalUsage *types.TokenUsage

	for i, item := range items {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &NodeResult{
				SlotID:     nc.SlotID,
				Status:     NodeFailed,
				Output:     map[string]any{n.outputVar: results},
				Err:        ctxErr,
				Duration:   time.Since(start),
				TokenUsage: totalUsage,
			}
		}

		iterCtx := nc.fork()
		iterCtx.Variables[n.loopVar] = item

		output, usage, err := runSequence(ctx, iterCtx, n.loopNodes)
		totalUsage = addUsage(totalUsage, usage)
		if err != nil {
			return &NodeResult{
				SlotID: nc.SlotID,
				Status: NodeFailed,
				Output: map[string]any{n.outputVar: results},
				Err: types.NewErrorf(types.ErrNodeFailed,
					"foreach node %q: iteration %d failed", n.name, i+1).WithCause(err),
				Duration:   time.Since(start),
				TokenUsage: totalUsage,
			}
		}
		results = append(results, collapseIterationOutput(output))
	}

	return completedResult(nc.SlotID, map[string]any{n.outputVar: results}, time.Since(start), totalUsage)
}

// collapseIterationOutput unwraps single-key iteration outputs to their
// bare value so a one-node loop body over [1, 2, 3] yields [v1, v2, v3]
// rather than a list of one-entry maps. Multi-key outputs keep map form.
func collapseIterationOutput(output map[string]any) any {
	if len(output) == 1 {
		for _, v := range output {
			return v
		}
	}
	return output
}

// SwitchNode evaluates an expression, converts the result to its string
// form, and dispatches to the matching case branch.
type SwitchNode struct {
	baseNode
	switchOn     *expr.Expr
	cases        map[string][]Node
	defaultNodes []Node
}

// NewSwitchNode validates the dispatch expression and case structure at
// definition time. At least one case is required and no case may be
// empty; the default branch is optional.
func NewSwitchNode(name, switchOn string, cases map[string][]Node, defaultNodes []Node, opts ...NodeOption) (*SwitchNode, error) {
	if name == "" {
		return nil, types.NewError(types.ErrValidation, "node name cannot be empty")
	}
	compiled, err := expr.Compile(switchOn)
	if err != nil {
		return nil, types.NewErrorf(types.ErrValidation, "switch node %q: invalid dispatch expression", name).WithCause(err)
	}
	if len(cases) == 0 {
		return nil, types.NewErrorf(types.ErrValidation, "switch node %q must have at least one case", name)
	}
	for value, nodes := range cases {
		if len(nodes) == 0 {
			return nil, types.NewErrorf(types.ErrValidation, "switch node %q: case %q has no nodes", name, value)
		}
	}
	o := applyNodeOptions(opts)
	return &SwitchNode{
		baseNode:     baseNode{name: name, critical: o.critical},
		switchOn:     compiled,
		cases:        cases,
		defaultNodes: defaultNodes,
	}, nil
}

func (n *SwitchNode) children() []Node {
	var all []Node
	keys := make([]string, 0, len(n.cases))
	for k := range n.cases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		all = append(all, n.cases[k]...)
	}
	return append(all, n.defaultNodes...)
}

// Execute evaluates the dispatch expression and runs exactly one branch.
// An unmatched value with no default branch fails, naming the value.
func (n *SwitchNode) Execute(ctx context.Context, nc *NodeContext) *NodeResult {
	start := time.Now()

	value, err := n.switchOn.Eval(nc.varSpace())
	if err != nil {
		return failedResult(nc.SlotID,
			types.NewErrorf(types.ErrExpression, "switch node %q: dispatch evaluation failed", n.name).WithCause(err),
			time.Since(start))
	}

	key := expr.FormatValue(value)
	selected, matched := n.cases[key]
	caseName := key
	if !matched {
		if n.defaultNodes == nil {
			return failedResult(nc.SlotID,
				types.NewErrorf(types.ErrNodeFailed,
					"switch node %q: no case matches value %q and no default branch is defined", n.name, key),
				time.Since(start))
		}
		selected = n.defaultNodes
		caseName = "default"
	}

	if rt := nc.runtime; rt != nil {
		rt.logger.Info("control flow decision",
			zap.String("component", "workflow"),
			zap.String("construct", n.name),
			zap.String("construct_type", "switch"),
			zap.String("case", caseName),
			zap.String("correlation_id", nc.CorrelationID),
		)
	}

	output, usage, err := runSequence(ctx, nc, selected)
	duration := time.Since(start)
	if err != nil {
		return &NodeResult{
			SlotID:     nc.SlotID,
			Status:     NodeFailed,
			Output:     output,
			Err:        err,
			Duration:   duration,
			TokenUsage: usage,
		}
	}
	return completedResult(nc.SlotID, output, duration, usage)
}

// runSequence executes nodes in order under a shared parent context,
// accumulating outputs and token usage. Each node runs in a fresh slot.
// A critical failure stops the sequence with the partial output retained;
// a non-critical failure is logged and skipped. Context cancellation is
// checked between nodes, never mid-node.
func runSequence(ctx context.Context, nc *NodeContext, nodes []Node) (map[string]any, *types.TokenUsage, error) {
	accumulated := map[string]any{}
	var totalUsage *types.TokenUsage

	for _, node := range nodes {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return accumulated, totalUsage, ctxErr
		}

		childCtx := nc.fork()
		result := node.Execute(ctx, childCtx)
		totalUsage = addUsage(totalUsage, result.TokenUsage)

		if result.Status == NodeFailed {
			if node.Critical() {
				return accumulated, totalUsage, types.NewErrorf(types.ErrNodeFailed,
					"critical child node %q failed", node.Name()).WithCause(result.Err)
			}
			if rt := nc.runtime; rt != nil {
				rt.logger.Warn("non-critical child node failed, continuing",
					zap.String("component", "workflow"),
					zap.String("node", node.Name()),
					zap.Error(result.Err),
				)
			}
			continue
		}

		for k, v := range result.Output {
			accumulated[k] = v
			nc.PreviousOutputs[k] = v
		}
	}
	return accumulated, totalUsage, nil
}

func addUsage(total, delta *types.TokenUsage) *types.TokenUsage {
	if delta == nil {
		return total
	}
	if total == nil {
		u := *delta
		return &u
	}
	total.Add(*delta)
	return total
}

func asList(v any) ([]any, error) {
	switch items := v.(type) {
	case []any:
		return items, nil
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(items))
		for i, n := range items {
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]any, len(items))
		for i, f := range items {
			out[i] = f
		}
		return out, nil
	default:
		return nil, types.NewErrorf(types.ErrNodeFailed, "expected a list, got %T", v)
	}
}

func availableNames(vars map[string]any) string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
