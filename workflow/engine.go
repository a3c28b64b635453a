package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/genflow-ai/genflow/llm"
	"github.com/genflow-ai/genflow/llm/retry"
	"github.com/genflow-ai/genflow/observability"
	"github.com/genflow-ai/genflow/types"
)

// runtime bundles the engine collaborators a node needs during execution.
// It travels inside NodeContext so composites and LLM nodes share one
// provider path without package-level state.
type runtime struct {
	registry   *llm.Registry
	logger     *zap.Logger
	retryer    retry.Retryer
	chain      *llm.Chain
	middleware []Middleware
	meta       map[string]any
}

// callProvider runs one provider call through the BeforeCall hooks, the
// functional middleware chain, the retry policy, and the AfterCall hooks.
func (rt *runtime) callProvider(ctx context.Context, provider llm.Provider, req *llm.Request) (*llm.Response, error) {
	for _, mw := range rt.middleware {
		modified, err := rt.safeBeforeCall(ctx, mw, req)
		if err != nil {
			return nil, err
		}
		if modified != nil {
			req = modified
		}
	}

	handler := rt.chain.Then(llm.ProviderHandler(provider))
	resp, err := retry.DoWithResultTyped[*llm.Response](rt.retryer, ctx, func() (*llm.Response, error) {
		return handler(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	for _, mw := range rt.middleware {
		modified := rt.safeAfterCall(ctx, mw, resp)
		if modified != nil {
			resp = modified
		}
	}
	return resp, nil
}

// safeBeforeCall isolates hook failures. Only an ErrAborted error escapes
// (a hook vetoing the call); other errors and panics are logged and
// swallowed.
func (rt *runtime) safeBeforeCall(ctx context.Context, mw Middleware, req *llm.Request) (modified *llm.Request, abort error) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Warn("middleware BeforeCall panic recovered",
				zap.String("component", "engine"),
				zap.Any("panic", r),
			)
			modified, abort = nil, nil
		}
	}()

	modified, err := mw.BeforeCall(ctx, req, rt.meta)
	if err != nil {
		if types.GetErrorCode(err) == types.ErrAborted {
			return nil, err
		}
		rt.logger.Warn("middleware BeforeCall error ignored",
			zap.String("component", "engine"),
			zap.Error(err),
		)
	}
	return modified, nil
}

func (rt *runtime) safeAfterCall(ctx context.Context, mw Middleware, resp *llm.Response) (modified *llm.Response) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Warn("middleware AfterCall panic recovered",
				zap.String("component", "engine"),
				zap.Any("panic", r),
			)
			modified = nil
		}
	}()

	modified, err := mw.AfterCall(ctx, resp, rt.meta)
	if err != nil {
		rt.logger.Warn("middleware AfterCall error ignored",
			zap.String("component", "engine"),
			zap.Error(err),
		)
	}
	return modified
}

// Engine executes workflows. All collaborators are injected at
// construction; the engine holds no global state and is safe for
// concurrent Execute calls.
type Engine struct {
	registry   *llm.Registry
	logger     *zap.Logger
	retryer    retry.Retryer
	chain      *llm.Chain
	middleware []Middleware
	collector  *observability.Collector
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithRetryPolicy sets the retry policy for provider calls.
func WithRetryPolicy(policy *retry.Policy) EngineOption {
	return func(e *Engine) { e.retryer = retry.NewBackoffRetryer(policy, e.logger) }
}

// WithCallChain sets the functional middleware chain applied to every
// provider call (rate limiting, metrics, PII redaction).
func WithCallChain(chain *llm.Chain) EngineOption {
	return func(e *Engine) { e.chain = chain }
}

// WithCollector attaches a Prometheus metrics collector.
func WithCollector(collector *observability.Collector) EngineOption {
	return func(e *Engine) { e.collector = collector }
}

// NewEngine creates an engine around a provider registry.
func NewEngine(registry *llm.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retryer == nil {
		e.retryer = retry.NewBackoffRetryer(retry.DefaultPolicy(), e.logger)
	}
	if e.chain == nil {
		e.chain = llm.NewChain()
	}
	return e
}

// Use registers a middleware, executed in FIFO registration order.
// Returns the engine for chaining: engine.Use(a).Use(b).
func (e *Engine) Use(mw Middleware) *Engine {
	e.middleware = append(e.middleware, mw)
	return e
}

// ExecuteAsync starts the workflow without blocking the caller and
// returns a channel that yields exactly one WorkflowResult. Malformed
// input (injection patterns) is rejected eagerly with an error before
// any node runs. Nodes still execute strictly sequentially.
func (e *Engine) ExecuteAsync(ctx context.Context, wf *Workflow, input map[string]any) (<-chan *WorkflowResult, error) {
	if err := ValidateInput(input); err != nil {
		return nil, err
	}

	results := make(chan *WorkflowResult, 1)
	go func() {
		results <- e.run(ctx, wf, input)
		close(results)
	}()
	return results, nil
}

// Execute runs the workflow synchronously. A positive timeout bounds the
// run; on expiry the in-flight unit of work finishes, already-produced
// output is preserved, and the result status is StatusTimedOut.
func (e *Engine) Execute(ctx context.Context, wf *Workflow, input map[string]any, timeout time.Duration) *WorkflowResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := ValidateInput(input); err != nil {
		now := time.Now().UTC()
		return &WorkflowResult{
			WorkflowID:    wf.ID(),
			CorrelationID: uuid.NewString(),
			Status:        StatusFailed,
			Err:           types.NewError(types.ErrValidation, "input validation failed").WithCause(err),
			Metrics:       newExecutionMetrics(),
			CreatedAt:     now,
			CompletedAt:   now,
		}
	}
	return e.run(ctx, wf, input)
}

// run is the single execution path shared by Execute and ExecuteAsync.
func (e *Engine) run(ctx context.Context, wf *Workflow, input map[string]any) *WorkflowResult {
	createdAt := time.Now().UTC()
	wallStart := time.Now()

	correlationID, ok := types.CorrelationID(ctx)
	if !ok {
		correlationID = uuid.NewString()
	}

	meta := map[string]any{
		"workflow_id":    wf.ID(),
		"workflow_name":  wf.Name(),
		"correlation_id": correlationID,
	}
	rt := &runtime{
		registry:   e.registry,
		logger:     e.logger,
		retryer:    e.retryer,
		chain:      e.chain,
		middleware: e.middleware,
		meta:       meta,
	}

	for _, mw := range e.middleware {
		e.safeLifecycleHook("OnWorkflowStart", func() {
			mw.OnWorkflowStart(ctx, wf.ID(), meta)
		})
	}

	e.logger.Info("workflow started",
		zap.String("component", "engine"),
		zap.String("workflow_id", wf.ID()),
		zap.String("workflow_name", wf.Name()),
		zap.String("correlation_id", correlationID),
		zap.String("status", string(StatusRunning)),
	)

	result := e.executeNodes(ctx, wf, input, correlationID, createdAt, wallStart, rt)

	for _, mw := range e.middleware {
		e.safeLifecycleHook("OnWorkflowEnd", func() {
			mw.OnWorkflowEnd(ctx, result, meta)
		})
	}

	if e.collector != nil {
		e.collector.RecordWorkflowExecution(wf.Name(), string(result.Status), result.Metrics.TotalDuration)
	}

	totalTokens := 0
	if result.Metrics.TokenUsageTotal != nil {
		totalTokens = result.Metrics.TokenUsageTotal.TotalTokens
	}
	e.logger.Info("workflow finished",
		zap.String("component", "engine"),
		zap.String("workflow_id", result.WorkflowID),
		zap.String("correlation_id", result.CorrelationID),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Metrics.TotalDuration),
		zap.Int("total_tokens", totalTokens),
		zap.Int("nodes_completed", result.Metrics.NodesCompleted),
	)

	return result
}

// executeNodes runs all top-level nodes sequentially, accumulating
// outputs, durations, and token usage into the metrics.
func (e *Engine) executeNodes(
	ctx context.Context,
	wf *Workflow,
	input map[string]any,
	correlationID string,
	createdAt time.Time,
	wallStart time.Time,
	rt *runtime,
) *WorkflowResult {
	previousOutputs := map[string]any{}
	metrics := newExecutionMetrics()
	tracker := observability.NewTokenUsageTracker()
	timer := observability.NewNodeTimer()

	terminal := func(status WorkflowStatus, output map[string]any, err error) *WorkflowResult {
		metrics.TotalDuration = time.Since(wallStart)
		metrics.NodeDurations = timer.Durations()
		metrics.TokenUsageTotal = tracker.Total()
		metrics.NodeTokenUsage = tracker.AllNodeUsage()
		if len(output) == 0 {
			output = nil
		}
		return &WorkflowResult{
			WorkflowID:    wf.ID(),
			CorrelationID: correlationID,
			Status:        status,
			Output:        output,
			Err:           err,
			Metrics:       metrics,
			CreatedAt:     createdAt,
			CompletedAt:   time.Now().UTC(),
		}
	}

	for _, node := range wf.Nodes() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			status, err := terminalForContextErr(ctxErr)
			return terminal(status, previousOutputs, err)
		}

		nc := &NodeContext{
			WorkflowID:      wf.ID(),
			SlotID:          uuid.NewString(),
			CorrelationID:   correlationID,
			InputData:       input,
			Variables:       map[string]any{},
			PreviousOutputs: copyMap(previousOutputs),
			Config:          wf.Config(),
			runtime:         rt,
		}

		e.logger.Debug("node started",
			zap.String("component", "engine"),
			zap.String("workflow_id", wf.ID()),
			zap.String("node", node.Name()),
			zap.String("slot_id", nc.SlotID),
		)

		result := e.safeExecute(ctx, node, nc)

		timer.Record(node.Name(), result.Duration)
		if result.TokenUsage != nil {
			tracker.Record(node.Name(), *result.TokenUsage)
		}
		if e.collector != nil {
			e.collector.RecordNodeExecution(wf.Name(), node.Name(), string(result.Status), result.Duration)
		}

		e.logger.Debug("node finished",
			zap.String("component", "engine"),
			zap.String("workflow_id", wf.ID()),
			zap.String("node", node.Name()),
			zap.String("status", string(result.Status)),
			zap.Duration("duration", result.Duration),
		)

		if result.Status == NodeFailed {
			// Cancellation surfacing as a node failure keeps the drain
			// semantics: partial output from the node is preserved and
			// the terminal status reflects the cause.
			if ctxErr := contextCause(result.Err); ctxErr != nil {
				mergeOutput(previousOutputs, result.Output)
				status, err := terminalForContextErr(ctxErr)
				return terminal(status, previousOutputs, err)
			}

			metrics.NodesFailed++
			if node.Critical() {
				nodeErr := types.NewErrorf(types.ErrNodeFailed, "node %q failed", node.Name()).WithCause(result.Err)
				for _, mw := range e.middleware {
					e.safeLifecycleHook("OnNodeError", func() {
						mw.OnNodeError(ctx, nodeErr, node.Name(), rt.meta)
					})
				}
				mergeOutput(previousOutputs, result.Output)
				return terminal(StatusFailed, previousOutputs, nodeErr)
			}
			metrics.NodesSkipped++
			continue
		}

		metrics.NodesCompleted++
		mergeOutput(previousOutputs, result.Output)
	}

	return terminal(StatusCompleted, previousOutputs, nil)
}

// safeExecute shields the engine from a panicking node implementation.
func (e *Engine) safeExecute(ctx context.Context, node Node, nc *NodeContext) (result *NodeResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("node panic recovered",
				zap.String("component", "engine"),
				zap.String("node", node.Name()),
				zap.Any("panic", r),
			)
			result = failedResult(nc.SlotID,
				types.NewErrorf(types.ErrNodeFailed, "node %q panicked: %v", node.Name(), r),
				time.Since(start))
		}
	}()
	return node.Execute(ctx, nc)
}

func (e *Engine) safeLifecycleHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("middleware hook panic recovered",
				zap.String("component", "engine"),
				zap.String("hook", name),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

func mergeOutput(dst map[string]any, output map[string]any) {
	for k, v := range output {
		dst[k] = v
	}
}

// contextCause returns the context error inside err's chain, or nil.
func contextCause(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return context.Canceled
	}
	return nil
}

func terminalForContextErr(ctxErr error) (WorkflowStatus, error) {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return StatusTimedOut, types.NewError(types.ErrAborted, "workflow timed out").WithCause(ctxErr)
	}
	return StatusCancelled, types.NewError(types.ErrAborted, "workflow cancelled").WithCause(ctxErr)
}
