// Package workflow implements the multi-step execution engine: the Node
// abstraction, built-in LLM and transform nodes, control-flow composites
// (conditional, foreach, switch), and the Engine that runs a workflow with
// sync/async execution, timeout, cancellation, retry, and metrics.
//
// A Workflow is an immutable ordered node sequence. Execution threads a
// NodeContext through the nodes; each node sees the input data plus the
// accumulated outputs of all prior nodes and contributes its own output.
// Critical node failures abort the run with partial output and metrics
// preserved; non-critical failures are recorded and skipped.
package workflow
