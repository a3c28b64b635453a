// Package expr implements the safe expression evaluator that drives
// workflow control flow. It evaluates user-supplied boolean and
// categorical expressions against a variable map without any arbitrary
// code execution.
//
// Supported grammar:
//
//	comparison   ==  !=  <  >  <=  >=
//	membership   in, not in
//	logical      and, or, not
//	arithmetic   +  -  *  /  %  **
//	literals     strings, numbers, lists, maps, true/false/null
//	functions    len(...)
//	variables    resolved from the supplied map
//
// Function or lambda definitions, assignment, imports, and attribute
// access are rejected at parse time. Evaluation enforces bounds on
// string length and exponent magnitude so a hostile expression cannot
// burn CPU or memory.
//
// Use Validate at workflow-definition time to reject malformed
// expressions before anything executes, and Compile to parse once and
// evaluate many times.
package expr
