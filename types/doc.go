// Package types provides the unified type definitions shared across the
// genflow framework: the structured error taxonomy, token usage accounting,
// and context.Context helpers for execution-scoped identifiers.
//
// All framework packages depend on types; types depends on nothing but the
// standard library. This keeps the error and usage vocabulary in one place
// and avoids import cycles between the engine, provider, and observability
// layers.
package types
