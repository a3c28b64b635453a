// Package llm defines the provider abstraction used by workflow nodes to
// call language models, along with a thread-safe provider registry, a
// functional middleware chain, PII detection, and token estimation.
//
// A Provider turns a Request into a Response. Cross-cutting concerns
// (logging, rate limiting, metrics, redaction) are layered on top with
// Middleware rather than baked into providers.
package llm
