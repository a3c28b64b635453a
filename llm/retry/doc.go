// Package retry implements exponential-backoff retry with jitter for
// provider calls. Retryability is decided from error classification:
// rate limits, upstream timeouts, and 5xx-class provider errors retry;
// validation and authentication errors fail fast.
package retry
