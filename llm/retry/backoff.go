package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/genflow-ai/genflow/types"
)

// Policy defines the retry behaviour for provider calls.
type Policy struct {
	MaxAttempts  int           // total attempts including the first (minimum 1)
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the backoff delay
	Multiplier   float64       // exponential growth factor
	Jitter       bool          // randomize delays to avoid thundering herds

	// OnRetry is invoked before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Classify overrides the default retryability decision. Return false
	// to fail fast on err.
	Classify func(err error) bool
}

// DefaultPolicy returns the policy used when none is configured:
// 3 attempts, 1s initial delay doubling up to 60s, with jitter.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Validate checks policy fields for configuration errors.
func (p *Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return types.NewErrorf(types.ErrConfiguration, "max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay <= 0 {
		return types.NewErrorf(types.ErrConfiguration, "initial_delay must be positive, got %s", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return types.NewErrorf(types.ErrConfiguration, "max_delay %s is smaller than initial_delay %s", p.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier < 1.0 {
		return types.NewErrorf(types.ErrConfiguration, "multiplier must be >= 1.0, got %g", p.Multiplier)
	}
	return nil
}

// Retryer executes functions with retries according to a Policy.
type Retryer interface {
	// Do executes fn, retrying on retryable errors.
	Do(ctx context.Context, fn func() error) error

	// DoWithResult executes fn and returns its result, retrying on
	// retryable errors.
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

type backoffRetryer struct {
	policy *Policy
	logger *zap.Logger
}

// NewBackoffRetryer creates an exponential-backoff retryer. A nil policy
// selects DefaultPolicy; invalid fields are clamped to defaults.
func NewBackoffRetryer(policy *Policy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 60 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}

	return &backoffRetryer{policy: policy, logger: logger}
}

func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.calculateDelay(attempt)

			r.logger.Debug("retrying",
				zap.String("component", "retry"),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			select {
			case <-ctx.Done():
				return nil, types.NewError(types.ErrAborted, "retry cancelled").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded",
					zap.String("component", "retry"),
					zap.Int("attempt", attempt),
				)
			}
			return result, nil
		}
		lastErr = err

		if !r.isRetryable(err) {
			r.logger.Debug("error is not retryable",
				zap.String("component", "retry"),
				zap.Error(err),
			)
			return nil, err
		}
	}

	elapsed := time.Since(start)
	r.logger.Warn("retries exhausted",
		zap.String("component", "retry"),
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Duration("elapsed", elapsed),
		zap.Error(lastErr),
	)

	return nil, types.NewErrorf(types.ErrUpstreamError,
		"all %d attempts failed over %s: %v", r.policy.MaxAttempts, elapsed.Round(time.Millisecond), lastErr).
		WithCause(lastErr)
}

// calculateDelay computes initial * multiplier^(attempt-2), capped at
// MaxDelay, with optional ±25% jitter. attempt is 1-based; the first
// retry (attempt 2) waits InitialDelay.
func (r *backoffRetryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-2))

	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

func (r *backoffRetryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if r.policy.Classify != nil {
		return r.policy.Classify(err)
	}
	return DefaultClassify(err)
}

// DefaultClassify decides retryability from the error's classification.
// Rate limits, upstream timeouts, and upstream errors always retry;
// validation, authentication, and invalid-request errors fail fast; other
// classified errors follow their Retryable flag. Unclassified errors are
// treated as transient and retried.
func DefaultClassify(err error) bool {
	if err == nil {
		return false
	}
	switch types.GetErrorCode(err) {
	case types.ErrRateLimited, types.ErrUpstreamTimeout, types.ErrUpstreamError:
		return true
	case types.ErrValidation, types.ErrConfiguration, types.ErrInvalidRequest,
		types.ErrAuthentication, types.ErrExpression, types.ErrAborted:
		return false
	case "":
		return true
	default:
		return types.IsRetryable(err)
	}
}
