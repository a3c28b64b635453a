package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/genflow-ai/genflow/types"
)

func fastPolicy(maxAttempts int) *Policy {
	return &Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestBackoffRetryer_AttemptsExhausted(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.Contains(t, err.Error(), "persistent error")
	assert.Equal(t, 3, callCount)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestBackoffRetryer_ContextCanceled(t *testing.T) {
	policy := &Policy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	callCount := 0
	err := retryer.Do(ctx, func() error {
		callCount++
		return errors.New("error")
	})

	assert.Error(t, err)
	assert.Equal(t, types.ErrAborted, types.GetErrorCode(err))
	assert.GreaterOrEqual(t, callCount, 1)
}

func TestBackoffRetryer_Classification(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(4), zap.NewNop())
	ctx := context.Background()

	t.Run("rate limited retries", func(t *testing.T) {
		callCount := 0
		err := retryer.Do(ctx, func() error {
			callCount++
			if callCount < 3 {
				return types.NewError(types.ErrRateLimited, "429 from upstream")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, callCount)
	})

	t.Run("authentication fails fast", func(t *testing.T) {
		callCount := 0
		err := retryer.Do(ctx, func() error {
			callCount++
			return types.NewError(types.ErrAuthentication, "invalid api key")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, callCount)
	})

	t.Run("invalid request fails fast", func(t *testing.T) {
		callCount := 0
		err := retryer.Do(ctx, func() error {
			callCount++
			return types.NewError(types.ErrInvalidRequest, "temperature out of range")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, callCount)
	})

	t.Run("retryable flag honored", func(t *testing.T) {
		callCount := 0
		err := retryer.Do(ctx, func() error {
			callCount++
			return types.NewError(types.ErrProviderError, "bad gateway").WithRetryable(false)
		})
		assert.Error(t, err)
		assert.Equal(t, 1, callCount)
	})
}

func TestBackoffRetryer_CustomClassify(t *testing.T) {
	policy := fastPolicy(3)
	policy.Classify = func(err error) bool { return false }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return errors.New("any error")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_DelayCalculation(t *testing.T) {
	policy := &Policy{
		MaxAttempts:  6,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop()).(*backoffRetryer)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{2, 100 * time.Millisecond},
		{3, 200 * time.Millisecond},
		{4, 400 * time.Millisecond},
		{5, 800 * time.Millisecond},
		{6, 1 * time.Second}, // capped at MaxDelay
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, retryer.calculateDelay(tt.attempt))
	}
}

func TestBackoffRetryer_JitterBounds(t *testing.T) {
	policy := &Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop()).(*backoffRetryer)

	for i := 0; i < 50; i++ {
		delay := retryer.calculateDelay(2)
		assert.GreaterOrEqual(t, delay, 75*time.Millisecond)
		assert.LessOrEqual(t, delay, 125*time.Millisecond)
	}
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	callbackCount := 0
	var lastAttempt int
	var lastErr error
	var lastDelay time.Duration

	policy := fastPolicy(3)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		callbackCount++
		lastAttempt = attempt
		lastErr = err
		lastDelay = delay
	}

	retryer := NewBackoffRetryer(policy, zap.NewNop())

	testErr := errors.New("test error")
	callCount := 0
	_ = retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return testErr
		}
		return nil
	})

	assert.Equal(t, 2, callbackCount)
	assert.Equal(t, 3, lastAttempt)
	assert.Equal(t, testErr, lastErr)
	assert.Greater(t, lastDelay, time.Duration(0))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	bad := &Policy{MaxAttempts: 0, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}
	assert.Error(t, bad.Validate())

	bad = &Policy{MaxAttempts: 3, InitialDelay: time.Minute, MaxDelay: time.Second, Multiplier: 2}
	assert.Error(t, bad.Validate())

	bad = &Policy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 0.5}
	assert.Error(t, bad.Validate())
}

// ---------------------------------------------------------------------------
// DoWithResultTyped (generic wrapper)
// ---------------------------------------------------------------------------

func TestDoWithResultTyped_Success(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	val, err := DoWithResultTyped[int](r, context.Background(), func() (int, error) {
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestDoWithResultTyped_Error(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(1), zap.NewNop())

	val, err := DoWithResultTyped[int](r, context.Background(), func() (int, error) {
		return 0, errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, val)
}

func TestDoWithResultTyped_RetryThenSuccess(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	val, err := DoWithResultTyped[string](r, context.Background(), func() (string, error) {
		callCount++
		if callCount < 3 {
			return "", errors.New("not yet")
		}
		return "done", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "done", val)
	assert.Equal(t, 3, callCount)
}
