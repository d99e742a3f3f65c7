package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/picklr-io/shipyard/internal/cloud"
)

// DefaultTimeout bounds a whole deployment invocation.
const DefaultTimeout = 2 * time.Hour

// RetryPolicy defines how eventually-consistent provider errors are retried.
// The delay between attempts is fixed.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy allows ten attempts three seconds apart, long enough for
// a freshly created role to become assumable.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 10,
		Delay:       3 * time.Second,
	}
}

// WithTimeout wraps a context with a deployment timeout.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Retry runs fn until it succeeds, returns an error shouldRetry rejects, or
// the attempts run out. Exhausting the attempts yields a transient-class
// error wrapping the last failure.
func Retry(ctx context.Context, clock Clock, policy RetryPolicy, operation string, fn func() error, shouldRetry func(error) bool) error {
	if clock == nil {
		clock = RealClock{}
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt < policy.MaxAttempts {
			if err := clock.Sleep(ctx, policy.Delay); err != nil {
				return fmt.Errorf("retry cancelled: %w", err)
			}
		}
	}

	return &EngineError{
		Class:     ClassTransient,
		Message:   fmt.Sprintf("%s still failing after %d attempts", operation, policy.MaxAttempts),
		Code:      cloud.CodeOf(lastErr),
		Operation: operation,
		Err:       lastErr,
	}
}

// IsEventuallyConsistent reports whether err is a provider error classified
// as retryable replication lag.
func IsEventuallyConsistent(err error) bool {
	return cloud.IsRetryable(err)
}
