package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/picklr-io/shipyard/internal/cloud"
)

// Wait policies for each kind of asynchronous provider operation.
var (
	DNSChangePolicy        = WaitPolicy{PollInterval: 5 * time.Second, MaxWait: 3 * time.Minute}
	CertificateIssuePolicy = WaitPolicy{PollInterval: 10 * time.Second, MaxWait: time.Hour}
	ValidationRecordPolicy = WaitPolicy{PollInterval: 5 * time.Second, MaxWait: time.Minute}
	DistributionPolicy     = WaitPolicy{PollInterval: 30 * time.Second, MaxWait: time.Hour}
	InvalidationPolicy     = WaitPolicy{PollInterval: 10 * time.Second, MaxWait: 10 * time.Minute}
	FunctionSettlePolicy   = WaitPolicy{PollInterval: 2 * time.Second, MaxWait: 5 * time.Minute}
	BucketAvailablePolicy  = WaitPolicy{PollInterval: 5 * time.Second, MaxWait: 2 * time.Minute}
)

// WaitPolicy bounds how an asynchronous operation is polled.
type WaitPolicy struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

// OpState is the state reported by one poll.
type OpState int

const (
	OpPending OpState = iota
	OpSucceeded
	OpFailed
)

// Status is the result of one poll. Detail carries the provider's reason
// when the operation failed.
type Status struct {
	State  OpState
	Detail string
}

// Pending, Succeeded and Failed build poll results.
func Pending() Status { return Status{State: OpPending} }

func Succeeded() Status { return Status{State: OpSucceeded} }

func Failed(detail string) Status { return Status{State: OpFailed, Detail: detail} }

// Operation polls a pending remote operation once.
type Operation func(ctx context.Context) (Status, error)

// Waiter blocks until pending operations settle.
type Waiter struct {
	Clock Clock
}

// Wait polls op every policy.PollInterval until it succeeds, fails, or
// policy.MaxWait elapses. Polls start at least PollInterval apart even when
// the provider is slow to answer. Retryable poll errors are treated as
// still pending; any other poll error is returned.
func (w Waiter) Wait(ctx context.Context, name string, policy WaitPolicy, op Operation) error {
	clock := w.Clock
	if clock == nil {
		clock = RealClock{}
	}

	begin := clock.Now()
	for {
		pollStart := clock.Now()
		st, err := op(ctx)
		switch {
		case err != nil && !cloud.IsRetryable(err):
			return ProviderError(fmt.Sprintf("poll %s", name), err)
		case err != nil:
			// still pending
		case st.State == OpSucceeded:
			return nil
		case st.State == OpFailed:
			return &EngineError{
				Class:     ClassProvider,
				Message:   fmt.Sprintf("%s failed: %s", name, st.Detail),
				Operation: name,
			}
		}

		if rest := policy.PollInterval - clock.Now().Sub(pollStart); rest > 0 {
			if err := clock.Sleep(ctx, rest); err != nil {
				return fmt.Errorf("wait for %s cancelled: %w", name, err)
			}
		}

		if elapsed := clock.Now().Sub(begin); elapsed >= policy.MaxWait {
			return TimeoutError(name, elapsed)
		}
	}
}
