package engine

import (
	"context"
	"testing"
	"time"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_TimesOutAfterAboutTenPolls(t *testing.T) {
	clock := enginetest.NewClock()
	polls := 0
	w := Waiter{Clock: clock}

	err := w.Wait(context.Background(), "distribution deployment", WaitPolicy{
		PollInterval: 100 * time.Millisecond,
		MaxWait:      time.Second,
	}, func(ctx context.Context) (Status, error) {
		polls++
		return Pending(), nil
	})

	require.Error(t, err)
	assert.True(t, IsClass(err, ClassTimeout))
	assert.Equal(t, 10, polls)
	assert.Contains(t, err.Error(), "1s")

	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, time.Second, ee.Elapsed)
}

func TestWait_Succeeds(t *testing.T) {
	clock := enginetest.NewClock()
	polls := 0
	w := Waiter{Clock: clock}

	err := w.Wait(context.Background(), "certificate issuance", CertificateIssuePolicy, func(ctx context.Context) (Status, error) {
		polls++
		if polls == 3 {
			return Succeeded(), nil
		}
		return Pending(), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, polls)
	assert.Equal(t, 20*time.Second, clock.Slept())
}

func TestWait_TerminalFailure(t *testing.T) {
	w := Waiter{Clock: enginetest.NewClock()}

	err := w.Wait(context.Background(), "certificate issuance", CertificateIssuePolicy, func(ctx context.Context) (Status, error) {
		return Failed("CAA_ERROR"), nil
	})

	require.Error(t, err)
	assert.True(t, IsClass(err, ClassProvider))
	assert.Contains(t, err.Error(), "CAA_ERROR")
}

func TestWait_NeverPollsFasterThanInterval(t *testing.T) {
	clock := enginetest.NewClock()
	var starts []time.Time
	w := Waiter{Clock: clock}

	_ = w.Wait(context.Background(), "dns change", WaitPolicy{
		PollInterval: 5 * time.Second,
		MaxWait:      time.Minute,
	}, func(ctx context.Context) (Status, error) {
		starts = append(starts, clock.Now())
		// provider latency
		clock.Advance(2 * time.Second)
		if len(starts) == 4 {
			return Succeeded(), nil
		}
		return Pending(), nil
	})

	require.Len(t, starts, 4)
	for i := 1; i < len(starts); i++ {
		assert.Equal(t, 5*time.Second, starts[i].Sub(starts[i-1]))
	}
}

func TestWait_RetryableErrorsKeepPolling(t *testing.T) {
	polls := 0
	w := Waiter{Clock: enginetest.NewClock()}

	err := w.Wait(context.Background(), "validation record", ValidationRecordPolicy, func(ctx context.Context) (Status, error) {
		polls++
		if polls < 3 {
			return Status{}, cloud.Retryable("DescribeCertificate", "PriorRequestNotComplete", "still processing")
		}
		return Succeeded(), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, polls)
}

func TestWait_FatalPollError(t *testing.T) {
	w := Waiter{Clock: enginetest.NewClock()}

	err := w.Wait(context.Background(), "dns change", DNSChangePolicy, func(ctx context.Context) (Status, error) {
		return Status{}, cloud.Fatal("GetChange", "NoSuchChange", "gone")
	})

	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "NoSuchChange", ee.Code)
}
