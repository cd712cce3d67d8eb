package acquisition

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ratewatch/internal/domain"
)

func failingClient() *fakePriceClient {
	return &fakePriceClient{
		cryptoErr: errors.New("crypto down"),
		fiatErr:   errors.New("fiat down"),
	}
}

func TestNewScheduler_DefaultsWhenInvalid(t *testing.T) {
	p, _ := newTestPipeline(happyClient())
	s := NewScheduler(p, 0, 0, 0, Hooks{})
	require.Equal(t, defaultRefreshInterval, s.refreshInterval)
	require.Equal(t, defaultRetryDelay, s.retryDelay)
	require.Equal(t, defaultMaxRetries, s.maxRetries)
}

func TestScheduler_StartTwiceReturnsFalse(t *testing.T) {
	p, _ := newTestPipeline(happyClient())
	s := NewScheduler(p, time.Hour, 30*time.Minute, 3, Hooks{})
	t.Cleanup(func() { _ = s.Stop() })

	started, err := s.Start(context.Background())
	require.NoError(t, err)
	require.True(t, started)
	require.NotNil(t, s.sched)

	started, err = s.Start(context.Background())
	require.NoError(t, err)
	require.False(t, started)
	require.Len(t, s.sched.Jobs(), 1)
}

func TestScheduler_StopIdempotent(t *testing.T) {
	p, _ := newTestPipeline(happyClient())
	s := NewScheduler(p, time.Hour, 30*time.Minute, 3, Hooks{})

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Stop())
	require.False(t, s.Running())
	require.NoError(t, s.Stop())
}

func TestScheduler_ContextCancelShutsDown(t *testing.T) {
	p, _ := newTestPipeline(happyClient())
	s := NewScheduler(p, time.Hour, 30*time.Minute, 3, Hooks{})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := s.Start(ctx)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool { return !s.Running() }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_WarmupCyclePopulatesCache(t *testing.T) {
	var successes atomic.Int32
	p, store := newTestPipeline(happyClient())
	s := NewScheduler(p, time.Hour, 30*time.Minute, 3, Hooks{
		OnSuccess: func(CycleResult) { successes.Add(1) },
	})
	t.Cleanup(func() { _ = s.Stop() })

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return store.Status().Ready }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return successes.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.False(t, s.RetryArmed())
}

func TestScheduler_FailedCycleArmsRetry(t *testing.T) {
	var retries atomic.Int32
	p, _ := newTestPipeline(failingClient())
	s := NewScheduler(p, time.Hour, 30*time.Minute, 3, Hooks{
		OnRetryScheduled: func(attempt int, delay time.Duration) { retries.Add(1) },
	})
	t.Cleanup(func() { _ = s.Stop() })

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.RetryArmed() }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), retries.Load())
}

func TestScheduler_GivesUpEarlyRetriesAfterMaxRetries(t *testing.T) {
	p, _ := newTestPipeline(failingClient())
	s := NewScheduler(p, time.Hour, 30*time.Minute, 3, Hooks{})
	t.Cleanup(func() { _ = s.Stop() })

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	// warm-up is failure one
	require.Eventually(t, func() bool { return s.RetryArmed() }, 2*time.Second, 10*time.Millisecond)

	s.runCycle(context.Background()) // failure two, retry re-armed
	require.True(t, s.RetryArmed())

	s.runCycle(context.Background()) // failure three, early retries stop
	require.False(t, s.RetryArmed())

	// the regular cadence is still in place
	require.True(t, s.Running())
	require.NotNil(t, s.sched)
}

func TestScheduler_SuccessResetsFailureCounter(t *testing.T) {
	client := failingClient()
	p, _ := newTestPipeline(client)
	s := NewScheduler(p, time.Hour, 30*time.Minute, 3, Hooks{})
	t.Cleanup(func() { _ = s.Stop() })

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.RetryArmed() }, 2*time.Second, 10*time.Millisecond)

	// feeds recover
	client.cryptoErr = nil
	client.fiatErr = nil
	client.crypto = domain.BulkPrices{Prices: map[string]map[string]float64{"bitcoin": {"usd": 50000}}}
	client.fiat = map[string]float64{"USD": 1}

	s.runCycle(context.Background())

	s.mu.Lock()
	failures := s.failures
	s.mu.Unlock()
	require.Zero(t, failures)
	require.False(t, s.RetryArmed())
}

func TestScheduler_ForceRefreshRunsCycle(t *testing.T) {
	p, store := newTestPipeline(happyClient())
	s := NewScheduler(p, time.Hour, 30*time.Minute, 3, Hooks{})
	t.Cleanup(func() { _ = s.Stop() })

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return store.Status().Ready }, 2*time.Second, 10*time.Millisecond)

	result, err := s.ForceRefresh()
	require.NoError(t, err)
	require.Equal(t, 1, result.CryptoCount)
	require.Equal(t, 2, result.FiatCount)
	require.True(t, s.Running())
}

func TestScheduler_ForceRefreshDisarmsCadenceBeforeRunning(t *testing.T) {
	client := happyClient()
	p, store := newTestPipeline(client)
	s := NewScheduler(p, time.Hour, 30*time.Minute, 3, Hooks{})
	t.Cleanup(func() { _ = s.Stop() })

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return store.Status().Ready }, 2*time.Second, 10*time.Millisecond)

	// Gate the forced cycle so it can be observed mid-flight.
	client.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, forceErr := s.ForceRefresh()
		done <- forceErr
	}()

	require.Eventually(t, func() bool { return p.State() == StateLoading }, 2*time.Second, time.Millisecond)
	require.Empty(t, s.sched.Jobs())

	close(client.block)
	require.NoError(t, <-done)
	require.Len(t, s.sched.Jobs(), 1)
}

func TestScheduler_ForceRefreshAfterStop(t *testing.T) {
	p, _ := newTestPipeline(happyClient())
	s := NewScheduler(p, time.Hour, 30*time.Minute, 3, Hooks{})

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	_, err = s.ForceRefresh()
	require.ErrorIs(t, err, domain.ErrSchedulerStopped)
}
