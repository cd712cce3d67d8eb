package acquisition

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ratewatch/internal/domain"
)

const (
	defaultRefreshInterval = 15 * time.Minute
	defaultRetryDelay      = 5 * time.Minute
	defaultMaxRetries      = 3
)

// Hooks are the scheduler's lifecycle callbacks for external observers. Nil
// fields are skipped.
type Hooks struct {
	OnStart          func()
	OnSuccess        func(CycleResult)
	OnError          func(error)
	OnRetryScheduled func(attempt int, delay time.Duration)
}

// Scheduler keeps the cache warm: a regular refresh cadence plus a faster,
// bounded retry cadence after failures. Stop cancels both timers and aborts
// the in-flight cycle, so no write can land after Stop returns.
type Scheduler struct {
	pipeline        *Pipeline
	refreshInterval time.Duration
	retryDelay      time.Duration
	maxRetries      int
	hooks           Hooks

	mu         sync.Mutex
	running    bool
	failures   int
	sched      gocron.Scheduler
	refreshJob uuid.UUID
	retryTimer *time.Timer
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewScheduler(pipeline *Pipeline, refreshInterval, retryDelay time.Duration, maxRetries int, hooks Hooks) *Scheduler {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Scheduler{
		pipeline:        pipeline,
		refreshInterval: refreshInterval,
		retryDelay:      retryDelay,
		maxRetries:      maxRetries,
		hooks:           hooks,
	}
}

// Start arms the refresh cadence and runs one cycle immediately to warm the
// cache. Returns false without side effects when already running.
func (s *Scheduler) Start(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false, nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		s.mu.Unlock()
		return false, err
	}

	cycleCtx, cancel := context.WithCancel(ctx)
	job, err := sched.NewJob(
		gocron.DurationJob(s.refreshInterval),
		gocron.NewTask(func() { s.runCycle(cycleCtx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		s.mu.Unlock()
		return false, err
	}
	sched.Start()

	s.sched = sched
	s.refreshJob = job.ID()
	s.ctx = cycleCtx
	s.cancel = cancel
	s.running = true
	s.failures = 0
	s.mu.Unlock()

	// Stop the scheduler when the provided context is canceled.
	go func() {
		<-ctx.Done()
		if stopErr := s.Stop(); stopErr != nil {
			logrus.Errorf("Scheduler shutdown error: %v", stopErr)
		}
	}()

	if s.hooks.OnStart != nil {
		s.hooks.OnStart()
	}

	// Initial warm-up outside the cadence.
	go s.runCycle(cycleCtx)
	return true, nil
}

// Stop cancels both timers and the in-flight cycle. Idempotent.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.cancel()
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()

	return sched.Shutdown()
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RetryArmed reports whether a failure retry is currently pending.
func (s *Scheduler) RetryArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryTimer != nil
}

// ForceRefresh cancels both pending timers, runs one cycle right away and
// re-arms the refresh cadence regardless of the outcome.
func (s *Scheduler) ForceRefresh() (CycleResult, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return CycleResult{}, domain.ErrSchedulerStopped
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.refreshJob != uuid.Nil {
		if err := s.sched.RemoveJob(s.refreshJob); err != nil {
			logrus.WithError(err).Warn("Failed to disarm refresh job before forced cycle")
		}
		s.refreshJob = uuid.Nil
	}
	ctx := s.ctx
	s.mu.Unlock()

	result, err := s.pipeline.Run(ctx)
	if err == nil {
		s.mu.Lock()
		s.failures = 0
		s.mu.Unlock()
		if s.hooks.OnSuccess != nil {
			s.hooks.OnSuccess(result)
		}
	} else if !errors.Is(err, domain.ErrRefreshInFlight) && s.hooks.OnError != nil {
		s.hooks.OnError(err)
	}

	s.rearmRefresh()
	return result, err
}

// runCycle executes one cycle on behalf of the cadence or the retry timer,
// counting consecutive failures and scheduling at most maxRetries-1 early
// retries between regular ticks.
func (s *Scheduler) runCycle(ctx context.Context) {
	result, err := s.pipeline.Run(ctx)
	if err == nil {
		s.mu.Lock()
		s.failures = 0
		if s.retryTimer != nil {
			s.retryTimer.Stop()
			s.retryTimer = nil
		}
		s.mu.Unlock()
		if s.hooks.OnSuccess != nil {
			s.hooks.OnSuccess(result)
		}
		return
	}

	if errors.Is(err, domain.ErrRefreshInFlight) {
		logrus.Debug("Skipping scheduled cycle, another one is in flight")
		return
	}
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.failures++
	failures := s.failures
	s.mu.Unlock()

	logrus.WithError(err).WithField("consecutive_failures", failures).Error("Acquisition cycle failed")
	if s.hooks.OnError != nil {
		s.hooks.OnError(err)
	}

	if failures >= s.maxRetries {
		s.mu.Lock()
		if s.retryTimer != nil {
			s.retryTimer.Stop()
			s.retryTimer = nil
		}
		s.mu.Unlock()
		logrus.Warnf("Giving up early retries after %d consecutive failures, waiting for the regular cadence", failures)
		return
	}
	s.scheduleRetry(failures, ctx)
}

func (s *Scheduler) scheduleRetry(attempt int, ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(s.retryDelay, func() {
		s.mu.Lock()
		s.retryTimer = nil
		running := s.running
		s.mu.Unlock()
		if !running {
			return
		}
		s.runCycle(ctx)
	})
	s.mu.Unlock()

	logrus.Infof("Retry scheduled in %s (attempt %d of %d)", s.retryDelay, attempt, s.maxRetries)
	if s.hooks.OnRetryScheduled != nil {
		s.hooks.OnRetryScheduled(attempt, s.retryDelay)
	}
}

// rearmRefresh replaces the refresh job so the next regular tick is a full
// interval away from now.
func (s *Scheduler) rearmRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.sched == nil {
		return
	}
	if s.refreshJob != uuid.Nil {
		if err := s.sched.RemoveJob(s.refreshJob); err != nil {
			logrus.WithError(err).Warn("Failed to remove refresh job while re-arming")
		}
	}
	ctx := s.ctx
	job, err := s.sched.NewJob(
		gocron.DurationJob(s.refreshInterval),
		gocron.NewTask(func() { s.runCycle(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logrus.WithError(err).Error("Failed to re-arm refresh job")
		return
	}
	s.refreshJob = job.ID()
}
