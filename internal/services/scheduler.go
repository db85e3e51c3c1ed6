package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/worldland/gpumon/internal/defaults"
	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
	"github.com/worldland/gpumon/internal/logging"
	"github.com/worldland/gpumon/internal/metrics"
	"github.com/worldland/gpumon/internal/snapshot"
)

const (
	triggerTick    = "tick"
	triggerRefresh = "refresh"
)

// SchedulerConfig is the part of the configuration the scheduler consumes.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Scheduler drives periodic acquisition and owns the enabled state.
//
// Scheduled ticks and manual refreshes share one acquisition routine but
// differ in how failures leave: tick records and logs them, Refresh returns
// them. acquireMu keeps at most one acquisition in flight; a tick that finds
// it held is skipped, a refresh waits.
type Scheduler struct {
	acquirer domain.Acquirer
	store    *snapshot.Store
	logger   *slog.Logger
	now      func() time.Time

	acquireMu sync.Mutex

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	baseCtx  context.Context
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. A non-positive interval uses the default.
func NewScheduler(acquirer domain.Acquirer, store *snapshot.Store, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.RefreshInterval
	}
	return &Scheduler{
		acquirer: acquirer,
		store:    store,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
		enabled:  cfg.Enabled,
		interval: cfg.Interval,
	}
}

// Start records the enabled state in the store and, when enabled, acquires
// once before arming the ticker. The loop ends on Stop, Shutdown or when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	enabled := s.enabled
	s.mu.Unlock()

	s.store.SetActive(enabled)
	if !enabled {
		s.logger.Info("monitoring disabled, scheduler idle")
		return
	}

	s.tick(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		s.armLocked(false)
	}
	s.logger.Info("scheduler started", "interval", s.interval.String())
}

// Stop disarms the ticker. It is idempotent and does not wait for an in-flight
// tick, but no scheduled acquisition starts once it returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

// Shutdown stops the ticker and waits for the loop goroutine to exit.
func (s *Scheduler) Shutdown() {
	s.Stop()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Toggle flips the enabled state and returns the new state. Disabling stops
// the ticker and marks the store inactive without discarding telemetry.
// Enabling marks it active, re-arms the ticker and reacquires immediately.
func (s *Scheduler) Toggle() bool {
	s.mu.Lock()
	s.enabled = !s.enabled
	enabled := s.enabled
	if !enabled {
		s.disarmLocked()
	}
	s.mu.Unlock()

	s.store.SetActive(enabled)
	if enabled {
		s.mu.Lock()
		if s.enabled {
			s.armLocked(true)
		}
		s.mu.Unlock()
	}
	s.logger.Info("monitoring toggled", "enabled", enabled)
	return enabled
}

// Restart applies a new interval. When enabled the ticker is stopped and
// started again with an immediate acquisition; when disabled nothing runs and
// the interval takes effect on the next enable.
func (s *Scheduler) Restart(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interval > 0 {
		s.interval = interval
	}
	if !s.enabled {
		return
	}
	s.disarmLocked()
	s.armLocked(true)
	s.logger.Info("scheduler restarted", "interval", s.interval.String())
}

// Refresh acquires immediately, outside the ticker, in either state. Unlike
// a scheduled tick, a failure is returned to the caller.
func (s *Scheduler) Refresh(ctx context.Context) (domain.Snapshot, error) {
	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	snap, err := s.acquire(ctx)
	if err != nil {
		s.store.RecordError(err, s.now())
		metrics.ObserveAcquisition(triggerRefresh, metrics.ResultFailure)
		return domain.Snapshot{}, err
	}
	metrics.ObserveAcquisition(triggerRefresh, metrics.ResultSuccess)
	return snap, nil
}

// Enabled reports whether scheduled polling is on.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Interval returns the current polling interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Store returns the snapshot store the scheduler publishes to.
func (s *Scheduler) Store() *snapshot.Store {
	return s.store
}

// armLocked starts the loop goroutine if it is not running. It does nothing
// before Start has supplied the lifecycle context.
func (s *Scheduler) armLocked(immediate bool) {
	if s.stopCh != nil || s.baseCtx == nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.baseCtx, s.interval, s.stopCh, immediate)
}

func (s *Scheduler) disarmLocked() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration, stopCh chan struct{}, immediate bool) {
	defer s.wg.Done()

	if immediate {
		if stopped(stopCh) || ctx.Err() != nil {
			return
		}
		s.tick(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if stopped(stopCh) {
			return
		}
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A tick longer than the interval leaves a fire buffered, and
			// select picks randomly between it and a closed stopCh.
			if stopped(stopCh) {
				return
			}
			s.tick(ctx)
		}
	}
}

func stopped(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// tick is the scheduled path: failures, including panics from a probe,
// are recorded in the store and logged but never leave this method.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if !s.acquireMu.TryLock() {
		s.logger.Debug("acquisition in flight, skipping tick")
		metrics.ObserveAcquisition(triggerTick, metrics.ResultSkipped)
		return
	}
	defer s.acquireMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.absorb(apperrors.New(apperrors.ErrCodeInternal, fmt.Sprintf("acquisition panicked: %v", r)))
		}
	}()

	snap, err := s.acquire(ctx)
	if err != nil {
		s.absorb(err)
		return
	}
	metrics.ObserveAcquisition(triggerTick, metrics.ResultSuccess)
	s.logger.Debug("snapshot published", "gpus", len(snap.GPUs), "source", snap.Source, "sequence", snap.Sequence)
}

func (s *Scheduler) absorb(err error) {
	pollErr := apperrors.Wrap(apperrors.ErrCodeTransientPoll, "scheduled acquisition failed", err)
	s.store.RecordError(pollErr, s.now())
	metrics.ObserveAcquisition(triggerTick, metrics.ResultFailure)
	s.logger.Warn("scheduled acquisition failed",
		"code", apperrors.RootCode(err),
		"error", err,
	)
}

func (s *Scheduler) acquire(ctx context.Context) (domain.Snapshot, error) {
	acq, err := s.acquirer.Acquire(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return s.store.Publish(acq, s.now()), nil
}
