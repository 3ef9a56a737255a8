// Package sweep holds the periodic passes that hibernate idle workloads and
// charge running ones.
package sweep

import (
	"context"
	"fmt"
	"time"

	"slumber/internal/model"
	"slumber/internal/service/lifecycle"
	"slumber/pkg/config"
	"slumber/pkg/logger"
	"slumber/pkg/metrics"
)

// IdleSweeper hibernates RUNNING auto-sleep workloads whose CPU stayed below
// the threshold for the whole idle window. One reading at or above the
// threshold starts the window over.
type IdleSweeper struct {
	workloads WorkloadLister
	sampler   CPUSampler
	lifecycle Lifecycle
	tracker   ActivityTracker
	metrics   *metrics.LifecycleMetrics
	cfg       config.IdleSweepConfig
	now       func() time.Time
}

// NewIdleSweeper creates the idle sweep
func NewIdleSweeper(workloads WorkloadLister, sampler CPUSampler, lc Lifecycle, tracker ActivityTracker,
	m *metrics.LifecycleMetrics, cfg config.IdleSweepConfig) *IdleSweeper {
	if tracker == nil {
		tracker = NewMemoryTracker()
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 2 * time.Minute
	}
	return &IdleSweeper{
		workloads: workloads,
		sampler:   sampler,
		lifecycle: lc,
		tracker:   tracker,
		metrics:   m,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// windowTTL is how long a window survives without readings, e.g. when
// sampling keeps failing; three missed ticks end it.
func (s *IdleSweeper) windowTTL() time.Duration {
	return 3 * s.cfg.Interval
}

// Run performs one pass. Per-workload failures are logged and skipped.
func (s *IdleSweeper) Run(ctx context.Context) error {
	started := time.Now()
	workloads, err := s.workloads.ListByState(ctx, model.StateRunning)
	if err != nil {
		s.metrics.RecordSweep("idle", "error", time.Since(started).Seconds())
		return fmt.Errorf("failed to list running workloads: %w", err)
	}

	var hibernated, failed int
	for _, w := range workloads {
		wctx := logger.WithWorkload(ctx, w.ID)
		done, err := s.check(wctx, w)
		if err != nil {
			failed++
			logger.WarnCtx(wctx, "idle check failed: %v", err)
			continue
		}
		if done {
			hibernated++
		}
	}

	logger.DebugCtx(ctx, "idle sweep: %d running, %d hibernated, %d failed", len(workloads), hibernated, failed)
	s.metrics.RecordSweep("idle", "ok", time.Since(started).Seconds())
	return nil
}

func (s *IdleSweeper) check(ctx context.Context, w *model.Workload) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	if !w.AutoSleepEnabled {
		return false, s.tracker.Reset(ctx, w.ID)
	}

	cpu, err := s.sampler.ContainerCPUPercent(ctx, w.WorkloadHandle)
	if err != nil {
		return false, fmt.Errorf("sample cpu: %w", err)
	}

	now := s.now()
	if cpu >= s.cfg.CPUThreshold {
		if err := s.tracker.Reset(ctx, w.ID); err != nil {
			return false, err
		}
		return false, s.lifecycle.RecordActivity(ctx, w.ID, now)
	}

	since, err := s.tracker.MarkLow(ctx, w.ID, now, s.windowTTL())
	if err != nil {
		return false, err
	}
	// a window left over from before the last wake does not count
	if w.LastStateChangeAt.After(since) {
		since = w.LastStateChangeAt
	}
	if now.Sub(since) < s.cfg.IdleWindow {
		return false, nil
	}

	logger.InfoCtx(ctx, "cpu below %.1f%% since %s, hibernating", s.cfg.CPUThreshold, since.Format(time.RFC3339))
	if err := s.lifecycle.Hibernate(ctx, w.ID, lifecycle.ReasonIdle); err != nil {
		return false, err
	}
	return true, s.tracker.Reset(ctx, w.ID)
}
