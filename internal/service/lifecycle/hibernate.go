package lifecycle

import (
	"context"
	"fmt"

	"slumber/internal/model"
	"slumber/pkg/logger"
)

// Hibernate stops the workload container and returns the workload to
// SLEEPING. It is a no-op for SLEEPING and STOPPING workloads; a STARTING
// workload is hibernated once its wake has finished.
func (s *Service) Hibernate(ctx context.Context, id, reason string) error {
	ctx = logger.WithWorkload(ctx, id)
	w, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !isActive(w.State) {
		return nil
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	w, err = s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.hibernateLocked(ctx, w, reason)
}

// hibernateLocked runs RUNNING -> STOPPING -> SLEEPING. Callers hold the lock.
// If the container cannot be removed the workload reverts to RUNNING, so a
// later sweep retries, and an orphan alert is raised.
func (s *Service) hibernateLocked(ctx context.Context, w *model.Workload, reason string) error {
	if !isActive(w.State) {
		return nil
	}
	prev := w.State

	if err := s.setState(ctx, w, model.StateStopping); err != nil {
		return err
	}

	if err := s.teardownContainer(ctx, w.WorkloadHandle); err != nil {
		cctx, cancel := detached(ctx)
		defer cancel()
		if serr := s.setState(cctx, w, prev); serr != nil {
			logger.ErrorCtx(ctx, "failed to revert state after teardown failure: %v", serr)
		}
		s.reportOrphan(cctx, w, "hibernate", []string{w.WorkloadHandle}, err)
		return fmt.Errorf("%w: %v", ErrOrphanedResource, err)
	}

	w.WorkloadHandle = ""
	cctx, cancel := detached(ctx)
	defer cancel()
	if err := s.setState(cctx, w, model.StateSleeping); err != nil {
		return err
	}
	s.metrics.RecordHibernate(reason)
	logger.InfoCtx(ctx, "hibernated (%s)", reason)
	return nil
}
