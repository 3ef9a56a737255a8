package lifecycle

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"

	"slumber/internal/model"
	"slumber/pkg/logger"
)

// Delete tears down every runtime object of the workload and removes its
// record. The record is removed even when some objects could not be; those
// are reported through an orphan alert and ErrOrphanedResource.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx = logger.WithWorkload(ctx, id)
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	w, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if isActive(w.State) {
		if err := s.setState(ctx, w, model.StateStopping); err != nil {
			return err
		}
	}

	var errs *multierror.Error
	var orphans []string

	workloadHandle := w.WorkloadHandle
	if workloadHandle == "" {
		workloadHandle = model.WorkloadName(w.ID)
	}
	if err := s.teardownContainer(ctx, workloadHandle); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("workload container: %w", err))
		orphans = append(orphans, workloadHandle)
	}
	if err := s.teardownContainer(ctx, w.GatewayHandle); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("gateway container: %w", err))
		orphans = append(orphans, w.GatewayHandle)
	}
	if err := s.withRetries(ctx, func(ctx context.Context) error {
		return s.runtime.RemoveNetwork(ctx, w.NetworkHandle)
	}); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("network: %w", err))
		orphans = append(orphans, w.NetworkHandle)
	}
	if err := s.withRetries(ctx, func(ctx context.Context) error {
		return s.runtime.RemoveVolume(ctx, w.VolumeHandle)
	}); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("volume: %w", err))
		orphans = append(orphans, w.VolumeHandle)
	}

	cctx, cancel := detached(ctx)
	defer cancel()

	// the port is only free for reuse if the gateway really is gone
	if !slices.Contains(orphans, w.GatewayHandle) {
		s.runtime.ReleasePort(w.PublicPort)
	}
	if err := s.workloads.Delete(cctx, id); err != nil {
		return fmt.Errorf("failed to delete workload record: %w", err)
	}
	s.metrics.RecordTransition(string(w.State), "DELETED")

	if err := errs.ErrorOrNil(); err != nil {
		s.reportOrphan(cctx, w, "delete", orphans, err)
		return fmt.Errorf("%w: %v", ErrOrphanedResource, err)
	}
	logger.InfoCtx(ctx, "workload deleted")
	return nil
}
