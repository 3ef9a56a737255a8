package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"slumber/internal/model"
	"slumber/pkg/interfaces"
	"slumber/pkg/logger"
)

// Reconcile brings the registry and the runtime back in line after a
// restart: ports of existing workloads are reserved again, transitions cut
// short by the restart are finished towards SLEEPING, and missing or stopped
// gateways are recreated or restarted.
func (s *Service) Reconcile(ctx context.Context) error {
	workloads, err := s.workloads.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workloads: %w", err)
	}

	for _, w := range workloads {
		if err := s.runtime.ReservePort(w.PublicPort); err != nil {
			logger.WarnCtx(ctx, "workload %s: cannot reserve port %d: %v", w.ID, w.PublicPort, err)
		}
	}

	var failed int
	for _, w := range workloads {
		if err := s.reconcileOne(logger.WithWorkload(ctx, w.ID), w.ID); err != nil {
			failed++
			logger.ErrorCtx(ctx, "workload %s: reconcile failed: %v", w.ID, err)
		}
	}
	logger.InfoCtx(ctx, "reconciled %d workloads (%d failed)", len(workloads), failed)
	return nil
}

func (s *Service) reconcileOne(ctx context.Context, id string) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	w, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if err := s.reconcileGateway(ctx, w); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	switch w.State {
	case model.StateStarting, model.StateStopping:
		// nothing waits on these anymore
		return s.resetToSleeping(ctx, w)
	case model.StateRunning:
		info, err := s.runtime.InspectContainer(ctx, w.WorkloadHandle)
		if err != nil && !errors.Is(err, interfaces.ErrContainerNotFound) {
			return err
		}
		if err == nil && info.Running {
			return nil
		}
		logger.WarnCtx(ctx, "workload container is gone or stopped, marking SLEEPING")
		return s.resetToSleeping(ctx, w)
	case model.StateSleeping:
		if w.WorkloadHandle != "" {
			return s.resetToSleeping(ctx, w)
		}
	}
	return nil
}

func (s *Service) resetToSleeping(ctx context.Context, w *model.Workload) error {
	handle := w.WorkloadHandle
	if handle == "" {
		handle = model.WorkloadName(w.ID)
	}
	if err := s.teardownContainer(ctx, handle); err != nil {
		s.reportOrphan(ctx, w, "reconcile", []string{handle}, err)
	}
	w.WorkloadHandle = ""
	return s.setState(ctx, w, model.StateSleeping)
}

// reconcileGateway restarts a stopped gateway and recreates a missing one
func (s *Service) reconcileGateway(ctx context.Context, w *model.Workload) error {
	info, err := s.runtime.InspectContainer(ctx, w.GatewayHandle)
	switch {
	case err == nil && info.Running:
		return nil
	case err == nil:
		logger.WarnCtx(ctx, "gateway stopped, starting it")
		return s.runtime.StartContainer(ctx, w.GatewayHandle)
	case !errors.Is(err, interfaces.ErrContainerNotFound):
		return err
	}

	logger.WarnCtx(ctx, "gateway missing, recreating it")
	tpl, err := s.template(ctx, w.TemplateID)
	if err != nil {
		return err
	}
	spec, err := s.gatewaySpec(w.ID, tpl, w.PublicPort, w.NetworkHandle)
	if err != nil {
		return err
	}
	if err := s.runtime.PullImage(ctx, spec.Image); err != nil {
		return err
	}
	// a gateway with our name but another id would make the create conflict
	if err := s.runtime.RemoveContainer(ctx, spec.Name); err != nil {
		return err
	}
	handle, err := s.runtime.CreateContainer(ctx, spec)
	if err != nil {
		return err
	}
	if err := s.runtime.StartContainer(ctx, handle); err != nil {
		return err
	}
	w.GatewayHandle = handle
	return s.workloads.Update(ctx, w)
}
