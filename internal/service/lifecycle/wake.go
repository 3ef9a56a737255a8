package lifecycle

import (
	"context"
	"fmt"
	"maps"

	"github.com/docker/go-units"

	"slumber/internal/model"
	"slumber/pkg/constants"
	"slumber/pkg/interfaces"
	"slumber/pkg/logger"
)

// Wake starts a sleeping workload and returns without waiting for readiness.
// It is idempotent: STARTING and RUNNING workloads just get their target
// confirmed, and concurrent callers share one in-flight wake.
func (s *Service) Wake(ctx context.Context, id string) (*model.WakeAck, error) {
	ack, _, err := s.beginWake(ctx, id)
	return ack, err
}

// WakeAndWait is Wake followed by waiting until the workload is RUNNING or the wake failed
func (s *Service) WakeAndWait(ctx context.Context, id string) (*model.WakeAck, error) {
	ack, call, err := s.beginWake(ctx, id)
	if err != nil {
		return nil, err
	}
	if call == nil {
		if ack.State == model.StateRunning {
			return ack, nil
		}
		// STARTING without a local call: another replica or a stale record
		call = s.joinOrStartWake(id)
	}

	select {
	case <-call.done:
	case <-ctx.Done():
		return ack, ctx.Err()
	}
	if call.err != nil {
		return nil, call.err
	}
	ack.State = model.StateRunning
	return ack, nil
}

// beginWake returns a nil call when the workload is already STARTING or RUNNING
func (s *Service) beginWake(ctx context.Context, id string) (*model.WakeAck, *wakeCall, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	tpl, err := s.template(ctx, w.TemplateID)
	if err != nil {
		return nil, nil, err
	}

	ack := &model.WakeAck{ID: id, State: w.State, Target: model.TargetAddress(id, tpl.InternalPort)}
	if isActive(w.State) {
		return ack, nil, nil
	}
	if err := s.checkCredit(ctx, w.AccountID); err != nil {
		return nil, nil, err
	}

	ack.State = model.StateStarting
	return ack, s.joinOrStartWake(id), nil
}

// joinOrStartWake returns the in-flight call for id, starting one if there is none
func (s *Service) joinOrStartWake(id string) *wakeCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	if call, ok := s.inflight[id]; ok {
		return call
	}
	call := &wakeCall{done: make(chan struct{})}
	s.inflight[id] = call

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		call.err = s.runWake(logger.WithWorkload(s.baseCtx, id), id)
		s.finishWake(id, call)
	}()
	return call
}

func (s *Service) finishWake(id string, call *wakeCall) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
	close(call.done)
}

// runWake performs SLEEPING -> STARTING -> RUNNING under the workload lock,
// rolling back to SLEEPING on any failure.
func (s *Service) runWake(ctx context.Context, id string) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWakeFailed, err)
	}
	defer unlock()

	w, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if w.State == model.StateRunning {
		return nil
	}
	tpl, err := s.template(ctx, w.TemplateID)
	if err != nil {
		return err
	}
	// the balance may have changed while waiting for the lock
	if err := s.checkCredit(ctx, w.AccountID); err != nil {
		return err
	}

	if err := s.setState(ctx, w, model.StateStarting); err != nil {
		return fmt.Errorf("%w: %v", ErrWakeFailed, err)
	}
	started := s.now()

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WakeTimeout)
	defer cancel()

	err = s.startWorkload(wctx, w, tpl)
	if err == nil {
		err = s.waitReady(wctx, w, tpl)
	}
	if err != nil {
		logger.ErrorCtx(ctx, "wake failed, rolling back: %v", err)
		s.rollbackWake(ctx, w)
		s.metrics.RecordWake("failed", 0)
		return fmt.Errorf("%w: %v", ErrWakeFailed, err)
	}

	now := s.now()
	w.LastActivityAt = &now
	if err := s.setState(ctx, w, model.StateRunning); err != nil {
		s.rollbackWake(ctx, w)
		s.metrics.RecordWake("failed", 0)
		return fmt.Errorf("%w: %v", ErrWakeFailed, err)
	}
	s.metrics.RecordWake("ok", now.Sub(started).Seconds())
	return nil
}

// startWorkload creates and starts the game container. The handle is
// persisted before start so a crash leaves a record of the container.
func (s *Service) startWorkload(ctx context.Context, w *model.Workload, tpl *model.Template) error {
	spec, err := s.workloadSpec(w, tpl)
	if err != nil {
		return err
	}

	if err := s.runtime.PullImage(ctx, tpl.Image); err != nil {
		return err
	}

	// a failed earlier rollback may have left a container with our name behind
	if err := s.runtime.RemoveContainer(ctx, model.WorkloadName(w.ID)); err != nil {
		return fmt.Errorf("remove stale container: %w", err)
	}

	handle, err := s.runtime.CreateContainer(ctx, spec)
	if err != nil {
		return err
	}
	w.WorkloadHandle = handle
	if err := s.workloads.Update(ctx, w); err != nil {
		return fmt.Errorf("failed to persist workload handle: %w", err)
	}

	return s.runtime.StartContainer(ctx, handle)
}

func (s *Service) workloadSpec(w *model.Workload, tpl *model.Template) (*interfaces.ContainerSpec, error) {
	env := make(map[string]string, len(tpl.DefaultEnv)+len(w.Env)+2)
	maps.Copy(env, tpl.DefaultEnv)
	maps.Copy(env, w.Env)
	env[constants.EnvServerID] = w.ID
	env[constants.EnvDataDir] = s.cfg.DataMountPath

	spec := &interfaces.ContainerSpec{
		Name:          model.WorkloadName(w.ID),
		Image:         tpl.Image,
		Env:           env,
		Labels:        constants.Labels(w.ID, constants.RoleWorkload),
		NetworkHandle: w.NetworkHandle,
		NetworkAlias:  model.WorkloadName(w.ID),
		NanoCPUs:      int64(tpl.MinCPU * 1e9),
	}
	if w.VolumeHandle != "" {
		spec.Mounts = []interfaces.VolumeMount{{VolumeHandle: w.VolumeHandle, Target: s.cfg.DataMountPath}}
	}
	if tpl.MinRAM != "" {
		mem, err := units.RAMInBytes(tpl.MinRAM)
		if err != nil {
			return nil, fmt.Errorf("invalid memory %q in template %s: %w", tpl.MinRAM, tpl.ID, err)
		}
		spec.MemoryBytes = mem
	}
	return spec, nil
}

// rollbackWake removes whatever the failed wake created and returns the
// workload to SLEEPING. Cleanup runs on a fresh context because the wake
// context is usually the one that expired.
func (s *Service) rollbackWake(ctx context.Context, w *model.Workload) {
	cctx, cancel := detached(ctx)
	defer cancel()

	handle := w.WorkloadHandle
	if handle == "" {
		handle = model.WorkloadName(w.ID)
	}
	if err := s.teardownContainer(cctx, handle); err != nil {
		// the next wake removes the container by name, so SLEEPING stays correct
		s.reportOrphan(cctx, w, "wake-rollback", []string{handle}, err)
	}

	w.WorkloadHandle = ""
	if err := s.setState(cctx, w, model.StateSleeping); err != nil {
		logger.ErrorCtx(ctx, "failed to persist rollback: %v", err)
	}
}
