package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"

	"slumber/internal/model"
	"slumber/pkg/constants"
	"slumber/pkg/interfaces"
	"slumber/pkg/logger"
)

// Deploy allocates a public port, creates the private network, the data
// volume and the gateway container, and persists the workload as SLEEPING.
// On failure everything created by this call is removed again.
func (s *Service) Deploy(ctx context.Context, req *model.DeployRequest) (*model.Workload, error) {
	tpl, err := s.template(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCredit(ctx, req.AccountID); err != nil {
		return nil, err
	}

	id := s.newID()
	ctx = logger.WithWorkload(ctx, id)

	port, err := s.runtime.AllocatePort(ctx)
	if err != nil {
		if errors.Is(err, interfaces.ErrNoFreePort) {
			return nil, fmt.Errorf("%w: %v", ErrNoCapacity, err)
		}
		return nil, fmt.Errorf("%w: allocate port: %v", ErrDeploymentFailed, err)
	}

	d := &deployment{svc: s, id: id}
	d.onRollback("port", func(context.Context) error {
		s.runtime.ReleasePort(port)
		return nil
	})

	w, err := d.run(ctx, req, tpl, port)
	if err != nil {
		d.rollback(ctx, err)
		return nil, fmt.Errorf("%w: %v", ErrDeploymentFailed, err)
	}
	s.metrics.RecordTransition("NEW", string(w.State))
	logger.InfoCtx(ctx, "deployed %s on port %d", tpl.ID, port)

	if req.StartNow {
		ack, err := s.Wake(context.WithoutCancel(ctx), id)
		if err != nil {
			logger.WarnCtx(ctx, "immediate start was not accepted: %v", err)
		} else {
			w.State = ack.State
		}
	}
	return w, nil
}

// deployment tracks what one Deploy call created so it can be undone in reverse order
type deployment struct {
	svc      *Service
	id       string
	cleanups []cleanup
}

type cleanup struct {
	handle string
	fn     func(ctx context.Context) error
}

func (d *deployment) onRollback(handle string, fn func(ctx context.Context) error) {
	d.cleanups = append(d.cleanups, cleanup{handle: handle, fn: fn})
}

func (d *deployment) run(ctx context.Context, req *model.DeployRequest, tpl *model.Template, port int) (*model.Workload, error) {
	s := d.svc
	rt := s.runtime

	netHandle, err := rt.CreateNetwork(ctx, model.NetworkName(d.id))
	if err != nil {
		return nil, err
	}
	d.onRollback(netHandle, func(ctx context.Context) error { return rt.RemoveNetwork(ctx, netHandle) })

	volHandle, err := rt.CreateVolume(ctx, model.VolumeName(d.id))
	if err != nil {
		return nil, err
	}
	d.onRollback(volHandle, func(ctx context.Context) error { return rt.RemoveVolume(ctx, volHandle) })

	if err := rt.PullImage(ctx, s.cfg.GatewayImage); err != nil {
		return nil, err
	}
	// pulled now so the first wake does not pay for it
	if err := rt.PullImage(ctx, tpl.Image); err != nil {
		return nil, err
	}

	spec, err := s.gatewaySpec(d.id, tpl, port, netHandle)
	if err != nil {
		return nil, err
	}
	gwHandle, err := rt.CreateContainer(ctx, spec)
	if err != nil {
		return nil, err
	}
	d.onRollback(gwHandle, func(ctx context.Context) error { return s.teardownContainer(ctx, gwHandle) })

	if err := rt.StartContainer(ctx, gwHandle); err != nil {
		return nil, err
	}

	autoSleep := true
	if req.AutoSleep != nil {
		autoSleep = *req.AutoSleep
	}
	now := s.now()
	w := &model.Workload{
		ID:                d.id,
		Name:              req.Name,
		TemplateID:        tpl.ID,
		AccountID:         req.AccountID,
		State:             model.StateSleeping,
		GatewayHandle:     gwHandle,
		NetworkHandle:     netHandle,
		VolumeHandle:      volHandle,
		PublicPort:        port,
		Env:               req.Env,
		AutoSleepEnabled:  autoSleep,
		LastStateChangeAt: now,
		CreatedAt:         now,
	}
	if err := s.workloads.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to persist workload: %w", err)
	}
	return w, nil
}

func (d *deployment) rollback(ctx context.Context, cause error) {
	cctx, cancel := detached(ctx)
	defer cancel()

	var errs *multierror.Error
	var orphans []string
	for i := len(d.cleanups) - 1; i >= 0; i-- {
		c := d.cleanups[i]
		if err := c.fn(cctx); err != nil {
			errs = multierror.Append(errs, err)
			orphans = append(orphans, c.handle)
		}
	}

	logger.ErrorCtx(ctx, "deploy failed, rolled back: %v", cause)
	if err := errs.ErrorOrNil(); err != nil {
		d.svc.reportOrphan(cctx, &model.Workload{ID: d.id}, "deploy-rollback", orphans, err)
	}
}

// gatewaySpec describes the always-on gateway container of a workload
func (s *Service) gatewaySpec(id string, tpl *model.Template, port int, netHandle string) (*interfaces.ContainerSpec, error) {
	env := map[string]string{
		constants.EnvGatewayTargetHost: model.WorkloadName(id),
		constants.EnvGatewayTargetPort: strconv.Itoa(tpl.InternalPort),
		constants.EnvGatewayProtocol:   string(tpl.Protocol),
		constants.EnvGatewayListenAddr: ":" + strconv.Itoa(port),
		constants.EnvGatewayWakeURL:    s.cfg.GatewayWakeURL,
		constants.EnvGatewayWorkloadID: id,
		constants.EnvGatewayWakeToken:  s.cfg.WakeToken,
	}
	if s.cfg.GatewayProbePort > 0 {
		env[constants.EnvGatewayProbePort] = strconv.Itoa(s.cfg.GatewayProbePort)
	}

	spec := &interfaces.ContainerSpec{
		Name:          model.GatewayName(id),
		Image:         s.cfg.GatewayImage,
		Env:           env,
		Labels:        constants.Labels(id, constants.RoleGateway),
		NetworkHandle: netHandle,
		NetworkAlias:  model.GatewayName(id),
		Ports:         []interfaces.PortBinding{{ContainerPort: port, HostPort: port, Protocol: string(tpl.Protocol)}},
		NanoCPUs:      int64(s.cfg.GatewayCPU * 1e9),
		RestartAlways: true,
	}
	if s.cfg.GatewayMemory != "" {
		mem, err := units.RAMInBytes(s.cfg.GatewayMemory)
		if err != nil {
			return nil, fmt.Errorf("invalid gateway memory %q: %w", s.cfg.GatewayMemory, err)
		}
		spec.MemoryBytes = mem
	}
	return spec, nil
}
