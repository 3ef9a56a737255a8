package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"slumber/internal/model"
	"slumber/pkg/interfaces"
)

var errContainerExited = errors.New("workload container exited")

// ReadinessProber decides whether a started workload accepts traffic.
// An error means the wake cannot succeed anymore and should stop waiting.
type ReadinessProber interface {
	Ready(ctx context.Context, w *model.Workload, tpl *model.Template) (bool, error)
}

// RuntimeProber checks the container state, then dials the internal port.
// UDP workloads count as ready once the process runs, since UDP has no handshake.
type RuntimeProber struct {
	runtime     interfaces.RuntimeAdapter
	dialTimeout time.Duration
	dial        func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewRuntimeProber creates the default prober
func NewRuntimeProber(rt interfaces.RuntimeAdapter) *RuntimeProber {
	d := &net.Dialer{}
	return &RuntimeProber{runtime: rt, dialTimeout: 2 * time.Second, dial: d.DialContext}
}

func (p *RuntimeProber) Ready(ctx context.Context, w *model.Workload, tpl *model.Template) (bool, error) {
	info, err := p.runtime.InspectContainer(ctx, w.WorkloadHandle)
	if err != nil {
		if errors.Is(err, interfaces.ErrContainerNotFound) {
			return false, fmt.Errorf("%w: container %s disappeared", errContainerExited, w.WorkloadHandle)
		}
		// transient; the wake timeout bounds how long we keep asking
		return false, nil
	}

	if !info.Running {
		if !info.StartedAt.IsZero() {
			return false, fmt.Errorf("%w with code %d", errContainerExited, info.ExitCode)
		}
		return false, nil
	}

	if tpl.Protocol == model.ProtocolUDP {
		return true, nil
	}
	if info.IPAddress == "" {
		return false, nil
	}

	dctx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	conn, err := p.dial(dctx, "tcp", net.JoinHostPort(info.IPAddress, strconv.Itoa(tpl.InternalPort)))
	if err != nil {
		return false, nil
	}
	conn.Close()
	return true, nil
}

// waitReady polls the prober every ReadinessInterval until ready, failed or ctx is done
func (s *Service) waitReady(ctx context.Context, w *model.Workload, tpl *model.Template) error {
	ticker := time.NewTicker(s.cfg.ReadinessInterval)
	defer ticker.Stop()

	for {
		ready, err := s.prober.Ready(ctx, w, tpl)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("not ready within %s: %w", s.cfg.WakeTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
