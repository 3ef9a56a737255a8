// Package docker implements the runtime adapter on top of the Docker Engine API.
package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"slumber/pkg/config"
	"slumber/pkg/constants"
	"slumber/pkg/deploy/ports"
	imagecache "slumber/pkg/image"
	"slumber/pkg/interfaces"
	"slumber/pkg/logger"
)

// dockerAPI is the part of the engine client the runtime uses
type dockerAPI interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
	NetworkRemove(ctx context.Context, networkID string) error
	VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error)
	VolumeRemove(ctx context.Context, volumeID string, force bool) error
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStats(ctx context.Context, containerID string, stream bool) (container.StatsResponseReader, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, container.PathStat, error)
	Close() error
}

// Options tunes how the runtime talks to the engine
type Options struct {
	CallTimeout time.Duration
	PullTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	HelperImage string
}

// Runtime implements interfaces.RuntimeAdapter against a Docker engine
type Runtime struct {
	cli   dockerAPI
	ports *ports.Allocator
	pulls *imagecache.PullCache
	opts  Options
}

var _ interfaces.RuntimeAdapter = (*Runtime)(nil)

// NewRuntime connects to the engine configured by the DOCKER_* environment
func NewRuntime(cfg *config.Config, pulls *imagecache.PullCache) (interfaces.RuntimeAdapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	alloc := ports.NewAllocatorWithProbe(cfg.Runtime.MinPort, cfg.Runtime.MaxPort, ports.HostPortFree)

	return newRuntime(cli, alloc, pulls, Options{
		CallTimeout: cfg.Runtime.CallTimeout,
		PullTimeout: cfg.Runtime.PullTimeout,
		MaxRetries:  cfg.Runtime.MaxRetries,
		RetryDelay:  cfg.Runtime.RetryDelay,
		HelperImage: cfg.Runtime.HelperImage,
	}), nil
}

func newRuntime(cli dockerAPI, alloc *ports.Allocator, pulls *imagecache.PullCache, opts Options) *Runtime {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.PullTimeout <= 0 {
		opts.PullTimeout = 10 * time.Minute
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.HelperImage == "" {
		opts.HelperImage = "busybox:latest"
	}
	if pulls == nil {
		pulls = imagecache.NewPullCache(0)
	}
	return &Runtime{cli: cli, ports: alloc, pulls: pulls, opts: opts}
}

// Close releases the engine connection
func (r *Runtime) Close() error {
	return r.cli.Close()
}

// PullImage pulls ref unless the cache saw a recent successful pull
func (r *Runtime) PullImage(ctx context.Context, ref string) error {
	if err := imagecache.ValidateReference(ref); err != nil {
		return err
	}
	if r.pulls.Fresh(ctx, ref) {
		return nil
	}

	err := r.call(ctx, "pull image "+ref, r.opts.PullTimeout, func(ctx context.Context) error {
		rc, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
		if err != nil {
			return err
		}
		defer rc.Close()
		// the pull only completes once the progress stream is drained
		return jsonmessage.DisplayJSONMessagesStream(rc, io.Discard, 0, false, nil)
	})
	if err != nil {
		return err
	}

	r.pulls.MarkPulled(ctx, ref)
	logger.InfoCtx(ctx, "image pulled: %s", ref)
	return nil
}

// CreateNetwork creates a private bridge network
func (r *Runtime) CreateNetwork(ctx context.Context, name string) (string, error) {
	var id string
	err := r.call(ctx, "create network "+name, r.opts.CallTimeout, func(ctx context.Context) error {
		resp, err := r.cli.NetworkCreate(ctx, name, network.CreateOptions{
			Driver: "bridge",
			Labels: map[string]string{constants.LabelManagedBy: constants.ManagedBySlumber},
		})
		if err != nil {
			return err
		}
		id = resp.ID
		return nil
	})
	return id, err
}

// RemoveNetwork removes a network
func (r *Runtime) RemoveNetwork(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	return ignoreNotFound(r.call(ctx, "remove network "+handle, r.opts.CallTimeout, func(ctx context.Context) error {
		return r.cli.NetworkRemove(ctx, handle)
	}))
}

// CreateVolume creates a named local volume
func (r *Runtime) CreateVolume(ctx context.Context, name string) (string, error) {
	var handle string
	err := r.call(ctx, "create volume "+name, r.opts.CallTimeout, func(ctx context.Context) error {
		vol, err := r.cli.VolumeCreate(ctx, volume.CreateOptions{
			Name:   name,
			Labels: map[string]string{constants.LabelManagedBy: constants.ManagedBySlumber},
		})
		if err != nil {
			return err
		}
		handle = vol.Name
		return nil
	})
	return handle, err
}

// RemoveVolume removes a volume
func (r *Runtime) RemoveVolume(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	return ignoreNotFound(r.call(ctx, "remove volume "+handle, r.opts.CallTimeout, func(ctx context.Context) error {
		return r.cli.VolumeRemove(ctx, handle, true)
	}))
}

// CreateContainer creates a container from spec without starting it
func (r *Runtime) CreateContainer(ctx context.Context, spec *interfaces.ContainerSpec) (string, error) {
	cfg, hostCfg, netCfg, err := buildContainerConfig(spec)
	if err != nil {
		return "", err
	}

	var id string
	err = r.call(ctx, "create container "+spec.Name, r.opts.CallTimeout, func(ctx context.Context) error {
		resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
		if err != nil {
			return err
		}
		for _, w := range resp.Warnings {
			logger.WarnCtx(ctx, "container %s: %s", spec.Name, w)
		}
		id = resp.ID
		return nil
	})
	return id, err
}

func buildContainerConfig(spec *interfaces.ContainerSpec) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	cfg := &container.Config{
		Image:  spec.Image,
		Env:    env,
		Labels: spec.Labels,
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:   spec.MemoryBytes,
			NanoCPUs: spec.NanoCPUs,
		},
	}
	if spec.RestartAlways {
		hostCfg.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyAlways}
	}

	for _, m := range spec.Mounts {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: m.VolumeHandle,
			Target: m.Target,
		})
	}

	if len(spec.Ports) > 0 {
		cfg.ExposedPorts = nat.PortSet{}
		hostCfg.PortBindings = nat.PortMap{}
		for _, p := range spec.Ports {
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			port, err := nat.NewPort(proto, strconv.Itoa(p.ContainerPort))
			if err != nil {
				return nil, nil, nil, fmt.Errorf("invalid port binding %d/%s: %w", p.ContainerPort, proto, err)
			}
			cfg.ExposedPorts[port] = struct{}{}
			hostCfg.PortBindings[port] = append(hostCfg.PortBindings[port], nat.PortBinding{
				HostPort: strconv.Itoa(p.HostPort),
			})
		}
	}

	var netCfg *network.NetworkingConfig
	if spec.NetworkHandle != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.NetworkHandle)
		endpoint := &network.EndpointSettings{}
		if spec.NetworkAlias != "" {
			endpoint.Aliases = []string{spec.NetworkAlias}
		}
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{spec.NetworkHandle: endpoint},
		}
	}

	return cfg, hostCfg, netCfg, nil
}

// StartContainer starts a created container
func (r *Runtime) StartContainer(ctx context.Context, handle string) error {
	return r.call(ctx, "start container "+handle, r.opts.CallTimeout, func(ctx context.Context) error {
		return r.cli.ContainerStart(ctx, handle, container.StartOptions{})
	})
}

// StopContainer stops a container. Stopping a missing container succeeds.
func (r *Runtime) StopContainer(ctx context.Context, handle string, grace time.Duration) error {
	if handle == "" {
		return nil
	}
	seconds := int(grace.Seconds())
	// the engine blocks for up to grace, so the call needs room beyond it
	timeout := r.opts.CallTimeout + grace
	return ignoreNotFound(r.call(ctx, "stop container "+handle, timeout, func(ctx context.Context) error {
		return r.cli.ContainerStop(ctx, handle, container.StopOptions{Timeout: &seconds})
	}))
}

// RemoveContainer force-removes a container
func (r *Runtime) RemoveContainer(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	return ignoreNotFound(r.call(ctx, "remove container "+handle, r.opts.CallTimeout, func(ctx context.Context) error {
		return r.cli.ContainerRemove(ctx, handle, container.RemoveOptions{Force: true})
	}))
}

// InspectContainer reports state and the first private address of the container
func (r *Runtime) InspectContainer(ctx context.Context, handle string) (*interfaces.ContainerInfo, error) {
	var resp container.InspectResponse
	err := r.call(ctx, "inspect container "+handle, r.opts.CallTimeout, func(ctx context.Context) error {
		var err error
		resp, err = r.cli.ContainerInspect(ctx, handle)
		return err
	})
	if err != nil {
		return nil, err
	}

	info := &interfaces.ContainerInfo{Handle: handle}
	if resp.ContainerJSONBase != nil {
		info.Handle = resp.ID
		if st := resp.State; st != nil {
			info.Running = st.Running
			info.ExitCode = st.ExitCode
			if t, err := time.Parse(time.RFC3339Nano, st.StartedAt); err == nil {
				info.StartedAt = t
			}
		}
	}
	if resp.NetworkSettings != nil {
		for _, ep := range resp.NetworkSettings.Networks {
			if ep != nil && ep.IPAddress != "" {
				info.IPAddress = ep.IPAddress
				break
			}
		}
	}
	return info, nil
}

// AllocatePort reserves a free public port
func (r *Runtime) AllocatePort(ctx context.Context) (int, error) {
	return r.ports.Allocate(ctx)
}

// ReservePort marks port as in use
func (r *Runtime) ReservePort(port int) error {
	return r.ports.Reserve(port)
}

// ReleasePort frees port
func (r *Runtime) ReleasePort(port int) {
	r.ports.Free(port)
}
