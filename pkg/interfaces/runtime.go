package interfaces

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrContainerNotFound is returned when the runtime has no object with the given handle
	ErrContainerNotFound = errors.New("runtime object not found")

	// ErrRuntimeUnavailable wraps transient runtime failures that survived all retries
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")

	// ErrNoFreePort is returned when the public port range is exhausted
	ErrNoFreePort = errors.New("no free public port")
)

// RuntimeAdapter is the orchestrator's only view of the container runtime.
// Every call is bounded by the implementation's own timeout.
type RuntimeAdapter interface {
	// PullImage makes ref available locally
	PullImage(ctx context.Context, ref string) error

	// CreateNetwork creates a private bridge network and returns its handle
	CreateNetwork(ctx context.Context, name string) (string, error)

	// RemoveNetwork removes a network; a missing network is not an error
	RemoveNetwork(ctx context.Context, handle string) error

	// CreateVolume creates a named data volume and returns its handle
	CreateVolume(ctx context.Context, name string) (string, error)

	// RemoveVolume removes a volume; a missing volume is not an error
	RemoveVolume(ctx context.Context, handle string) error

	// CreateContainer creates (but does not start) a container
	CreateContainer(ctx context.Context, spec *ContainerSpec) (string, error)

	// StartContainer starts a created container
	StartContainer(ctx context.Context, handle string) error

	// StopContainer stops a container, killing it after grace
	StopContainer(ctx context.Context, handle string, grace time.Duration) error

	// RemoveContainer force-removes a container; a missing container is not an error
	RemoveContainer(ctx context.Context, handle string) error

	// InspectContainer reports the container's running state and private address
	InspectContainer(ctx context.Context, handle string) (*ContainerInfo, error)

	// ContainerCPUPercent samples CPU usage as a percentage of one host
	ContainerCPUPercent(ctx context.Context, handle string) (float64, error)

	// ContainerLogs returns the last tail lines of combined stdout and stderr
	ContainerLogs(ctx context.Context, handle string, tail int) (string, error)

	// ExportVolume streams the volume content as a tar archive
	ExportVolume(ctx context.Context, handle string) (io.ReadCloser, error)

	// AllocatePort reserves a free public host port
	AllocatePort(ctx context.Context) (int, error)

	// ReservePort marks a port known to be in use, e.g. after a restart
	ReservePort(port int) error

	// ReleasePort returns a port to the free pool
	ReleasePort(port int)
}

// ContainerSpec describes a container to create
type ContainerSpec struct {
	Name          string
	Image         string
	Env           map[string]string
	Labels        map[string]string
	NetworkHandle string
	NetworkAlias  string
	Mounts        []VolumeMount
	Ports         []PortBinding
	MemoryBytes   int64
	NanoCPUs      int64
	RestartAlways bool
}

// VolumeMount attaches a volume to a path inside the container
type VolumeMount struct {
	VolumeHandle string
	Target       string
}

// PortBinding publishes a container port on the host
type PortBinding struct {
	ContainerPort int
	HostPort      int
	Protocol      string // tcp, udp
}

// ContainerInfo is the inspected state of a container
type ContainerInfo struct {
	Handle    string
	Running   bool
	ExitCode  int
	IPAddress string
	StartedAt time.Time
}
