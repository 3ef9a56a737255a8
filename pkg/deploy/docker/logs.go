package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// maxLogBytes caps what one logs call reads from the engine
const maxLogBytes = 1 << 20

// ContainerLogs returns the last tail lines of the container output with
// timestamps. Non-positive tail returns everything, still capped at maxLogBytes.
func (r *Runtime) ContainerLogs(ctx context.Context, handle string, tail int) (string, error) {
	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true, Timestamps: true, Tail: "all"}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}

	var out bytes.Buffer
	err := r.call(ctx, "logs container "+handle, r.opts.CallTimeout, func(ctx context.Context) error {
		out.Reset()
		rc, err := r.cli.ContainerLogs(ctx, handle, opts)
		if err != nil {
			return err
		}
		defer rc.Close()

		// workload containers run without a tty, so stdout and stderr arrive multiplexed
		if _, err := stdcopy.StdCopy(&out, &out, io.LimitReader(rc, maxLogBytes)); err != nil {
			return fmt.Errorf("demux logs: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
