package docker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/container"
)

// ContainerCPUPercent takes one stats sample and returns CPU usage the way
// `docker stats` reports it: 100 means one full core.
func (r *Runtime) ContainerCPUPercent(ctx context.Context, handle string) (float64, error) {
	var stats container.StatsResponse
	err := r.call(ctx, "stats container "+handle, r.opts.CallTimeout, func(ctx context.Context) error {
		// stream=false makes the engine collect two samples so precpu is populated
		resp, err := r.cli.ContainerStats(ctx, handle, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return fmt.Errorf("decode stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cpuPercent(&stats), nil
}

func cpuPercent(s *container.StatsResponse) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}

	online := float64(s.CPUStats.OnlineCPUs)
	if online == 0 {
		online = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	if online == 0 {
		online = 1
	}
	return cpuDelta / systemDelta * online * 100
}
