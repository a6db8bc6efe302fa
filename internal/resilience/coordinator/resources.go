package coordinator

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceUsage is a point-in-time snapshot of host resource consumption,
// expressed as percentages in [0, 100].
type ResourceUsage struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// Sampler reads current host resource usage.
type Sampler interface {
	Sample(ctx context.Context) (ResourceUsage, error)
}

type hostSampler struct {
	diskPath string
}

// NewHostSampler samples CPU, memory and disk usage of the local host.
// diskPath is the mount point whose usage is reported, typically "/".
func NewHostSampler(diskPath string) Sampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &hostSampler{diskPath: diskPath}
}

func (s *hostSampler) Sample(ctx context.Context) (ResourceUsage, error) {
	var usage ResourceUsage

	// Interval 0 measures against the previous call instead of blocking.
	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("sample cpu: %w", err)
	}
	if len(cpuPercents) > 0 {
		usage.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("sample memory: %w", err)
	}
	usage.MemoryPercent = vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("sample disk %s: %w", s.diskPath, err)
	}
	usage.DiskPercent = du.UsedPercent

	return usage, nil
}
