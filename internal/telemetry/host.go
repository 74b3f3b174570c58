package telemetry

import (
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Host samples machine-level pressure signals.
type Host struct{}

// NewHost creates a Host sampler.
func NewHost() *Host {
	return &Host{}
}

// CPURatio returns the one-minute load average normalized by core count.
// Values above 1.0 mean the run queue exceeds the core count.
func (h *Host) CPURatio() (float64, error) {
	avg, err := load.Avg()
	if err != nil {
		return 0, fmt.Errorf("telemetry: load average: %w", err)
	}
	cores := runtime.NumCPU()
	if cores < 1 {
		cores = 1
	}
	return avg.Load1 / float64(cores), nil
}

// MemoryUsedBytes returns the bytes of physical memory in use.
func (h *Host) MemoryUsedBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("telemetry: virtual memory: %w", err)
	}
	return vm.Used, nil
}

// Uptime returns how long the host has been up.
func (h *Host) Uptime() (time.Duration, error) {
	secs, err := host.Uptime()
	if err != nil {
		return 0, fmt.Errorf("telemetry: uptime: %w", err)
	}
	return time.Duration(secs) * time.Second, nil
}
