// Package health collects a point-in-time system resource snapshot for the
// /health endpoint: load average, memory, and this process's own RSS.
package health

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// CPUInfo reports load-average figures normalized against the core count.
type CPUInfo struct {
	Cores              int
	Load1Min           float64
	Load5Min           float64
	Load15Min          float64
	LoadPercentage1Min float64
}

// MemoryInfo reports system and process memory usage, all in megabytes.
type MemoryInfo struct {
	TotalMemoryMB     float64
	UsedMemoryMB      float64
	FreeMemoryMB      float64
	AvailableMemoryMB float64
	SwapTotalMB       float64
	SwapUsedMB        float64
	Process           ProcessMemoryInfo
}

// ProcessMemoryInfo reports this process's own and its children's RSS.
type ProcessMemoryInfo struct {
	MainProcessMB      float64
	ChildProcessesMB   float64
	TotalProcessTreeMB float64
	ChildProcessCount  int
	PercentageOfSystem float64
}

// Snapshot is a single point-in-time health reading.
type Snapshot struct {
	Uptime        time.Duration
	CPU           CPUInfo
	Memory        MemoryInfo
	EngineStatus  string
	ChannelCount  int
	AdapterCount  int
	PluginCount   int
}

// Collector produces Snapshots, stamping a fixed start time as Uptime's
// reference point.
type Collector struct {
	startTime time.Time
}

// NewCollector constructs a Collector whose Uptime is measured from the
// moment it's created.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Collect gathers a fresh Snapshot. Every gopsutil call is best-effort: a
// failure to read one metric leaves its zero value rather than failing
// the whole snapshot, since health reporting must never itself become a
// source of downtime.
func (c *Collector) Collect() Snapshot {
	return Snapshot{
		Uptime: time.Since(c.startTime),
		CPU:    collectCPU(),
		Memory: collectMemory(),
	}
}

func collectCPU() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	avg, err := load.Avg()
	if err == nil && avg != nil {
		info.Load1Min = avg.Load1
		info.Load5Min = avg.Load5
		info.Load15Min = avg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (avg.Load1 / float64(cores)) * 100
		}
	}
	return info
}

func collectMemory() MemoryInfo {
	var info MemoryInfo

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.TotalMemoryMB = float64(vm.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vm.Used) / 1024 / 1024
		info.FreeMemoryMB = float64(vm.Free) / 1024 / 1024
		info.AvailableMemoryMB = float64(vm.Available) / 1024 / 1024
	}
	if swap, err := mem.SwapMemory(); err == nil && swap != nil {
		info.SwapTotalMB = float64(swap.Total) / 1024 / 1024
		info.SwapUsedMB = float64(swap.Used) / 1024 / 1024
	}
	info.Process = collectProcessMemory(info.TotalMemoryMB)
	return info
}

func collectProcessMemory(totalSystemMB float64) ProcessMemoryInfo {
	var info ProcessMemoryInfo

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}

	if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
		info.MainProcessMB = float64(mi.RSS) / 1024 / 1024
		info.TotalProcessTreeMB = info.MainProcessMB
		if totalSystemMB > 0 {
			info.PercentageOfSystem = (info.MainProcessMB / totalSystemMB) * 100
		}
	}

	children, err := proc.Children()
	if err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			if cm, err := child.MemoryInfo(); err == nil && cm != nil {
				mb := float64(cm.RSS) / 1024 / 1024
				info.ChildProcessesMB += mb
				info.TotalProcessTreeMB += mb
			}
		}
	}
	return info
}
