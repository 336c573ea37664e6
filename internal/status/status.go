// Package status collects process and host diagnostics for the
// /api/status endpoint.
package status

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is the JSON body served by /api/status.
type Snapshot struct {
	PID             int     `json:"pid"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	Goroutines      int     `json:"goroutines"`
	MemoryRSSBytes  uint64  `json:"memory_rss_bytes"`
	CPUPercent      float64 `json:"cpu_percent"`
	HostMemoryUsed  float64 `json:"host_memory_used_percent"`
	Subscribers     int     `json:"subscribers"`
	EventsPublished uint64  `json:"events_published"`
	WatchedDir      string  `json:"watched_dir"`
	Suffix          string  `json:"suffix"`
}

type Collector struct {
	startedAt time.Time
	proc      *process.Process
}

func NewCollector() *Collector {
	// A nil proc just means the process stats stay zero in snapshots.
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &Collector{
		startedAt: time.Now(),
		proc:      proc,
	}
}

// Collect gathers a snapshot. Stat failures leave the affected fields at
// zero rather than failing the whole snapshot.
func (c *Collector) Collect(subscribers int, published uint64, dir, suffix string) Snapshot {
	snap := Snapshot{
		PID:             os.Getpid(),
		UptimeSeconds:   int64(time.Since(c.startedAt).Seconds()),
		Goroutines:      runtime.NumGoroutine(),
		Subscribers:     subscribers,
		EventsPublished: published,
		WatchedDir:      dir,
		Suffix:          suffix,
	}

	if c.proc != nil {
		if info, err := c.proc.MemoryInfo(); err == nil && info != nil {
			snap.MemoryRSSBytes = info.RSS
		}
		if pct, err := c.proc.CPUPercent(); err == nil {
			snap.CPUPercent = pct
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		snap.HostMemoryUsed = vm.UsedPercent
	}

	return snap
}
