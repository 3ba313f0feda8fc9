package process

import (
	"fmt"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Usage is a point-in-time resource reading of a running child.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Threads    int32   `json:"threads"`
}

// Usage samples CPU and memory of the child. It fails once the child is gone.
func (p *Process) Usage() (Usage, error) {
	if p.Exited() {
		return Usage{}, fmt.Errorf("process %s already exited", p.spec.Name)
	}
	h, err := gopsproc.NewProcess(int32(p.PID())) // #nosec G115 -- pids fit in int32
	if err != nil {
		return Usage{}, fmt.Errorf("failed to create process handle: %w", err)
	}
	mem, err := h.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	u := Usage{RSSBytes: mem.RSS}
	if cpu, err := h.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if n, err := h.NumThreads(); err == nil {
		u.Threads = n
	}
	return u, nil
}
