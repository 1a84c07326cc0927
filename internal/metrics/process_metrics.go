package metrics

import (
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessSample is a point-in-time resource reading of the managed process.
type ProcessSample struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
}

// ProcessSampler reads CPU and memory usage of one process at a time. The
// gopsutil handle is kept between calls so CPU percent is measured over the
// interval since the previous sample.
type ProcessSampler struct {
	mu   sync.Mutex
	pid  int32
	proc *process.Process
}

// Sample reads pid and updates the process gauges. A pid of 0 or less clears
// the cached handle and zeroes the gauges.
func (s *ProcessSampler) Sample(pid int) (ProcessSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pid <= 0 {
		s.proc, s.pid = nil, 0
		setProcessGauges(0, 0)
		return ProcessSample{}, nil
	}
	if s.proc == nil || s.pid != int32(pid) {
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			s.proc, s.pid = nil, 0
			return ProcessSample{}, err
		}
		s.proc, s.pid = p, int32(pid)
		// prime the CPU counter
		_, _ = p.Percent(0)
	}

	out := ProcessSample{PID: s.pid}
	if cpu, err := s.proc.Percent(0); err == nil {
		out.CPUPercent = cpu
	}
	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return out, err
	}
	out.MemoryRSS = mem.RSS
	if n, err := s.proc.NumThreads(); err == nil {
		out.NumThreads = n
	}
	setProcessGauges(out.CPUPercent, out.MemoryRSS)
	return out, nil
}

func setProcessGauges(cpu float64, rss uint64) {
	if regOK.Load() {
		processCPU.Set(cpu)
		processRSS.Set(float64(rss))
	}
}
