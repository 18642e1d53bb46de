// Package sampler takes the resource readings recorded at task phase boundaries.
//
// Go does not expose per-goroutine accounting, so readings are process wide:
// Memory is the cumulative number of bytes allocated by the runtime and CPU
// is the user plus system time of the process. Deltas between the start and
// end of a phase therefore include the work of concurrent tasks.
package sampler

import (
	"runtime"

	"github.com/influxdata/taskstats"
)

// Sampler returns resource readings for the start and end of a phase.
type Sampler interface {
	// Start returns baseline metrics to pass to Task.StartTracking.
	Start() []*taskstats.Metric
	// Stop returns end readings to pass to Task.StopTracking.
	Stop() []*taskstats.Metric
}

// MemStatsReader reads runtime memory statistics. runtime.ReadMemStats
// satisfies it through MemStatsFunc.
type MemStatsReader interface {
	ReadMemStats(m *runtime.MemStats)
}

// MemStatsFunc adapts a function to MemStatsReader.
type MemStatsFunc func(m *runtime.MemStats)

// ReadMemStats calls f(m).
func (f MemStatsFunc) ReadMemStats(m *runtime.MemStats) { f(m) }

// CPUReader returns the CPU time consumed so far in nanoseconds.
type CPUReader interface {
	CPUTime() (int64, bool)
}

// RuntimeSampler samples the Go runtime allocator and the process CPU clock.
type RuntimeSampler struct {
	mem MemStatsReader
	cpu CPUReader
}

// NewRuntimeSampler returns a sampler reading the current process.
func NewRuntimeSampler() *RuntimeSampler {
	return &RuntimeSampler{
		mem: MemStatsFunc(runtime.ReadMemStats),
		cpu: processCPU{},
	}
}

// NewSampler returns a sampler with the given readers. A nil reader disables
// that stat.
func NewSampler(mem MemStatsReader, cpu CPUReader) *RuntimeSampler {
	return &RuntimeSampler{mem: mem, cpu: cpu}
}

// Start returns non-absolute baselines for every stat that can be read.
func (s *RuntimeSampler) Start() []*taskstats.Metric {
	return s.read(false)
}

// Stop returns absolute end readings for every stat that can be read.
func (s *RuntimeSampler) Stop() []*taskstats.Metric {
	return s.read(true)
}

func (s *RuntimeSampler) read(absolute bool) []*taskstats.Metric {
	metrics := make([]*taskstats.Metric, 0, 2)
	if s.mem != nil {
		var ms runtime.MemStats
		s.mem.ReadMemStats(&ms)
		metrics = append(metrics, taskstats.NewMetric(taskstats.Memory, int64(ms.TotalAlloc), absolute))
	}
	if s.cpu != nil {
		if ns, ok := s.cpu.CPUTime(); ok {
			metrics = append(metrics, taskstats.NewMetric(taskstats.CPU, ns, absolute))
		}
	}
	return metrics
}
