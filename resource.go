package taskstats

import "fmt"

// ResourceStat is a resource dimension tracked for a task.
type ResourceStat int

const (
	// Memory is the number of bytes allocated while the task ran.
	Memory ResourceStat = iota
	// CPU is the CPU time consumed by the task in nanoseconds.
	CPU
)

// String returns the name of the stat as it appears in reports and on the wire.
func (s ResourceStat) String() string {
	switch s {
	case Memory:
		return "memory_in_bytes"
	case CPU:
		return "cpu_time_in_nanos"
	default:
		return fmt.Sprintf("resource_stat(%d)", int(s))
	}
}

// ParseResourceStat returns the ResourceStat named s.
func ParseResourceStat(s string) (ResourceStat, error) {
	switch s {
	case "memory_in_bytes":
		return Memory, nil
	case "cpu_time_in_nanos":
		return CPU, nil
	default:
		return 0, fmt.Errorf("unknown resource stat %q", s)
	}
}

// AllResourceStats returns every known ResourceStat in declaration order.
func AllResourceStats() []ResourceStat {
	return []ResourceStat{Memory, CPU}
}

// Phase is an accounting scope under which metrics are recorded separately.
type Phase int

const (
	// WorkerStats covers the work a worker performs for the task.
	WorkerStats Phase = iota
	// OperationStats covers individual operators within a worker. These
	// numbers overlap WorkerStats and are only kept for analysis.
	OperationStats
)

// String returns the phase label.
func (p Phase) String() string {
	switch p {
	case WorkerStats:
		return "worker_stats"
	case OperationStats:
		return "operation_stats"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// OnlyForAnalysis reports whether metrics of this phase are excluded from task totals.
func (p Phase) OnlyForAnalysis() bool {
	return p == OperationStats
}

// ParsePhase returns the Phase labelled s.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "worker_stats":
		return WorkerStats, nil
	case "operation_stats":
		return OperationStats, nil
	default:
		return 0, fmt.Errorf("unknown phase %q", s)
	}
}
