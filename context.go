package taskstats

import (
	"time"

	"github.com/benbjohnson/clock"
)

// AccountingContext is a read-only projection of a task used when reporting
// on it. It is built on demand and never updated; RunningTime is computed
// each time it is called.
type AccountingContext struct {
	TaskID       int64
	Type         string
	Action       string
	Description  string
	StartTime    time.Time
	ParentTaskID string

	// ResourceStats maps each worker to a copy of its resource stats taken
	// when the context was built.
	ResourceStats map[string][]*ResourceStats

	clock clock.Clock
}

// NewAccountingContext returns the accounting context of t.
func NewAccountingContext(t *Task) AccountingContext {
	return AccountingContext{
		TaskID:        t.ID(),
		Type:          t.Type(),
		Action:        t.Action(),
		Description:   t.Description(),
		StartTime:     t.StartTime(),
		ParentTaskID:  t.ParentTaskID().String(),
		ResourceStats: t.ResourceStats(),
		clock:         t.clock,
	}
}

// RunningTime returns the time elapsed since the task started.
func (c AccountingContext) RunningTime() time.Duration {
	clk := c.clock
	if clk == nil {
		clk = clock.New()
	}
	return clk.Since(c.StartTime)
}

// Total sums stat across the workers of the context, ignoring analysis-only phases.
func (c AccountingContext) Total(stat ResourceStat) int64 {
	var total int64
	for _, entries := range c.ResourceStats {
		for _, s := range entries {
			v, _ := s.Total(stat, false)
			total += v
		}
	}
	return total
}

// Snapshots returns the per-phase totals of the context's resource stats.
func (c AccountingContext) Snapshots() []Snapshot {
	return snapshotsOf(c.ResourceStats)
}
