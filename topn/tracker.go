// Package topn logs the most memory-expensive tasks completed on a node.
//
// Completed tasks are offered to a Tracker, which keeps the K tasks with the
// highest memory usage seen since the last flush. A Service flushes the
// tracker on a timer and hands the flushed entries to a Renderer.
package topn

import (
	"sync"

	"github.com/influxdata/taskstats"
)

// Task is the view of a completed task needed by the tracker and renderers.
// *taskstats.Task implements it.
type Task interface {
	// Measurable reports whether the task belongs to a category whose
	// resource usage is reported.
	Measurable() bool
	// TotalResourceUtilization returns the task's total for stat and
	// whether the stat was recorded at all.
	TotalResourceUtilization(stat taskstats.ResourceStat) (int64, bool)
	// AccountingContext returns the read-only view rendered in logs.
	AccountingContext() taskstats.AccountingContext
}

// Tracker keeps the tasks with the highest memory usage in one of two
// leaderboards. Accept inserts into the active leaderboard; Flush makes the
// other one active and drains the retired one.
//
// Accept and the switch performed by Flush share one mutex, so no insert can
// reach a leaderboard once it has been retired.
type Tracker struct {
	mu       sync.Mutex
	boards   [2]*leaderboard
	active   int
	capacity int

	// flushMu keeps flushes serial so a retired leaderboard is drained by
	// one caller before it can become active again.
	flushMu sync.Mutex

	metrics *trackerMetrics
}

// NewTracker returns a tracker keeping at most capacity tasks per window.
// A capacity below one is replaced with DefaultSize.
func NewTracker(capacity int) *Tracker {
	if capacity < 1 {
		capacity = DefaultSize
	}
	return &Tracker{
		boards:   [2]*leaderboard{newLeaderboard(), newLeaderboard()},
		capacity: capacity,
		metrics:  newTrackerMetrics(),
	}
}

// Accept offers a completed task to the active leaderboard. Tasks that are
// not measurable or that recorded no memory are ignored. It never blocks on
// anything but the tracker mutex.
func (t *Tracker) Accept(task Task) {
	if task == nil || !task.Measurable() {
		t.metrics.rejected.WithLabelValues(reasonNotMeasurable).Inc()
		return
	}
	memory, ok := task.TotalResourceUtilization(taskstats.Memory)
	if !ok {
		t.metrics.rejected.WithLabelValues(reasonNoMemory).Inc()
		return
	}

	t.mu.Lock()
	admitted, evicted := t.boards[t.active].offer(memory, task, t.capacity)
	t.metrics.buffered.Set(float64(t.boards[t.active].len()))
	t.mu.Unlock()

	if evicted {
		t.metrics.evicted.Inc()
	}
	if admitted {
		t.metrics.admitted.Inc()
	} else {
		t.metrics.rejected.WithLabelValues(reasonBelowMinimum).Inc()
	}
}

// Consumer returns a registry consumer feeding completed tasks to Accept.
func (t *Tracker) Consumer() taskstats.Consumer {
	return func(task *taskstats.Task) {
		t.Accept(task)
	}
}

// Flush makes the other leaderboard active and returns the entries collected
// by the previously active one, most expensive first. The newly active
// leaderboard is empty.
func (t *Tracker) Flush() []Entry {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	retired := t.boards[t.active]
	t.active = 1 - t.active
	t.metrics.buffered.Set(0)
	t.mu.Unlock()

	// Accept only reaches the leaderboard named by t.active under t.mu, so
	// the retired one can be drained without holding it.
	return retired.drain()
}

// SetCapacity changes the number of tasks kept per window. Entries beyond
// the new capacity are evicted from the active leaderboard, lowest first.
// Values below one are ignored.
func (t *Tracker) SetCapacity(capacity int) {
	if capacity < 1 {
		return
	}
	t.mu.Lock()
	t.capacity = capacity
	n := t.boards[t.active].trim(capacity)
	t.metrics.buffered.Set(float64(t.boards[t.active].len()))
	t.mu.Unlock()

	t.metrics.evicted.Add(float64(n))
}

// Capacity returns the number of tasks kept per window.
func (t *Tracker) Capacity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity
}

// Len returns the number of entries in the active leaderboard.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.boards[t.active].len()
}

// Min returns the lowest memory value held by the active leaderboard.
func (t *Tracker) Min() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.boards[t.active].min()
}
