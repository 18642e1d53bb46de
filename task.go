package taskstats

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	kerrors "github.com/influxdata/taskstats/kit/errors"
)

// Category classifies tasks for consumers that only handle some kinds of work.
type Category int

const (
	// CategoryGeneric is any task without special handling.
	CategoryGeneric Category = iota
	// CategorySearchShard is the per-shard part of a search request. Its
	// resource usage is measured and reported by the top-N logger.
	CategorySearchShard
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategorySearchShard:
		return "search_shard"
	default:
		return "generic"
	}
}

// TaskRequest describes a task to register.
type TaskRequest struct {
	Type        string
	Action      string
	Description string
	Parent      TaskID
	Cancellable bool
	Category    Category
	Headers     map[string]string
}

// Task is a unit of work tracked by a Registry.
//
// Identity and timing are fixed at creation. The resource stats of each
// worker are mutated with StartTracking and StopTracking and may be read
// concurrently.
type Task struct {
	id          int64
	typ         string
	action      string
	description string
	parent      TaskID
	cancellable bool
	category    Category
	headers     map[string]string
	startTime   time.Time
	clock       clock.Clock

	mu        sync.RWMutex
	cancelled bool
	stats     map[string][]*ResourceStats
}

// NewTask returns a task with the given node-local id that started at the
// clock's current time.
func NewTask(id int64, req TaskRequest, clk clock.Clock) *Task {
	if clk == nil {
		clk = clock.New()
	}
	parent := req.Parent
	if !parent.IsSet() {
		parent = EmptyTaskID
	}
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = v
	}
	return &Task{
		id:          id,
		typ:         req.Type,
		action:      req.Action,
		description: req.Description,
		parent:      parent,
		cancellable: req.Cancellable,
		category:    req.Category,
		headers:     headers,
		startTime:   clk.Now(),
		clock:       clk,
		stats:       make(map[string][]*ResourceStats),
	}
}

func (t *Task) ID() int64            { return t.id }
func (t *Task) Type() string         { return t.typ }
func (t *Task) Action() string       { return t.action }
func (t *Task) Description() string  { return t.description }
func (t *Task) ParentTaskID() TaskID { return t.parent }
func (t *Task) StartTime() time.Time { return t.startTime }
func (t *Task) Cancellable() bool    { return t.cancellable }
func (t *Task) Category() Category   { return t.category }

// RunningTime returns how long the task has been running.
func (t *Task) RunningTime() time.Duration {
	return t.clock.Since(t.startTime)
}

// Headers returns a copy of the request headers the task was created with.
func (t *Task) Headers() map[string]string {
	h := make(map[string]string, len(t.headers))
	for k, v := range t.headers {
		h[k] = v
	}
	return h
}

// Measurable reports whether the task's resource usage is reported by the
// expensive task logger.
func (t *Task) Measurable() bool {
	return t.category == CategorySearchShard
}

// Cancel marks the task cancelled. It returns an error for tasks that are
// not cancellable.
func (t *Task) Cancel() error {
	if !t.cancellable {
		return kerrors.Invalidf("taskstats.Task.Cancel", "task %d cannot be cancelled", t.id)
	}
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	return nil
}

// Cancelled reports whether Cancel was called.
func (t *Task) Cancelled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelled
}

// StartTracking records the start readings of phase on worker. Readings for
// a stat that is already being tracked in that phase are rejected.
func (t *Task) StartTracking(worker string, phase Phase, start ...*Metric) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.stats[worker]
	if n := len(entries); n > 0 && entries[n-1].IsActive() {
		current := entries[n-1]
		if ps, ok := current.Stats(phase); ok {
			for _, m := range start {
				if m == nil {
					continue
				}
				if open, ok := ps[m.Stat()]; ok && isOpen(open) {
					return &kerrors.Error{
						Code: kerrors.EConflict,
						Op:   "taskstats.Task.StartTracking",
						Msg:  "cannot start tracking " + m.Stat().String() + " for " + phase.String() + " on worker " + worker + ": already active",
					}
				}
			}
		}
		current.Update(true, phase, start...)
		return nil
	}
	t.stats[worker] = append(entries, NewResourceStats(true, phase, start...))
	return nil
}

// StopTracking completes the open metrics of phase on worker with the given
// end readings. Once no metric of the worker is left open the worker is
// marked inactive.
func (t *Task) StopTracking(worker string, phase Phase, end ...*Metric) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.stats[worker]
	n := len(entries)
	if n == 0 || !entries[n-1].IsActive() {
		return &kerrors.Error{
			Code: kerrors.ENotFound,
			Op:   "taskstats.Task.StopTracking",
			Msg:  "cannot stop tracking on worker " + worker + ": no active tracking",
		}
	}
	current := entries[n-1]
	ps, ok := current.Stats(phase)
	if !ok {
		return &kerrors.Error{
			Code: kerrors.ENotFound,
			Op:   "taskstats.Task.StopTracking",
			Msg:  "cannot stop tracking " + phase.String() + " on worker " + worker + ": phase was never started",
		}
	}
	for _, m := range end {
		if m == nil {
			continue
		}
		if open, ok := ps[m.Stat()]; ok && !open.Absolute() {
			open.SetEndValue(m.end)
		} else {
			ps[m.Stat()] = NewMetric(m.Stat(), m.end, true)
		}
	}
	current.SetActive(hasOpenMetrics(current))
	return nil
}

func isOpen(m *Metric) bool {
	return !m.Absolute() && m.end == 0
}

func hasOpenMetrics(s *ResourceStats) bool {
	for _, ps := range s.phases {
		for _, m := range ps {
			if isOpen(m) {
				return true
			}
		}
	}
	return false
}

// HasResourceStats reports whether any worker recorded metrics for the task.
func (t *Task) HasResourceStats() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.stats) > 0
}

// ResourceStats returns a deep copy of the per-worker stats. The copy does
// not change when the task records more metrics.
func (t *Task) ResourceStats() map[string][]*ResourceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]*ResourceStats, len(t.stats))
	for w, entries := range t.stats {
		cp := make([]*ResourceStats, len(entries))
		for i, s := range entries {
			cp[i] = s.Clone()
		}
		out[w] = cp
	}
	return out
}

// TotalResourceUtilization sums stat across all workers, ignoring
// analysis-only phases. ok is false when no worker recorded stat.
func (t *Task) TotalResourceUtilization(stat ResourceStat) (total int64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, entries := range t.stats {
		for _, s := range entries {
			if v, found := s.Total(stat, false); found {
				total += v
				ok = true
			}
		}
	}
	return total, ok
}

// ResourceSnapshots returns one snapshot per phase with the totals of every
// stat recorded in that phase, summed across workers.
func (t *Task) ResourceSnapshots() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return snapshotsOf(t.stats)
}

func snapshotsOf(stats map[string][]*ResourceStats) []Snapshot {
	totals := make(map[Phase]map[string]int64)
	for _, entries := range stats {
		for _, s := range entries {
			for phase, ps := range s.phases {
				m, ok := totals[phase]
				if !ok {
					m = make(map[string]int64)
					totals[phase] = m
				}
				for stat, metric := range ps {
					m[stat.String()] += metric.Total()
				}
			}
		}
	}

	snaps := make([]Snapshot, 0, len(totals))
	for _, phase := range []Phase{WorkerStats, OperationStats} {
		if m, ok := totals[phase]; ok {
			snaps = append(snaps, NewSnapshot(phase.String(), m))
		}
	}
	return snaps
}

// AccountingContext returns a read-only view of the task.
func (t *Task) AccountingContext() AccountingContext {
	return NewAccountingContext(t)
}
