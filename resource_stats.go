package taskstats

// PhaseStats holds at most one metric per ResourceStat for a single phase.
type PhaseStats map[ResourceStat]*Metric

// Metric returns the metric recorded for stat, if any.
func (p PhaseStats) Metric(stat ResourceStat) (*Metric, bool) {
	m, ok := p[stat]
	return m, ok
}

func (p PhaseStats) put(metrics []*Metric) {
	for _, m := range metrics {
		if m == nil {
			continue
		}
		p[m.Stat()] = m
	}
}

// ResourceStats aggregates the metrics of one worker of a task per phase.
//
// ResourceStats does no locking of its own. Updates to a single value must be
// serialized by the owner, which is what Task does.
type ResourceStats struct {
	phases map[Phase]PhaseStats
	active bool
}

// NewResourceStats returns a ResourceStats seeded with metrics for phase.
func NewResourceStats(active bool, phase Phase, metrics ...*Metric) *ResourceStats {
	s := &ResourceStats{phases: make(map[Phase]PhaseStats)}
	s.Update(active, phase, metrics...)
	return s
}

// Update folds metrics into phase. A metric replaces any earlier metric of
// the same stat in that phase; other stats are left untouched. The active
// flag is set to active afterwards.
func (s *ResourceStats) Update(active bool, phase Phase, metrics ...*Metric) {
	if s.phases == nil {
		s.phases = make(map[Phase]PhaseStats)
	}
	ps, ok := s.phases[phase]
	if !ok {
		ps = make(PhaseStats, len(metrics))
		s.phases[phase] = ps
	}
	ps.put(metrics)
	s.active = active
}

// IsActive reports whether the worker is still accruing resources.
func (s *ResourceStats) IsActive() bool {
	return s.active
}

// SetActive sets the active flag.
func (s *ResourceStats) SetActive(active bool) {
	s.active = active
}

// Stats returns the metrics recorded for phase.
func (s *ResourceStats) Stats(phase Phase) (PhaseStats, bool) {
	ps, ok := s.phases[phase]
	return ps, ok
}

// Phases returns the phases with recorded metrics, in Phase order.
func (s *ResourceStats) Phases() []Phase {
	phases := make([]Phase, 0, len(s.phases))
	for _, p := range []Phase{WorkerStats, OperationStats} {
		if _, ok := s.phases[p]; ok {
			phases = append(phases, p)
		}
	}
	return phases
}

// Total sums the totals of stat across phases. Analysis-only phases are
// skipped unless includeAnalysis is set.
func (s *ResourceStats) Total(stat ResourceStat, includeAnalysis bool) (total int64, ok bool) {
	for phase, ps := range s.phases {
		if phase.OnlyForAnalysis() && !includeAnalysis {
			continue
		}
		if m, found := ps[stat]; found {
			total += m.Total()
			ok = true
		}
	}
	return total, ok
}

// Clone returns a deep copy of s. Metrics are copied by value, so later
// updates to s are not visible through the copy.
func (s *ResourceStats) Clone() *ResourceStats {
	c := &ResourceStats{
		phases: make(map[Phase]PhaseStats, len(s.phases)),
		active: s.active,
	}
	for phase, ps := range s.phases {
		cps := make(PhaseStats, len(ps))
		for stat, m := range ps {
			mc := *m
			cps[stat] = &mc
		}
		c.phases[phase] = cps
	}
	return c
}
