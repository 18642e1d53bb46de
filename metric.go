package taskstats

// Metric is one resource reading of a task phase.
//
// An absolute metric holds a completed reading. Otherwise the metric holds
// the baseline taken when the phase started and the end reading is supplied
// later with SetEndValue. A metric whose end reading was never supplied has a
// total of zero.
type Metric struct {
	stat     ResourceStat
	absolute bool
	start    int64
	end      int64
}

// NewMetric returns a metric for stat. If absolute is set, value is the
// completed reading, otherwise it is the start baseline.
func NewMetric(stat ResourceStat, value int64, absolute bool) *Metric {
	m := &Metric{stat: stat, absolute: absolute}
	if absolute {
		m.end = value
	} else {
		m.start = value
	}
	return m
}

// SetEndValue completes the metric with the reading taken at the end of the phase.
func (m *Metric) SetEndValue(v int64) {
	m.end = v
}

// Total returns the consumption recorded by the metric. It is never negative.
// An end reading of zero means the phase has not been observed yet.
func (m *Metric) Total() int64 {
	if m.end != 0 && m.end > m.start {
		return m.end - m.start
	}
	return 0
}

// Stat returns the resource dimension of the metric.
func (m *Metric) Stat() ResourceStat {
	return m.stat
}

// Absolute reports whether the metric was created from a completed reading.
func (m *Metric) Absolute() bool {
	return m.absolute
}
