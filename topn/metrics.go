package topn

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "taskstats"
	subsystem = "topn"
)

// Reasons a task was not admitted to the leaderboard.
const (
	reasonNotMeasurable = "not_measurable"
	reasonNoMemory      = "no_memory"
	reasonBelowMinimum  = "below_minimum"
)

type trackerMetrics struct {
	admitted prometheus.Counter
	rejected *prometheus.CounterVec
	evicted  prometheus.Counter
	buffered prometheus.Gauge
}

func newTrackerMetrics() *trackerMetrics {
	return &trackerMetrics{
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "accepted_total",
			Help:      "Number of tasks admitted to the leaderboard",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejected_total",
			Help:      "Number of tasks not admitted to the leaderboard",
		}, []string{"reason"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "evicted_total",
			Help:      "Number of leaderboard entries evicted by more expensive tasks",
		}),
		buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "buffered",
			Help:      "Number of entries in the active leaderboard",
		}),
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (t *Tracker) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		t.metrics.admitted,
		t.metrics.rejected,
		t.metrics.evicted,
		t.metrics.buffered,
	}
}

type serviceMetrics struct {
	flushes       prometheus.Counter
	flushed       prometheus.Counter
	renderErrors  prometheus.Counter
	flushDuration prometheus.Histogram
}

func newServiceMetrics() *serviceMetrics {
	return &serviceMetrics{
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flushes_total",
			Help:      "Number of leaderboard flushes",
		}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flushed_total",
			Help:      "Number of entries handed to the renderer",
		}),
		renderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "render_errors_total",
			Help:      "Number of entries the renderer failed to render",
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flush_duration_seconds",
			Help:      "Histogram of times spent draining and rendering the leaderboard",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 5, 7),
		}),
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (s *Service) PrometheusCollectors() []prometheus.Collector {
	return append(s.tracker.PrometheusCollectors(),
		s.metrics.flushes,
		s.metrics.flushed,
		s.metrics.renderErrors,
		s.metrics.flushDuration,
	)
}
