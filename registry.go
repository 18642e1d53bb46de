package taskstats

import (
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Consumer receives tasks that completed with resource stats attached.
type Consumer func(t *Task)

// Registry tracks the tasks running on a node and hands completed tasks to
// its consumers.
type Registry struct {
	node  string
	clock clock.Clock

	mu     sync.RWMutex
	lastID int64
	tasks  map[int64]*Task

	consumersMu sync.RWMutex
	consumers   []Consumer

	metrics *registryMetrics
	logger  *zap.Logger
}

// NewRegistry returns a registry for the tasks of node. A nil clock uses
// the system clock.
func NewRegistry(node string, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		node:    node,
		clock:   clk,
		tasks:   make(map[int64]*Task),
		metrics: newRegistryMetrics(),
		logger:  zap.NewNop(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(log *zap.Logger) {
	r.logger = log.With(zap.String("service", "task-registry"))
}

// Node returns the node id the registry was created for.
func (r *Registry) Node() string {
	return r.node
}

// AddConsumer registers fn to receive every task unregistered with resource
// stats. Consumers run on the goroutine calling Unregister and must not block.
func (r *Registry) AddConsumer(fn Consumer) {
	r.consumersMu.Lock()
	r.consumers = append(r.consumers, fn)
	r.consumersMu.Unlock()
}

// Register creates and tracks a task for req.
func (r *Registry) Register(req TaskRequest) *Task {
	r.mu.Lock()
	r.lastID++
	t := NewTask(r.lastID, req, r.clock)
	r.tasks[t.ID()] = t
	r.mu.Unlock()

	r.metrics.active.Inc()
	r.metrics.registered.WithLabelValues(req.Category.String()).Inc()
	return t
}

// Unregister stops tracking t. If t recorded resource stats it is passed to
// every consumer. Unregistering an unknown task is a no-op.
func (r *Registry) Unregister(t *Task) {
	r.mu.Lock()
	_, ok := r.tasks[t.ID()]
	delete(r.tasks, t.ID())
	r.mu.Unlock()
	if !ok {
		return
	}
	r.metrics.active.Dec()

	if !t.HasResourceStats() {
		return
	}
	r.consumersMu.RLock()
	consumers := r.consumers
	r.consumersMu.RUnlock()
	for _, fn := range consumers {
		r.consume(fn, t)
	}
}

func (r *Registry) consume(fn Consumer, t *Task) {
	defer func() {
		if e := recover(); e != nil {
			r.metrics.consumerErrors.Inc()
			r.logger.Warn("Task consumer panicked",
				zap.Int64("task_id", t.ID()),
				zap.String("panic", fmt.Sprint(e)))
		}
	}()
	fn(t)
}

// Task returns the running task with the given id.
func (r *Registry) Task(id int64) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Tasks returns the running tasks.
func (r *Registry) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tasks := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}

// TaskInfos reports every running task. Tasks whose state fails validation
// are skipped.
func (r *Registry) TaskInfos() []TaskInfo {
	tasks := r.Tasks()
	infos := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		info, err := t.TaskInfo(r.node)
		if err != nil {
			r.logger.Debug("Skipping task in listing", zap.Int64("task_id", t.ID()), zap.Error(err))
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (r *Registry) PrometheusCollectors() []prometheus.Collector {
	return r.metrics.PrometheusCollectors()
}

type registryMetrics struct {
	active         prometheus.Gauge
	registered     *prometheus.CounterVec
	consumerErrors prometheus.Counter
}

func newRegistryMetrics() *registryMetrics {
	const (
		namespace = "taskstats"
		subsystem = "registry"
	)

	return &registryMetrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_active",
			Help:      "Number of tasks currently registered",
		}),
		registered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_registered_total",
			Help:      "Total number of tasks registered",
		}, []string{"category"}),
		consumerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "consumer_errors_total",
			Help:      "Number of task consumer invocations that panicked",
		}),
	}
}

func (m *registryMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.active,
		m.registered,
		m.consumerErrors,
	}
}
