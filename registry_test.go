package taskstats_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/influxdata/taskstats"
	"github.com/influxdata/taskstats/kit/prom/promtest"
)

func TestRegistry_Register(t *testing.T) {
	r := taskstats.NewRegistry("node-1", nil)
	require.Equal(t, "node-1", r.Node())

	a := r.Register(taskstats.TaskRequest{Type: "transport", Action: "a"})
	b := r.Register(taskstats.TaskRequest{Type: "transport", Action: "b", Category: taskstats.CategorySearchShard})
	require.Less(t, a.ID(), b.ID())

	got, ok := r.Task(a.ID())
	require.True(t, ok)
	require.Same(t, a, got)

	ids := make([]int64, 0, 2)
	for _, task := range r.Tasks() {
		ids = append(ids, task.ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	require.Equal(t, []int64{a.ID(), b.ID()}, ids)
	require.Len(t, r.TaskInfos(), 2)

	mfs := promtest.MustGather(t, r.PrometheusCollectors()...)
	require.Equal(t, 2.0, promtest.GaugeValue(t, mfs, "taskstats_registry_tasks_active", nil))
	require.Equal(t, 1.0, promtest.CounterValue(t, mfs, "taskstats_registry_tasks_registered_total", map[string]string{"category": "search_shard"}))

	r.Unregister(a)
	r.Unregister(a)
	_, ok = r.Task(a.ID())
	require.False(t, ok)

	mfs = promtest.MustGather(t, r.PrometheusCollectors()...)
	require.Equal(t, 1.0, promtest.GaugeValue(t, mfs, "taskstats_registry_tasks_active", nil))
}

func TestRegistry_Consumers(t *testing.T) {
	r := taskstats.NewRegistry("node-1", nil)
	r.WithLogger(zaptest.NewLogger(t))

	var consumed []int64
	r.AddConsumer(func(task *taskstats.Task) { panic("consumer failed") })
	r.AddConsumer(func(task *taskstats.Task) { consumed = append(consumed, task.ID()) })

	withStats := r.Register(taskstats.TaskRequest{Category: taskstats.CategorySearchShard})
	require.NoError(t, withStats.StartTracking("w", taskstats.WorkerStats, taskstats.NewMetric(taskstats.Memory, 0, false)))
	require.NoError(t, withStats.StopTracking("w", taskstats.WorkerStats, taskstats.NewMetric(taskstats.Memory, 10, true)))
	withoutStats := r.Register(taskstats.TaskRequest{Category: taskstats.CategorySearchShard})

	r.Unregister(withoutStats)
	r.Unregister(withStats)

	// Only tasks with resource stats reach consumers, and a panicking
	// consumer does not stop the others.
	require.Equal(t, []int64{withStats.ID()}, consumed)

	mfs := promtest.MustGather(t, r.PrometheusCollectors()...)
	require.Equal(t, 1.0, promtest.CounterValue(t, mfs, "taskstats_registry_consumer_errors_total", nil))
}
