package taskstats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/influxdata/taskstats"
)

func completed(stat taskstats.ResourceStat, start, end int64) *taskstats.Metric {
	m := taskstats.NewMetric(stat, start, false)
	m.SetEndValue(end)
	return m
}

func TestResourceStats_Update(t *testing.T) {
	s := taskstats.NewResourceStats(true, taskstats.WorkerStats,
		completed(taskstats.Memory, 0, 10),
		completed(taskstats.CPU, 0, 20),
	)
	require.True(t, s.IsActive())

	// Overwrites memory, keeps CPU.
	s.Update(false, taskstats.WorkerStats, completed(taskstats.Memory, 0, 30))
	require.False(t, s.IsActive())

	ps, ok := s.Stats(taskstats.WorkerStats)
	require.True(t, ok)
	m, ok := ps.Metric(taskstats.Memory)
	require.True(t, ok)
	assert.Equal(t, int64(30), m.Total())
	m, ok = ps.Metric(taskstats.CPU)
	require.True(t, ok)
	assert.Equal(t, int64(20), m.Total())

	_, ok = s.Stats(taskstats.OperationStats)
	assert.False(t, ok)

	s.Update(true, taskstats.OperationStats, completed(taskstats.Memory, 0, 5))
	assert.Equal(t, []taskstats.Phase{taskstats.WorkerStats, taskstats.OperationStats}, s.Phases())

	s.SetActive(false)
	assert.False(t, s.IsActive())
}

func TestResourceStats_Total(t *testing.T) {
	s := taskstats.NewResourceStats(false, taskstats.WorkerStats, completed(taskstats.Memory, 100, 400))
	s.Update(false, taskstats.OperationStats, completed(taskstats.Memory, 0, 1000))

	total, ok := s.Total(taskstats.Memory, false)
	require.True(t, ok)
	assert.Equal(t, int64(300), total)

	total, ok = s.Total(taskstats.Memory, true)
	require.True(t, ok)
	assert.Equal(t, int64(1300), total)

	_, ok = s.Total(taskstats.CPU, true)
	assert.False(t, ok)
}
