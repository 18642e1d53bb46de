package topn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/influxdata/taskstats/kit/prom/promtest"
	"github.com/influxdata/taskstats/toml"
)

type recordingRenderer struct {
	mu       sync.Mutex
	rendered []int64
	fail     map[int64]error
	panics   map[int64]bool
}

func (r *recordingRenderer) Render(_ context.Context, e Entry) error {
	if r.panics[e.Memory] {
		panic("render failed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered = append(r.rendered, e.Memory)
	return r.fail[e.Memory]
}

func (r *recordingRenderer) values() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.rendered...)
}

// schedulingClock is a mock clock reporting each delay passed to After.
// The service calls After once a flush is done to schedule the next one.
type schedulingClock struct {
	*clock.Mock
	scheduled chan<- struct{}
}

func (c schedulingClock) After(d time.Duration) <-chan time.Time {
	ch := c.Mock.After(d)
	c.scheduled <- struct{}{}
	return ch
}

// newTestService returns an open service driven by a mock clock and a
// channel receiving a value after each flush.
func newTestService(t *testing.T, c Config, r Renderer) (*Service, *clock.Mock, <-chan struct{}) {
	t.Helper()

	mock := clock.NewMock()
	flushed := make(chan struct{}, 16)

	s := NewService(c, r)
	s.WithLogger(zaptest.NewLogger(t))
	s.WithClock(schedulingClock{Mock: mock, scheduled: flushed})

	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s, mock, flushed
}

func waitFlush(t *testing.T, flushed <-chan struct{}) {
	t.Helper()
	select {
	case <-flushed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for flush")
	}
}

func requireNoFlush(t *testing.T, flushed <-chan struct{}) {
	t.Helper()
	select {
	case <-flushed:
		t.Fatal("unexpected flush")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_Schedule(t *testing.T) {
	c := NewConfig()
	c.Frequency = toml.Duration(10 * time.Second)

	r := &recordingRenderer{}
	s, mock, flushed := newTestService(t, c, r)

	acceptAll(s.Tracker(), 1, 2)

	// The first flush waits for the initial delay, not the frequency.
	mock.Add(10 * time.Second)
	requireNoFlush(t, flushed)

	mock.Add(InitialDelay - 10*time.Second)
	waitFlush(t, flushed)
	require.Equal(t, []int64{2, 1}, r.values())

	acceptAll(s.Tracker(), 3)
	mock.Add(5 * time.Second)
	requireNoFlush(t, flushed)

	mock.Add(5 * time.Second)
	waitFlush(t, flushed)
	require.Equal(t, []int64{2, 1, 3}, r.values())

	mfs := promtest.MustGather(t, s.PrometheusCollectors()...)
	require.Equal(t, 2.0, promtest.CounterValue(t, mfs, "taskstats_topn_flushes_total", nil))
	require.Equal(t, 3.0, promtest.CounterValue(t, mfs, "taskstats_topn_flushed_total", nil))
}

func TestService_RenderErrors(t *testing.T) {
	c := NewConfig()
	r := &recordingRenderer{
		fail:   map[int64]error{30: errors.New("disk full")},
		panics: map[int64]bool{20: true},
	}
	s, mock, flushed := newTestService(t, c, r)

	acceptAll(s.Tracker(), 10, 20, 30, 40)
	mock.Add(InitialDelay)
	waitFlush(t, flushed)

	// 20 panicked before being recorded; every other entry was attempted.
	require.Equal(t, []int64{40, 30, 10}, r.values())

	mfs := promtest.MustGather(t, s.PrometheusCollectors()...)
	require.Equal(t, 2.0, promtest.CounterValue(t, mfs, "taskstats_topn_render_errors_total", nil))

	// Later flushes still happen.
	acceptAll(s.Tracker(), 50)
	mock.Add(DefaultFrequency)
	waitFlush(t, flushed)
	require.Equal(t, []int64{40, 30, 10, 50}, r.values())
}

func TestService_Close(t *testing.T) {
	r := &recordingRenderer{}
	s, mock, flushed := newTestService(t, NewConfig(), r)

	acceptAll(s.Tracker(), 7)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	mock.Add(InitialDelay)
	requireNoFlush(t, flushed)
	require.Empty(t, r.values())
}

func TestService_Disabled(t *testing.T) {
	c := NewConfig()
	c.Enabled = false

	r := &recordingRenderer{}
	s, mock, flushed := newTestService(t, c, r)

	acceptAll(s.Tracker(), 7)
	mock.Add(InitialDelay)
	requireNoFlush(t, flushed)
	require.Empty(t, r.values())
}

func TestService_Apply(t *testing.T) {
	r := &recordingRenderer{}
	s, mock, flushed := newTestService(t, NewConfig(), r)

	acceptAll(s.Tracker(), 1, 2, 3)
	mock.Add(InitialDelay)
	waitFlush(t, flushed)

	c := NewConfig()
	c.Size = 1
	c.Frequency = toml.Duration(5 * time.Second)
	require.NoError(t, s.Apply(c))
	require.Equal(t, 5*time.Second, s.Frequency())
	require.Equal(t, 1, s.Tracker().Capacity())

	// The timer armed after the first flush still uses the old frequency.
	acceptAll(s.Tracker(), 4, 5)
	mock.Add(DefaultFrequency)
	waitFlush(t, flushed)
	require.Equal(t, []int64{3, 2, 1, 5}, r.values())

	acceptAll(s.Tracker(), 6)
	mock.Add(5 * time.Second)
	waitFlush(t, flushed)
	require.Equal(t, []int64{3, 2, 1, 5, 6}, r.values())

	c.Size = 0
	require.Error(t, s.Apply(c))
	require.Equal(t, 1, s.Tracker().Capacity())
}
