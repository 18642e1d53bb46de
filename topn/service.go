package topn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/influxdata/taskstats/kit/tracing"
	"github.com/influxdata/taskstats/logger"
)

// Service periodically flushes a Tracker and renders the flushed entries.
//
// The first flush happens InitialDelay after Open, later ones Frequency
// after the previous flush completed, so a slow renderer delays the next
// flush instead of overlapping it.
type Service struct {
	enabled   bool
	tracker   *Tracker
	renderer  Renderer
	frequency int64 // time.Duration, accessed atomically

	Logger *zap.Logger

	clock   clock.Clock
	metrics *serviceMetrics

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService returns a service flushing a new tracker into r.
func NewService(c Config, r Renderer) *Service {
	frequency := time.Duration(c.Frequency)
	if frequency <= 0 {
		frequency = DefaultFrequency
	}
	return &Service{
		enabled:   c.Enabled,
		tracker:   NewTracker(c.Size),
		renderer:  r,
		frequency: int64(frequency),
		Logger:    zap.NewNop(),
		clock:     clock.New(),
		metrics:   newServiceMetrics(),
	}
}

// WithLogger sets the logger for the service.
func (s *Service) WithLogger(log *zap.Logger) {
	s.Logger = log.With(zap.String("service", "topn-task-logger"))
}

// WithClock replaces the clock driving the flush timer. It must be called before Open.
func (s *Service) WithClock(clk clock.Clock) {
	s.clock = clk
}

// Tracker returns the tracker flushed by the service.
func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// Frequency returns the current period between flushes.
func (s *Service) Frequency() time.Duration {
	return time.Duration(atomic.LoadInt64(&s.frequency))
}

// Apply changes the leaderboard size and flush frequency of a running
// service. The new frequency takes effect after the next flush.
func (s *Service) Apply(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}
	s.tracker.SetCapacity(c.Size)
	atomic.StoreInt64(&s.frequency, int64(c.Frequency))
	s.Logger.Info("Applied top-N task logger settings",
		zap.Int("size", c.Size),
		logger.DurationLiteral("frequency", time.Duration(c.Frequency)))
	return nil
}

// Open starts the flush timer.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.cancel != nil {
		return nil
	}

	s.Logger.Info("Starting top-N task logger",
		zap.Int("size", s.tracker.Capacity()),
		logger.DurationLiteral("initial_delay", InitialDelay),
		logger.DurationLiteral("frequency", s.Frequency()))

	ctx, s.cancel = context.WithCancel(ctx)
	first := s.clock.Timer(InitialDelay)

	s.wg.Add(1)
	go s.run(ctx, first)
	return nil
}

// Close stops the flush timer. Entries not yet flushed are discarded.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}

	s.cancel()
	s.wg.Wait()
	s.cancel = nil

	return nil
}

func (s *Service) run(ctx context.Context, first *clock.Timer) {
	defer s.wg.Done()
	defer first.Stop()

	next := first.C
	for {
		select {
		case <-next:
			s.flush(ctx)
			next = s.clock.After(s.Frequency())
		case <-ctx.Done():
			s.Logger.Info("Terminating top-N task logger", logger.Shutdown(true))
			return
		}
	}
}

// flush drains the tracker and renders every entry. A failing entry does not
// stop the remaining ones.
func (s *Service) flush(ctx context.Context) {
	span, ctx := tracing.StartSpanFromContext(ctx, "topn.flush")
	defer span.Finish()

	start := s.clock.Now()
	entries := s.tracker.Flush()
	span.SetTag("entries", len(entries))

	var errs error
	for _, e := range entries {
		errs = multierr.Append(errs, s.render(ctx, e))
	}

	s.metrics.flushes.Inc()
	s.metrics.flushed.Add(float64(len(entries)))
	s.metrics.flushDuration.Observe(s.clock.Since(start).Seconds())

	if tracing.LogError(span, errs) != nil {
		failed := len(multierr.Errors(errs))
		s.metrics.renderErrors.Add(float64(failed))
		s.Logger.Warn("Failed to render expensive tasks",
			zap.Int("failed", failed),
			zap.Int("entries", len(entries)),
			zap.Error(errs))
	}
}

func (s *Service) render(ctx context.Context, e Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic rendering entry with %d bytes: %v", e.Memory, r)
		}
	}()
	return s.renderer.Render(ctx, e)
}
