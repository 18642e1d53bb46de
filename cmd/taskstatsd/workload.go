package main

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/influxdata/taskstats"
	"github.com/influxdata/taskstats/sampler"
)

const (
	searchShardAction = "indices:data/read/search[phase/query]"
	opaqueIDHeader    = "X-Opaque-Id"
)

// Workload runs synthetic search-shard tasks on a set of workers. Each
// task allocates a random amount of memory between phase samples.
type Workload struct {
	Registry *taskstats.Registry
	Sampler  sampler.Sampler

	// Workers is the number of concurrent workers.
	Workers int
	// Rate is the number of tasks started per second by each worker.
	Rate float64
	// MaxAlloc is the largest allocation made by a single task, in bytes.
	MaxAlloc int

	Logger *zap.Logger
}

// NewWorkload returns a workload registering its tasks with r.
func NewWorkload(r *taskstats.Registry, s sampler.Sampler) *Workload {
	return &Workload{
		Registry: r,
		Sampler:  s,
		Workers:  1,
		Rate:     1,
		MaxAlloc: 1 << 20,
		Logger:   zap.NewNop(),
	}
}

// Run starts the workers and blocks until ctx is done or a task fails.
func (w *Workload) Run(ctx context.Context) error {
	if w.Workers < 1 || w.Rate <= 0 || w.MaxAlloc < 1 {
		return fmt.Errorf("invalid workload: workers=%d rate=%g max-alloc=%d", w.Workers, w.Rate, w.MaxAlloc)
	}

	w.Logger.Info("Starting synthetic workload",
		zap.Int("workers", w.Workers),
		zap.Float64("rate", w.Rate),
		zap.Int("max_alloc", w.MaxAlloc))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.Workers; i++ {
		i := i
		g.Go(func() error {
			return w.work(ctx, i)
		})
	}
	return g.Wait()
}

func (w *Workload) work(ctx context.Context, id int) error {
	limiter := rate.NewLimiter(rate.Limit(w.Rate), 1)
	rng := rand.New(rand.NewSource(int64(id) + 1))
	worker := fmt.Sprintf("search[T#%d]", id+1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := w.RunTask(worker, rng.Intn(w.MaxAlloc)+1); err != nil {
			return err
		}
	}
}

// RunTask runs one synthetic shard query on worker allocating n bytes.
func (w *Workload) RunTask(worker string, n int) error {
	task := w.Registry.Register(taskstats.TaskRequest{
		Type:        "transport",
		Action:      searchShardAction,
		Description: fmt.Sprintf("shardId[[synthetic][%d]]", n%5),
		Category:    taskstats.CategorySearchShard,
		Cancellable: true,
		Headers:     map[string]string{opaqueIDHeader: uuid.NewString()},
	})
	defer w.Registry.Unregister(task)

	if err := task.StartTracking(worker, taskstats.WorkerStats, w.Sampler.Start()...); err != nil {
		return err
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	runtime.KeepAlive(buf)
	return task.StopTracking(worker, taskstats.WorkerStats, w.Sampler.Stop()...)
}
