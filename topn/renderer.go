package topn

import (
	"context"
	"encoding/json"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/influxdata/taskstats/logger"
)

// DetailsLoggerName is the name of the logger expensive search tasks are written to.
const DetailsLoggerName = "task.detailslog.search"

// Renderer renders one flushed leaderboard entry.
type Renderer interface {
	Render(ctx context.Context, e Entry) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, e Entry) error

// Render calls f(ctx, e).
func (f RendererFunc) Render(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// LogRenderer writes one task details line per entry.
type LogRenderer struct {
	log *zap.Logger
}

// NewLogRenderer returns a renderer writing to a child of log named DetailsLoggerName.
func NewLogRenderer(log *zap.Logger) *LogRenderer {
	return &LogRenderer{log: log.Named(DetailsLoggerName)}
}

// Render logs the accounting context of the entry's task.
func (r *LogRenderer) Render(ctx context.Context, e Entry) error {
	ac := e.Task.AccountingContext()
	stats, err := json.Marshal(ac.Snapshots())
	if err != nil {
		return err
	}
	r.log.Info("Expensive task",
		zap.Int64("task_id", ac.TaskID),
		zap.String("type", ac.Type),
		zap.String("action", ac.Action),
		zap.String("description", ac.Description),
		zap.Time("start_time", ac.StartTime),
		logger.DurationLiteral("running_time", ac.RunningTime()),
		zap.String("parent_task_id", ac.ParentTaskID),
		zap.Int64("memory_in_bytes", e.Memory),
		zap.String("memory", humanize.IBytes(uint64(e.Memory))),
		zap.ByteString("resource_stats", stats),
	)
	return nil
}
