package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/influxdata/taskstats"
	"github.com/influxdata/taskstats/kit/cli"
	"github.com/influxdata/taskstats/kit/prom"
	"github.com/influxdata/taskstats/kit/tracing"
	kithttp "github.com/influxdata/taskstats/kit/transport/http"
	"github.com/influxdata/taskstats/logger"
	"github.com/influxdata/taskstats/sampler"
	"github.com/influxdata/taskstats/topn"
)

const shutdownTimeout = 5 * time.Second

// Launcher wires the registry, the top-N service and the synthetic workload
// together and serves their metrics.
type Launcher struct {
	viper *viper.Viper

	node            string
	httpBindAddress string
	logLevel        zapcore.Level
	tracingType     string
	workers         int
	rate            float64
	maxAlloc        int

	log      *zap.Logger
	registry *taskstats.Registry
	topn     *topn.Service
	workload *Workload
	reg      *prom.Registry

	httpServer *http.Server
}

// NewCommand returns the taskstatsd command. Options may also be set with
// TASKSTATSD_ environment variables or in the config file named by
// TASKSTATSD_CONFIG_PATH, which additionally holds the [logging] and
// [task-consumers-topn] sections.
func NewCommand(ctx context.Context, v *viper.Viper) (*cobra.Command, error) {
	l := &Launcher{viper: v}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "node-1"
	}

	return cli.NewCommand(v, &cli.Program{
		Name: "taskstatsd",
		Run: func() error {
			return l.Run(ctx)
		},
		Opts: []cli.Opt{
			cli.NewOpt(&l.node, "node", hostname, "name of the node tasks are registered on"),
			cli.NewOpt(&l.httpBindAddress, "http-bind-address", ":9274", "bind address for the metrics and task listing endpoints"),
			cli.NewOpt(&l.logLevel, "log-level", zapcore.InfoLevel, "supported log levels are debug, info, warn and error; overrides the config file"),
			cli.NewOpt(&l.tracingType, "tracing-type", "", fmt.Sprintf("supported tracing types are %q; empty disables tracing", tracing.JaegerTracing)),
			cli.NewOpt(&l.workers, "workers", 4, "number of synthetic search workers"),
			cli.NewOpt(&l.rate, "rate", 2.0, "tasks started per second by each worker"),
			cli.NewOpt(&l.maxAlloc, "max-alloc", 8<<20, "largest allocation of a synthetic task in bytes"),
		},
	})
}

// Run builds every component and blocks until ctx is done.
func (l *Launcher) Run(ctx context.Context) error {
	configPath := l.viper.ConfigFileUsed()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if l.viper.IsSet("log-level") {
		cfg.Logging.Level = l.logLevel
	}

	if l.log, err = cfg.Logging.New(os.Stdout); err != nil {
		return err
	}
	defer l.log.Sync()

	if configPath != "" {
		l.log.Info("Loaded config", zap.String("path", configPath))
	}

	tracer, closer, err := tracing.NewTracer("taskstatsd", l.tracingType)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			l.log.Warn("Failed to close tracer", zap.Error(err))
		}
	}()
	opentracing.SetGlobalTracer(tracer)
	if l.tracingType != tracing.NoTracing {
		l.log.Info("Tracing enabled", zap.String("type", l.tracingType))
	}

	l.registry = taskstats.NewRegistry(l.node, nil)
	l.registry.WithLogger(l.log)

	l.topn = topn.NewService(cfg.TopN, topn.NewLogRenderer(l.log))
	l.topn.WithLogger(l.log)
	l.registry.AddConsumer(l.topn.Tracker().Consumer())

	l.reg = prom.NewRegistry(l.log.With(zap.String("service", "prom_registry")))
	l.reg.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := kithttp.NewRequestMetrics("taskstats")
	l.reg.MustRegister(l.registry, l.topn, httpMetrics)

	l.workload = NewWorkload(l.registry, sampler.NewRuntimeSampler())
	l.workload.Workers = l.workers
	l.workload.Rate = l.rate
	l.workload.MaxAlloc = l.maxAlloc
	l.workload.Logger = l.log.With(zap.String("service", "workload"))

	if err := l.topn.Open(ctx); err != nil {
		return err
	}
	defer l.topn.Close()

	if configPath != "" {
		l.watchConfig(configPath)
	}

	ln, err := net.Listen("tcp", l.httpBindAddress)
	if err != nil {
		return err
	}
	l.httpServer = &http.Server{
		Handler: NewHandler(l.log.With(zap.String("service", "http")), l.registry, l.reg, httpMetrics),
	}
	l.log.Info("Listening", zap.String("transport", "http"), zap.String("addr", ln.Addr().String()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := l.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return l.httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return l.workload.Run(ctx)
	})

	err = g.Wait()
	l.log.Info("Stopping", logger.Shutdown(true))
	return err
}

// watchConfig re-applies the top-N settings whenever the config file changes.
func (l *Launcher) watchConfig(path string) {
	l.viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := loadConfig(path)
		if err != nil {
			l.log.Warn("Ignoring invalid config change", zap.String("path", e.Name), zap.Error(err))
			return
		}
		if err := l.topn.Apply(cfg.TopN); err != nil {
			l.log.Warn("Failed to apply config change", zap.String("path", e.Name), zap.Error(err))
		}
	})
	l.viper.WatchConfig()
}
