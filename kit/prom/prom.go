// Package prom holds the prometheus plumbing shared by the task accounting services.
package prom

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PrometheusCollector is implemented by components that export metrics.
type PrometheusCollector interface {
	// PrometheusCollectors returns a slice of prometheus collectors
	// containing metrics for the underlying instance.
	PrometheusCollectors() []prometheus.Collector
}

// Registry wraps a prometheus.Registry and logs collectors that fail to register.
type Registry struct {
	*prometheus.Registry

	log *zap.Logger
}

// NewRegistry returns a new registry logging to log.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		Registry: prometheus.NewRegistry(),
		log:      log,
	}
}

// MustRegister registers the collectors of every component. A collector that
// fails to register is logged and skipped.
func (r *Registry) MustRegister(components ...PrometheusCollector) {
	for _, c := range components {
		for _, col := range c.PrometheusCollectors() {
			if err := r.Register(col); err != nil {
				r.log.Info("Failed to register prometheus collector", zap.Error(err))
			}
		}
	}
}

// HTTPHandler returns a handler serving the registry in the exposition format.
func (r *Registry) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{
		ErrorLog: promLogger{r.log},
	})
}

type promLogger struct {
	log *zap.Logger
}

func (l promLogger) Println(v ...interface{}) {
	l.log.Sugar().Info(v...)
}
