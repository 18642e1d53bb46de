// Package http holds the HTTP plumbing shared by the taskstats endpoints.
package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	ua "github.com/mileusna/useragent"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/influxdata/taskstats/kit/tracing"
)

// Middleware constructor.
type Middleware func(http.Handler) http.Handler

// Metrics counts and times requests. Paths are reported by their route
// pattern so task ids do not create new series.
func Metrics(m *RequestMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			statusW := NewStatusResponseWriter(w)

			defer func(start time.Time) {
				statusCode := statusW.Code()
				// only log metrics for 2XX or 5XX requests
				if !reportFromCode(statusCode) {
					return
				}

				label := prometheus.Labels{
					"method":        r.Method,
					"path":          routePattern(r),
					"status":        statusW.StatusCodeClass(),
					"response_code": fmt.Sprintf("%d", statusCode),
					"user_agent":    UserAgent(r),
				}
				m.duration.With(label).Observe(time.Since(start).Seconds())
				m.requests.With(label).Inc()
			}(time.Now())

			next.ServeHTTP(statusW, r)
		}
		return http.HandlerFunc(fn)
	}
}

// Trace starts a span per request, continuing the trace found in the
// request headers.
func Trace(name string) Middleware {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			span, r := tracing.ExtractFromHTTPRequest(r, name)
			defer span.Finish()

			span.LogKV("user_agent", UserAgent(r))
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

// UserAgent returns the name of the client that sent r.
func UserAgent(r *http.Request) string {
	header := r.Header.Get("User-Agent")
	if header == "" {
		return "unknown"
	}
	return ua.Parse(header).Name
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// reportFromCode is a helper function to determine if telemetry data should be
// reported for this response.
func reportFromCode(c int) bool {
	return (c >= 200 && c <= 299) || (c >= 500 && c <= 599)
}

// RequestMetrics holds the request counter and latency histogram filled by Metrics.
type RequestMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRequestMetrics returns request metrics in the http subsystem of namespace.
func NewRequestMetrics(namespace string) *RequestMetrics {
	labels := []string{"method", "path", "status", "response_code", "user_agent"}
	return &RequestMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of http requests received",
		}, labels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time taken to respond to HTTP request",
		}, labels),
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *RequestMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.duration}
}
