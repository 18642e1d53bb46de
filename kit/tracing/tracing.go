// Package tracing holds the opentracing helpers used by the task accounting services.
package tracing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	jaegerconfig "github.com/uber/jaeger-client-go/config"
)

const (
	// NoTracing leaves the global noop tracer in place.
	NoTracing = ""
	// JaegerTracing enables tracing via the Jaeger client library,
	// configured from the JAEGER_* environment variables.
	JaegerTracing = "jaeger"
)

// LogError adds a span log for an error.
// Returns unchanged error, so useful to wrap as in:
//
// return 0, tracing.LogError(span, err)
func LogError(span opentracing.Span, err error) error {
	if err != nil {
		span.LogFields(log.Error(err))
	}
	return err
}

// ExtractFromHTTPRequest starts a span for handlerName that continues the
// trace referenced in the request headers, or a new trace when there is none.
func ExtractFromHTTPRequest(req *http.Request, handlerName string) (opentracing.Span, *http.Request) {
	spanContext, err := opentracing.GlobalTracer().Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))
	if err != nil {
		span, ctx := opentracing.StartSpanFromContext(req.Context(), handlerName+":"+req.URL.Path)
		span.LogFields(log.String("trace-extract-error", err.Error()))
		return span, req.WithContext(ctx)
	}

	span := opentracing.StartSpan(handlerName+":"+req.URL.Path, opentracing.ChildOf(spanContext))
	return span, req.WithContext(opentracing.ContextWithSpan(req.Context(), span))
}

// StartSpanFromContext starts a span named operation as a child of the span
// in ctx, if any, and logs the file:line of the caller.
func StartSpanFromContext(ctx context.Context, operation string) (opentracing.Span, context.Context) {
	if ctx == nil {
		panic("StartSpanFromContext called with nil context")
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, operation)
	if _, file, line, ok := runtime.Caller(1); ok {
		span.LogFields(log.String("location", fmt.Sprintf("%s:%d", file, line)))
	}
	return span, ctx
}

// NewTracer returns the tracer selected by tracingType and a closer flushing
// it. An empty type returns the noop tracer.
func NewTracer(serviceName, tracingType string) (opentracing.Tracer, io.Closer, error) {
	switch tracingType {
	case NoTracing:
		return opentracing.NoopTracer{}, io.NopCloser(nil), nil
	case JaegerTracing:
		cfg, err := jaegerconfig.FromEnv()
		if err != nil {
			return nil, nil, err
		}
		if cfg.ServiceName == "" {
			cfg.ServiceName = serviceName
		}
		return cfg.NewTracer()
	default:
		return nil, nil, fmt.Errorf("unknown tracing type %q; supported types are %q", tracingType, JaegerTracing)
	}
}
