package logger

import (
	"context"

	"go.uber.org/zap"
)

type loggerContextKey struct{}

// NewContextWithLogger returns a new context carrying log.
func NewContextWithLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, log)
}

// FromContext returns the zap.Logger carried by ctx, or fallback when none was attached.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, _ := ctx.Value(loggerContextKey{}).(*zap.Logger); l != nil {
		return l
	}
	return fallback
}
