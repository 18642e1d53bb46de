package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DurationLiteral logs a duration as its string form rather than as nanoseconds.
func DurationLiteral(key string, val time.Duration) zapcore.Field {
	return zap.String(key, val.String())
}

// Operation returns a field naming the long-running operation a log line belongs to.
func Operation(name string) zapcore.Field {
	return zap.String("op_name", name)
}

// Shutdown returns a field used when a service is closing.
func Shutdown(val bool) zapcore.Field {
	return zap.Bool("shutdown", val)
}
