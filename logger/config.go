package logger

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Formats accepted by Config.Format. The empty string means "auto".
var Formats = []string{"auto", "logfmt", "json", "console"}

// Config selects the log encoder and minimum level of the daemon logs,
// the task details lines included.
type Config struct {
	Format string        `toml:"format"`
	Level  zapcore.Level `toml:"level"`
}

// NewConfig returns a Config that picks the encoder from the output and
// logs at info.
func NewConfig() Config {
	return Config{
		Format: "auto",
		Level:  zapcore.InfoLevel,
	}
}

// Validate rejects unknown formats and levels above fatal.
func (c Config) Validate() error {
	if c.Level < zapcore.DebugLevel || c.Level > zapcore.FatalLevel {
		return fmt.Errorf("unsupported log level %q", c.Level)
	}
	if c.Format == "" {
		return nil
	}
	for _, f := range Formats {
		if c.Format == f {
			return nil
		}
	}
	return fmt.Errorf("unknown logging format %q; supported formats are %q", c.Format, Formats)
}
