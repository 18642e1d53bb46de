package topn

import (
	"errors"
	"time"

	"github.com/influxdata/taskstats/toml"
)

const (
	// DefaultSize is the number of expensive tasks logged per window.
	DefaultSize = 10

	// DefaultFrequency is the period between two flushes of the leaderboard.
	DefaultFrequency = 60 * time.Second

	// InitialDelay is the time between opening the service and its first
	// flush. It does not depend on the configured frequency.
	InitialDelay = 60 * time.Second
)

// Config represents the configuration for the top-N expensive task logger.
type Config struct {
	Enabled   bool          `toml:"enabled"`
	Size      int           `toml:"size"`
	Frequency toml.Duration `toml:"frequency"`
}

// NewConfig returns a new Config with defaults.
func NewConfig() Config {
	return Config{
		Enabled:   true,
		Size:      DefaultSize,
		Frequency: toml.Duration(DefaultFrequency),
	}
}

// Validate returns an error if the Config is invalid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Size <= 0 {
		return errors.New("size must be positive")
	}
	if c.Frequency <= 0 {
		return errors.New("frequency must be positive")
	}

	return nil
}
