// Package toml holds the TOML value types used in taskstats config files.
package toml

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Duration is a time.Duration written in config files as a duration string
// such as "90s" or "1m30s". Whole days may be written with a "d" suffix.
type Duration time.Duration

// String returns the string representation of the duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses a duration string. An empty value leaves d unchanged.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		return nil
	}

	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q", s)
		}
		*d = Duration(time.Duration(n) * day)
		return nil
	}

	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalText writes the duration in the form accepted by UnmarshalText.
func (d Duration) MarshalText() (text []byte, err error) {
	return []byte(d.String()), nil
}
