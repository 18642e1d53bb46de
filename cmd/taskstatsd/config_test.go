package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestConfig_Parse(t *testing.T) {
	c := NewConfig()
	if err := c.FromToml(`
workers = 8

[logging]
format = "json"
level = "debug"

[task-consumers-topn]
size = 5
frequency = "15s"
`); err != nil {
		t.Fatal(err)
	}

	if c.Logging.Format != "json" {
		t.Fatalf("unexpected logging format: %s", c.Logging.Format)
	} else if c.Logging.Level != zapcore.DebugLevel {
		t.Fatalf("unexpected logging level: %s", c.Logging.Level)
	} else if !c.TopN.Enabled {
		t.Fatal("top-N logger should stay enabled by default")
	} else if c.TopN.Size != 5 {
		t.Fatalf("unexpected size: %d", c.TopN.Size)
	} else if time.Duration(c.TopN.Frequency) != 15*time.Second {
		t.Fatalf("unexpected frequency: %s", c.TopN.Frequency)
	}
}

func TestConfig_Validate(t *testing.T) {
	c := NewConfig()
	c.TopN.Size = -1
	if err := c.Validate(); err == nil || err.Error() != "task-consumers-topn: size must be positive" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	c := NewConfig()
	c.Logging.Format = "xml"
	if err := c.Validate(); err == nil || !strings.HasPrefix(err.Error(), "logging: unknown logging format") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	c, err := loadConfig(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatal(err)
	} else if c.TopN.Size != NewConfig().TopN.Size {
		t.Fatalf("missing file should load defaults: %+v", c)
	}

	// Byte-order marks are ignored.
	path := filepath.Join(dir, "taskstatsd.toml")
	if err := os.WriteFile(path, []byte("\xef\xbb\xbf[task-consumers-topn]\nsize = 3\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if c, err = loadConfig(path); err != nil {
		t.Fatal(err)
	} else if c.TopN.Size != 3 {
		t.Fatalf("unexpected size: %d", c.TopN.Size)
	}

	if err := os.WriteFile(path, []byte("[task-consumers-topn]\nsize = 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected validation error")
	}
}
