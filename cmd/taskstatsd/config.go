package main

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/influxdata/taskstats/logger"
	"github.com/influxdata/taskstats/topn"
)

// Config represents the sections of the taskstatsd config file that are
// not plain command line options.
type Config struct {
	Logging logger.Config `toml:"logging"`
	TopN    topn.Config   `toml:"task-consumers-topn"`
}

// NewConfig returns an instance of Config with reasonable defaults.
func NewConfig() *Config {
	return &Config{
		Logging: logger.NewConfig(),
		TopN:    topn.NewConfig(),
	}
}

// FromTomlFile loads the config from a TOML file.
func (c *Config) FromTomlFile(fpath string) error {
	bs, err := os.ReadFile(fpath)
	if err != nil {
		return err
	}

	// Handle any potential Byte-Order-Marks that may be in the config file.
	bom := unicode.BOMOverride(transform.Nop)
	bs, _, err = transform.Bytes(bom, bs)
	if err != nil {
		return err
	}
	return c.FromToml(string(bs))
}

// FromToml loads the config from TOML.
func (c *Config) FromToml(input string) error {
	_, err := toml.Decode(input, c)
	return err
}

// Validate returns an error if the config is invalid.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return errors.Wrap(err, "logging")
	}
	if err := c.TopN.Validate(); err != nil {
		return errors.Wrap(err, "task-consumers-topn")
	}
	return nil
}

// loadConfig returns the config stored at path, or the defaults when path
// is empty or does not exist.
func loadConfig(path string) (*Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}
	if err := c.FromTomlFile(path); err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, errors.Wrapf(err, "loading config %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
