// Package conf loads and validates the relay's configuration: CLI flags
// (wired by cmd) override whatever was loaded from a YAML file, following
// the teacher's Conf/setDefaults/validate pattern.
package conf

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"rudprelay/internal/flog"
)

// Config is the full, validated configuration for one relay process.
type Config struct {
	RUDPPort    int    `yaml:"rudp_port"`
	ControlPort int    `yaml:"control_port"`
	HTTPPort    int    `yaml:"http_port"`
	RandomDrop  int    `yaml:"random_drop"`
	Daemon      bool   `yaml:"daemon"`
	PollerType  string `yaml:"poller_type"`
	WatchConfig bool   `yaml:"watch_config"`

	Log    Log          `yaml:"log"`
	SOCKS5 *SOCKS5Front `yaml:"socks5"`
	Timing TimingConfig `yaml:"timing"`
}

// LoadFromFile reads and validates a YAML config file; an empty path
// yields a Config with only the package defaults applied.
func LoadFromFile(path string) (*Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return &c, err
		}
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return &c, err
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.RUDPPort == 0 {
		c.RUDPPort = 1026
	}
	if c.ControlPort == 0 {
		c.ControlPort = 1025
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 80
	}
	if c.PollerType == "" {
		c.PollerType = "poll"
	}
	c.Log.setDefaults()
	c.Timing.setDefaults()
	if c.SOCKS5 != nil {
		c.SOCKS5.setDefaults()
	}
}

func (c *Config) validate() error {
	var allErrors []error
	if c.RandomDrop < 0 || c.RandomDrop > 100 {
		allErrors = append(allErrors, fmt.Errorf("random_drop must be 0..100, got %d", c.RandomDrop))
	}
	if c.PollerType != "poll" && c.PollerType != "select" {
		allErrors = append(allErrors, fmt.Errorf("poller_type must be 'poll' or 'select', got %q", c.PollerType))
	}
	allErrors = append(allErrors, c.Log.validate()...)
	allErrors = append(allErrors, c.Timing.validate()...)
	if c.SOCKS5 != nil {
		allErrors = append(allErrors, c.SOCKS5.validate()...)
	}
	return writeErr(allErrors)
}

func writeErr(allErrors []error) error {
	if len(allErrors) == 0 {
		return nil
	}
	var messages []string
	for _, err := range allErrors {
		messages = append(messages, err.Error())
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

// Finalize re-applies defaults and validation; callers (cmd's flag
// overrides) use it after mutating a Config built by LoadFromFile so a
// flag-supplied SOCKS5 block, say, still gets its own defaults filled in.
func (c *Config) Finalize() error {
	c.setDefaults()
	return c.validate()
}

// ApplyLive copies the subset of fields that are safe to change on a
// running relay (log level, random-drop) from other into c, used by the
// --watch-config hot-reload path. A new log level is also applied to the
// default flog.Logger; a new random_drop is recorded on c only, and an
// already-built rudp.Manager keeps the value it was constructed with.
func (c *Config) ApplyLive(other *Config) {
	if c.RandomDrop != other.RandomDrop {
		flog.Infof("conf: random_drop changed %d -> %d", c.RandomDrop, other.RandomDrop)
		c.RandomDrop = other.RandomDrop
	}
	if c.Log.Level != other.Log.Level {
		flog.Infof("conf: log level changed %q -> %q", c.Log.Level, other.Log.Level)
		c.Log.Level = other.Log.Level
		if level, err := flog.ParseLevel(other.Log.Level); err == nil {
			flog.Default().SetLevel(level)
		}
	}
}
