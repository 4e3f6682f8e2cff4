// Package config loads the YAML configuration of the console tools.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultBufferCapacity = 4096
	DefaultConnectTimeout = 5 * time.Second
	DefaultLogLevel       = "info"
)

// Config is the configuration of the console tools.
type Config struct {
	Pipe           string        `yaml:"pipe"`
	BufferCapacity int           `yaml:"bufferCapacity"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	LogLevel       string        `yaml:"logLevel"`
	MetricsAddr    string        `yaml:"metricsAddr,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path. Unknown fields are rejected and unset
// fields take their defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config load failed (%s)", path)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "config parse failed (%s)", path)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BufferCapacity == 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Pipe) == "" {
		return errors.New("config missing pipe")
	}
	if c.BufferCapacity < 0 {
		return errors.Errorf("bufferCapacity must be positive, got %d", c.BufferCapacity)
	}
	if c.ConnectTimeout < 0 {
		return errors.Errorf("connectTimeout must not be negative, got %s", c.ConnectTimeout)
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		return errors.Errorf("unknown logLevel %q", c.LogLevel)
	}
	return nil
}

// SlogLevel returns the configured log level, or info when it is unknown.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
