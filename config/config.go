// Package config loads the YAML configuration shared by the mdquery tools.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mwantia/mdquery/engine"
	"github.com/mwantia/mdquery/engine/source"
	"github.com/mwantia/mdquery/engine/source/address"
	"github.com/mwantia/mdquery/engine/source/mount"
	"github.com/mwantia/mdquery/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Engine  EngineConfig  `yaml:"engine"`
	Source  SourceConfig  `yaml:"source"`
	Query   QueryConfig   `yaml:"query"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	JSON    bool   `yaml:"json"`
	NoColor bool   `yaml:"no_color"`
}

type EngineConfig struct {
	// Home is the prefix the home scope resolves to (default: $HOME)
	Home           string        `yaml:"home"`
	BatchInterval  time.Duration `yaml:"batch_interval"`
	RestartRetries int           `yaml:"restart_retries"`
	RestartDelay   time.Duration `yaml:"restart_delay"`
}

type SourceConfig struct {
	// Address of the source holding the whole key space
	Address string `yaml:"address"`

	// Mounts attach further sources below key prefixes, e.g. a bucket at /Volumes/photos.
	// With mounts configured, Address is mounted at "/" if set.
	Mounts []MountConfig `yaml:"mounts"`
}

type MountConfig struct {
	Path    string `yaml:"path"`
	Address string `yaml:"address"`
}

type QueryConfig struct {
	Scopes []string `yaml:"scopes"`
	Limit  int      `yaml:"limit"`
}

type MetricsConfig struct {
	// Address to serve /metrics on, disabled when empty
	Address string `yaml:"address"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Engine: EngineConfig{
			Home:           home,
			BatchInterval:  engine.DefaultBatchInterval,
			RestartRetries: engine.DefaultRestartRetries,
			RestartDelay:   engine.DefaultRestartDelay,
		},
		Source: SourceConfig{
			Address: "local:///",
		},
		Query: QueryConfig{
			Scopes: []string{source.ScopeHome},
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse '%s': %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Engine.BatchInterval <= 0 {
		return fmt.Errorf("config: batch_interval must be positive")
	}
	if c.Engine.RestartRetries < 0 || c.Engine.RestartDelay < 0 {
		return fmt.Errorf("config: restart settings must not be negative")
	}
	if c.Query.Limit < 0 {
		return fmt.Errorf("config: limit must not be negative")
	}
	if c.Source.Address == "" && len(c.Source.Mounts) == 0 {
		return fmt.Errorf("config: source address or mounts are required")
	}
	for _, m := range c.Source.Mounts {
		if m.Path == "" || m.Address == "" {
			return fmt.Errorf("config: mounts need a path and an address")
		}
	}
	return nil
}

// Logger builds the logger described by the log section. Without a file it
// writes to stderr, stdout is reserved for results.
func (c *Config) Logger(name string) *log.Logger {
	level, _ := log.ParseLevel(c.Log.Level)

	var logger *log.Logger
	if c.Log.File != "" {
		logger = log.NewLogger(name, level, c.Log.File, true)
	} else {
		logger = log.NewWriterLogger(name, level, os.Stderr)
	}
	logger.JSON = c.Log.JSON
	logger.NoColor = c.Log.NoColor

	return logger
}

// NewSource creates the configured source, combining mounts into a single
// mount source.
func (c *Config) NewSource() (source.Source, error) {
	if len(c.Source.Mounts) == 0 {
		return address.Parse(c.Source.Address)
	}

	ms := mount.NewMountSource()
	if c.Source.Address != "" {
		src, err := address.Parse(c.Source.Address)
		if err != nil {
			return nil, err
		}
		if err := ms.Mount("/", src); err != nil {
			return nil, err
		}
	}

	for _, m := range c.Source.Mounts {
		src, err := address.Parse(m.Address)
		if err != nil {
			return nil, err
		}
		if err := ms.Mount(m.Path, src); err != nil {
			return nil, err
		}
	}

	return ms, nil
}

// NewEngine creates the configured source and wraps it in an engine.
// The engine still has to be opened.
func (c *Config) NewEngine(logger *log.Logger) (*engine.Engine, error) {
	src, err := c.NewSource()
	if err != nil {
		return nil, err
	}

	return engine.New(src,
		engine.WithLogger(logger),
		engine.WithHome(c.Engine.Home),
		engine.WithBatchInterval(c.Engine.BatchInterval),
		engine.WithRestart(c.Engine.RestartRetries, c.Engine.RestartDelay),
	), nil
}
