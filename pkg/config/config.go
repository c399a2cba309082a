// Package config loads the optional YAML runtime configuration: which
// analyzer binary to run, its environment, initialization options, and the
// per-class request timeouts. Everything has a sensible default; a missing
// config file is not an error.
package config

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	DefaultCommand = "rust-analyzer"

	DefaultStartupTimeout     = 60 * time.Second
	DefaultInteractiveTimeout = 5 * time.Second
	DefaultWorkspaceTimeout   = 30 * time.Second
)

type Config struct {
	Analyzer Analyzer `yaml:"analyzer,omitempty"`
	Timeouts Timeouts `yaml:"timeouts,omitempty"`

	// WatchFiles re-synchronizes open documents when they change on disk.
	WatchFiles *bool `yaml:"watch_files,omitempty"`
}

type Analyzer struct {
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	// Env entries in KEY=VALUE form, appended to the inherited environment.
	Env []string `yaml:"env,omitempty"`
	// InitializationOptions are passed verbatim to the analyzer's
	// initialize request, replacing the built-in defaults.
	InitializationOptions map[string]any `yaml:"initialization_options,omitempty"`
}

type Timeouts struct {
	Startup     time.Duration `yaml:"startup,omitempty"`
	Interactive time.Duration `yaml:"interactive,omitempty"`
	Workspace   time.Duration `yaml:"workspace,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file\n%s", yaml.FormatError(err, true, true))
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Analyzer.Command = cmp.Or(c.Analyzer.Command, DefaultCommand)
	c.Timeouts.Startup = cmp.Or(c.Timeouts.Startup, DefaultStartupTimeout)
	c.Timeouts.Interactive = cmp.Or(c.Timeouts.Interactive, DefaultInteractiveTimeout)
	c.Timeouts.Workspace = cmp.Or(c.Timeouts.Workspace, DefaultWorkspaceTimeout)
	if c.WatchFiles == nil {
		watch := true
		c.WatchFiles = &watch
	}
}

func (c *Config) validate() error {
	if c.Timeouts.Startup < 0 || c.Timeouts.Interactive < 0 || c.Timeouts.Workspace < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}
