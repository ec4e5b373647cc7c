// Package config loads the optional cliconform YAML configuration file.
//
// Every field has a default, so a missing file is not an error when no path
// was given explicitly. Command-line flags override file values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cliconform/internal/artifact"
	"github.com/roach88/cliconform/internal/process"
)

// DefaultFile is read from the working directory when no --config is given.
const DefaultFile = "cliconform.yaml"

// Config is the file format.
type Config struct {
	// Compiler is the executable under test.
	Compiler string `yaml:"compiler,omitempty"`

	// Artifacts is the output naming convention for the overwrite command.
	Artifacts artifact.Naming `yaml:"artifacts,omitempty"`

	// Database is the run-history SQLite path. Empty disables recording.
	Database string `yaml:"database,omitempty"`

	// Parallel bounds concurrently running scenarios.
	Parallel int `yaml:"parallel,omitempty"`

	// Timeout bounds each compiler invocation (Go duration). Empty means none.
	Timeout string `yaml:"timeout,omitempty"`

	// Capture is "pipe" or "pty".
	Capture string `yaml:"capture,omitempty"`

	// WorkspacePrefix names temporary workspaces.
	WorkspacePrefix string `yaml:"workspace_prefix,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Artifacts: artifact.DefaultNaming,
		Parallel:  1,
		Capture:   "pipe",
	}
}

// Load reads path. An empty path reads DefaultFile if it exists and
// returns Default otherwise.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a configuration strictly and applies defaults.
func Parse(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Artifacts = cfg.Artifacts.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := process.ParseCaptureMode(c.Capture); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration parses Timeout. Zero means no timeout.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must be non-negative")
	}
	return d, nil
}

// CaptureMode parses Capture.
func (c Config) CaptureMode() process.CaptureMode {
	mode, _ := process.ParseCaptureMode(c.Capture)
	return mode
}
