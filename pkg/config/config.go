// Package config loads the parent CLI configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/confinity/pkg/client"
	"github.com/jdziat/confinity/pkg/schedule"
	"github.com/jdziat/confinity/pkg/security"
	"github.com/jdziat/confinity/pkg/storage"
)

// Runner kinds.
const (
	RunnerExec   = "exec"
	RunnerDocker = "docker"
)

// Config is the parent-side configuration file.
type Config struct {
	Runner      RunnerConfig  `yaml:"runner"`
	Journal     JournalConfig `yaml:"journal"`
	Log         LogConfig     `yaml:"log"`
	Metrics     MetricsConfig `yaml:"metrics,omitempty"`
	MaxParallel int           `yaml:"maxParallel,omitempty"` // default: 16
}

// RunnerConfig selects how child processes are started.
type RunnerConfig struct {
	Kind string `yaml:"kind"` // exec, docker

	// exec
	Path string            `yaml:"path,omitempty"` // child binary, relative to the config file
	Env  map[string]string `yaml:"env,omitempty"`

	// docker
	Image   string   `yaml:"image,omitempty"`
	Binary  string   `yaml:"binary,omitempty"`  // default: docker
	Network string   `yaml:"network,omitempty"` // default: none
	Args    []string `yaml:"args,omitempty"`
}

// JournalConfig configures invocation history. An empty driver disables it.
type JournalConfig struct {
	Driver        string        `yaml:"driver,omitempty"` // sqlite, postgres
	DSN           string        `yaml:"dsn,omitempty"`
	Retention     time.Duration `yaml:"retention,omitempty"`     // e.g. 168h
	PruneSchedule string        `yaml:"pruneSchedule,omitempty"` // cron expression, default @hourly

	Pool storage.PoolConfig `yaml:"pool,omitempty"`
}

// LogConfig configures the diagnostic logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text, json
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"` // e.g. :9090
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Runner: RunnerConfig{
			Kind: RunnerExec,
			Path: "confinity-child",
		},
		Journal: JournalConfig{
			Retention:     7 * 24 * time.Hour,
			PruneSchedule: "@hourly",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		MaxParallel: 16,
	}
}

// LoadFile reads and validates a configuration file. Relative paths in the
// file are resolved against its directory.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return Parse(f, filepath.Dir(path))
}

// Parse decodes YAML from r over the defaults and validates the result.
func Parse(r io.Reader, baseDir string) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	if cfg.Runner.Kind == RunnerExec && cfg.Runner.Path != "" &&
		filepath.Base(cfg.Runner.Path) != cfg.Runner.Path && !filepath.IsAbs(cfg.Runner.Path) {
		cfg.Runner.Path = filepath.Join(baseDir, cfg.Runner.Path)
	}
	if cfg.Journal.Driver == storage.DriverSQLite && cfg.Journal.DSN != "" &&
		cfg.Journal.DSN != ":memory:" && !filepath.IsAbs(cfg.Journal.DSN) {
		cfg.Journal.DSN = filepath.Join(baseDir, cfg.Journal.DSN)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Runner.Kind {
	case RunnerExec:
		if c.Runner.Path == "" {
			return errors.New("runner.path is required for the exec runner")
		}
	case RunnerDocker:
		if c.Runner.Image == "" {
			return errors.New("runner.image is required for the docker runner")
		}
	default:
		return fmt.Errorf("invalid runner.kind: %q (valid: exec, docker)", c.Runner.Kind)
	}

	switch c.Journal.Driver {
	case "":
	case storage.DriverSQLite, storage.DriverPostgres:
		if c.Journal.DSN == "" {
			return errors.New("journal.dsn is required when journal.driver is set")
		}
		if c.Journal.Retention < 0 {
			return errors.New("journal.retention must not be negative")
		}
		if c.Journal.PruneSchedule != "" {
			if _, err := schedule.Parse(c.Journal.PruneSchedule); err != nil {
				return fmt.Errorf("journal.pruneSchedule: %w", err)
			}
		}
		if p := c.Journal.Pool; p.MaxOpenConns < 0 || p.MaxIdleConns < 0 {
			return errors.New("journal.pool connection limits must not be negative")
		}
	default:
		return fmt.Errorf("invalid journal.driver: %q (valid: sqlite, postgres)", c.Journal.Driver)
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log.format: %q (valid: text, json)", c.Log.Format)
	}

	if c.MaxParallel < 1 || c.MaxParallel > security.MaxParallel {
		return fmt.Errorf("maxParallel must be between 1 and %d", security.MaxParallel)
	}
	return nil
}

// NewRunner builds the configured runner.
func (c *Config) NewRunner() client.Runner {
	if c.Runner.Kind == RunnerDocker {
		return &client.DockerRunner{
			Image:   c.Runner.Image,
			Binary:  c.Runner.Binary,
			Network: c.Runner.Network,
			Args:    c.Runner.Args,
		}
	}

	r := &client.ExecRunner{Path: c.Runner.Path}
	if len(c.Runner.Env) > 0 {
		r.Env = os.Environ()
		for k, v := range c.Runner.Env {
			r.Env = append(r.Env, k+"="+v)
		}
	}
	return r
}

// OpenJournal opens the configured journal. It returns nil
// when no journal is configured.
func (c *Config) OpenJournal() (*storage.GormStorage, error) {
	if c.Journal.Driver == "" {
		return nil, nil
	}
	return storage.Open(c.Journal.Driver, c.Journal.DSN, storage.WithPoolConfig(c.Journal.Pool))
}
