// Package config loads service configuration from a YAML file with
// environment-variable overrides. Every field has a default good enough
// for local development against SQLite.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Bus      BusConfig      `yaml:"bus"`
	Log      LogConfig      `yaml:"log"`

	// Defs optionally points at a YAML entity-kind registry that
	// replaces the builtin one.
	Defs string `yaml:"defs"`
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// BusConfig configures the post-commit notification publisher. With no
// brokers configured, notifications stay in process.
type BusConfig struct {
	Brokers     []string          `yaml:"brokers"`
	Topic       string            `yaml:"topic"`
	TopicByKind map[string]string `yaml:"topic_by_kind"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "si.db"},
		Bus:      BusConfig{Topic: "si.events"},
		Log:      LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads the YAML file at path, if any, and applies environment
// overrides on top. An empty path skips the file and loads defaults plus
// environment only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays SI_* environment variables. Only variables that are
// set override the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SI_DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("SI_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SI_BUS_BROKERS"); v != "" {
		c.Bus.Brokers = splitList(v)
	}
	if v := os.Getenv("SI_BUS_TOPIC"); v != "" {
		c.Bus.Topic = v
	}
	if v := os.Getenv("SI_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SI_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("SI_DEFS"); v != "" {
		c.Defs = v
	}
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database dsn is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if len(c.Bus.Brokers) > 0 && c.Bus.Topic == "" {
		return fmt.Errorf("config: bus topic is required when brokers are set")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
