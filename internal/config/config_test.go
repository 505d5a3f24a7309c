package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "si.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Bus.Brokers)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "si.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  dsn: postgres://localhost/si
bus:
  brokers: [localhost:9092]
  topic: si.test
log:
  level: debug
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/si", cfg.Database.DSN)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Bus.Brokers)
	assert.Equal(t, "si.test", cfg.Bus.Topic)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SI_DATABASE_DSN", "/tmp/override.db")
	t.Setenv("SI_BUS_BROKERS", "a:9092, b:9092")
	t.Setenv("SI_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.DSN)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Bus.Brokers)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, true},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, true},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }, true},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"brokers without topic", func(c *Config) {
			c.Bus.Brokers = []string{"a:9092"}
			c.Bus.Topic = ""
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
