package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "data/workflow.db", cfg.Database.Path)
	assert.Equal(t, 10, cfg.Engine.MaxAutoTransitions)
	assert.True(t, cfg.Engine.AutoEvaluate)
	assert.False(t, cfg.Engine.Debug)
	assert.Equal(t, "@every 1m", cfg.Scheduler.Cron)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.True(t, cfg.Workflows.Builtin)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
engine:
  max_auto_transitions: 25
  auto_evaluate: false
  debug: true
scheduler:
  cron: "*/5 * * * *"
  concurrency: 8
workflows:
  definitions_dir: ./workflows
logger:
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Engine.MaxAutoTransitions)
	assert.False(t, cfg.Engine.AutoEvaluate)
	assert.True(t, cfg.Engine.Debug)
	assert.Equal(t, "*/5 * * * *", cfg.Scheduler.Cron)
	assert.Equal(t, 8, cfg.Scheduler.Concurrency)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	assert.Equal(t, "./workflows", cfg.Workflows.DefinitionsDir)
	assert.Equal(t, "console", cfg.Logger.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/tmp/env.db")
	t.Setenv("WORKFLOW_ENGINE_MAX_AUTO_TRANSITIONS", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Engine.MaxAutoTransitions)
}

func TestLoadWithPresetValues(t *testing.T) {
	v := viper.New()
	v.Set("engine.debug", true)

	cfg, err := LoadWith(v, "")
	require.NoError(t, err)
	assert.True(t, cfg.Engine.Debug)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"zero max auto transitions", func(c *Config) { c.Engine.MaxAutoTransitions = 0 }, "engine.max_auto_transitions"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"bad cron", func(c *Config) { c.Scheduler.Cron = "every minute" }, "scheduler.cron"},
		{"bad cron ignored when disabled", func(c *Config) {
			c.Scheduler.Enabled = false
			c.Scheduler.Cron = "every minute"
		}, ""},
		{"no workflows", func(c *Config) { c.Workflows.Builtin = false }, "workflows.definitions_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
