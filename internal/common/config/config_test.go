package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Storage.Root)
	assert.Equal(t, int64(1024*1024), cfg.Storage.MaxFileBytes)
	assert.Equal(t, 20000, cfg.Supervisor.BasePort)
	assert.Equal(t, 29999, cfg.Supervisor.MaxPort)
	assert.Equal(t, 1000, cfg.Logs.BufferCapacity)
	assert.Empty(t, cfg.NATS.URL)
	assert.False(t, cfg.Deploy.SkipInstallSteps)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOSTELITE_SERVER_PORT", "9090")
	t.Setenv("HOSTELITE_STORAGE_ROOT", "/tmp/hostelite-test")
	t.Setenv("HOSTELITE_DEPLOY_SKIP_INSTALL_STEPS", "true")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/hostelite-test", cfg.Storage.Root)
	assert.True(t, cfg.Deploy.SkipInstallSteps)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("server:\n  port: 7070\nlogging:\n  level: debug\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty storage root", func(c *Config) { c.Storage.Root = "" }},
		{"backoff max below base", func(c *Config) { c.Supervisor.BackoffMax = 10; c.Supervisor.BackoffBase = 100 }},
		{"inverted port range", func(c *Config) { c.Supervisor.BasePort = 30000; c.Supervisor.MaxPort = 20000 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithPath(t.TempDir())
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}
