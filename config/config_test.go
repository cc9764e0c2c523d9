package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "data/leave.db", cfg.Database.Path)
	assert.Equal(t, 10, cfg.Batch.ChunkSize)
	assert.True(t, cfg.Batch.SchedulerEnabled)
	assert.Equal(t, 24*time.Hour, cfg.Batch.SchedulerInterval)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
database:
  path: /tmp/leave-test.db
batch:
  chunk_size: 25
  scheduler_enabled: false
logger:
  level: debug
  format: console
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/leave-test.db", cfg.Database.Path)
	assert.Equal(t, 25, cfg.Batch.ChunkSize)
	assert.False(t, cfg.Batch.SchedulerEnabled)
	assert.Equal(t, "debug", cfg.Logger.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("LEAVE_SERVER_PORT", "7070")
	t.Setenv("LEAVE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Path: "data/leave.db"},
			Batch:    BatchConfig{ChunkSize: 10, SchedulerEnabled: true, SchedulerInterval: time.Hour},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Batch.ChunkSize = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Batch.SchedulerInterval = time.Second
	assert.Error(t, cfg.Validate())
}
