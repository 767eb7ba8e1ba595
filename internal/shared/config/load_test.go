package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, 30*time.Minute, cfg.Geofence.CooldownWindow)
	assert.Equal(t, 500.0, cfg.Geofence.CooldownDistanceMeters)
	assert.Equal(t, 12*time.Hour, cfg.Smart.ThrottleInterval)
	assert.Equal(t, "07:00", cfg.Smart.DefaultWakeTime)
	assert.Equal(t, "22:00", cfg.Smart.DefaultBedTime)
}

func TestLoadMissingExplicitFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Geofence.PreviewLimit)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  driver: sqlite
  path: ` + filepath.Join(dir, "state.db") + `
geofence:
  cooldown_window: 45m
smart:
  default_wake_time: "06:30"
observability:
  log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("NUDGE_SERVER_PORT", "9911")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 45*time.Minute, cfg.Geofence.CooldownWindow)
	assert.Equal(t, 500.0, cfg.Geofence.CooldownDistanceMeters)
	assert.Equal(t, "06:30", cfg.Smart.DefaultWakeTime)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, 9911, cfg.Server.Port)
}

func TestLoadRejectsInvalidDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: redis\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestSaveRoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Store.Driver = "memory"
	cfg.Geofence.PreviewLimit = 5
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", loaded.Store.Driver)
	assert.Equal(t, 5, loaded.Geofence.PreviewLimit)
}
