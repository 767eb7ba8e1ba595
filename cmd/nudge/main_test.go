package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `store:
  driver: file
  path: ` + filepath.Join(dir, "state.json") + `
userdata:
  path: ` + filepath.Join(dir, "userdata.yaml") + `
observability:
  log_level: error
  metrics:
    enabled: false
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, cfg, "parse", "stretch in 30 minutes")
	require.NoError(t, err)
	assert.Contains(t, out, "in 30 minutes")
	assert.Contains(t, out, "In 30 minutes")

	out, err = run(t, cfg, "parse", "--json", "nothing here")
	require.NoError(t, err)
	assert.Contains(t, out, `"has_time": false`)
}

func TestRemindAndList(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, cfg, "remind", "--id", "n1", "call mom in 2 hours")
	require.NoError(t, err)
	assert.Contains(t, out, "Reminder: call mom")

	out, err = run(t, cfg, "notifications")
	require.NoError(t, err)
	assert.Contains(t, out, "Reminder: call mom")

	_, err = run(t, cfg, "remind", "--id", "n1", "call mom in 3 hours")
	require.NoError(t, err)
	out, err = run(t, cfg, "notifications")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "Reminder: call mom"), "same note id replaces its reminder")

	_, err = run(t, cfg, "notifications", "clear")
	require.NoError(t, err)
	out, err = run(t, cfg, "notifications")
	require.NoError(t, err)
	assert.Contains(t, out, "no pending notifications")
}

func TestRemindWithoutTimeExitsTwo(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := run(t, cfg, "remind", "buy milk")
	require.Error(t, err)
	var exitErr *ExitCodeError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
}

func TestLocationsCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, cfg, "locations", "add", "--name", "Home", "--type", "home", "--lat", "37.77", "--lng", "-122.42", "--on-exit")
	require.NoError(t, err)
	assert.Contains(t, out, "saved Home")

	out, err = run(t, cfg, "locations")
	require.NoError(t, err)
	assert.Contains(t, out, "Home")
	assert.Contains(t, out, "enter+exit")

	_, err = run(t, cfg, "locations", "add", "--name", "Cabin", "--type", "cabin")
	assert.Error(t, err)

	_, err = run(t, cfg, "locations", "remove", "missing")
	assert.Error(t, err)
}

func TestSettingsCommand(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, cfg, "settings", "--smart-filter=false")
	require.NoError(t, err)
	assert.Regexp(t, `smart_filtering_enabled\s+off`, out)

	out, err = run(t, cfg, "settings")
	require.NoError(t, err)
	assert.Regexp(t, `smart_filtering_enabled\s+off`, out)
	assert.Regexp(t, `auto_detect_stores\s+on`, out)
}

func TestRescheduleThrottle(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, cfg, "reschedule")
	require.NoError(t, err)
	assert.Contains(t, out, "rescheduled")

	out, err = run(t, cfg, "reschedule")
	require.NoError(t, err)
	assert.Contains(t, out, "throttled")

	out, err = run(t, cfg, "reschedule", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "rescheduled")

	_, err = run(t, cfg, "cancel-all")
	require.NoError(t, err)
	out, err = run(t, cfg, "reschedule")
	require.NoError(t, err)
	assert.Contains(t, out, "rescheduled")
}
