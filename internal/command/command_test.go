package command

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localnotify/internal/scheduler"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := fmt.Sprintf(`{"storage": {"driver": "file", "path": %q}, "center": {"timezone": "UTC"}}`,
		filepath.Join(dir, "pending.json"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCLI(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(append([]string{"localnotify", "--config", cfg}, args...), &out, "test")
	return out.String(), err
}

func TestScheduleListCancel(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, cfg, "schedule", "interval", "--id", "water", "--title", "Drink", "--every", "2h", "--repeats")
	require.NoError(t, err)
	assert.Contains(t, out, "scheduled water")

	out, err = runCLI(t, cfg, "schedule", "date", "--id", "bday", "--title", "Party", "--at", "+48h", "--repeat", "yearly")
	require.NoError(t, err)
	assert.Contains(t, out, "repeat: yearly")

	out, err = runCLI(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "water")
	assert.Contains(t, out, "bday")
	assert.Contains(t, out, "NEXT FIRE")

	_, err = runCLI(t, cfg, "cancel", "water", "unknown")
	require.NoError(t, err)
	out, _ = runCLI(t, cfg, "list")
	assert.NotContains(t, out, "water")
	assert.Contains(t, out, "bday")

	_, err = runCLI(t, cfg, "cancel")
	assert.Error(t, err)
	_, err = runCLI(t, cfg, "cancel", "--all", "bday")
	assert.Error(t, err)

	_, err = runCLI(t, cfg, "cancel", "--all")
	require.NoError(t, err)
	out, _ = runCLI(t, cfg, "list")
	assert.Contains(t, out, "no pending notifications")
}

func TestRegionAndLocate(t *testing.T) {
	cfg := writeConfig(t)

	_, err := runCLI(t, cfg, "schedule", "region", "--id", "home", "--title", "Home")
	assert.Error(t, err)

	_, err = runCLI(t, cfg, "schedule", "region", "--id", "home", "--title", "Home",
		"--lat", "52.52", "--lon", "13.405", "--radius", "150")
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "locate", "52.5201", "13.4049")
	require.NoError(t, err)
	assert.Contains(t, out, "1 notification(s) fired")

	out, _ = runCLI(t, cfg, "list")
	assert.Contains(t, out, "no pending notifications")
}

func TestPermissionCommands(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, cfg, "permission")
	require.NoError(t, err)
	assert.Contains(t, out, "permission: authorized")

	_, err = runCLI(t, cfg, "permission", "set", "denied")
	require.NoError(t, err)

	_, err = runCLI(t, cfg, "schedule", "interval", "--title", "x", "--every", "1h")
	assert.ErrorIs(t, err, scheduler.ErrPermissionDenied)

	_, err = runCLI(t, cfg, "permission", "set", "maybe")
	assert.Error(t, err)
}

func TestTickFiresDueRequests(t *testing.T) {
	cfg := writeConfig(t)
	_, err := runCLI(t, cfg, "schedule", "interval", "--id", "now", "--title", "Now", "--every", "1ms")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	out, err := runCLI(t, cfg, "tick")
	require.NoError(t, err)
	assert.Contains(t, out, "1 notification(s) fired")
}

func TestParseAt(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	cases := []struct {
		raw  string
		want time.Time
	}{
		{"+90m", now.Add(90 * time.Minute)},
		{"2026-07-01T09:30:00Z", time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)},
		{"2026-07-01 09:30", time.Date(2026, 7, 1, 9, 30, 0, 0, tokyo)},
		{"2026-07-01T09:30:15", time.Date(2026, 7, 1, 9, 30, 15, 0, tokyo)},
	}
	for _, tc := range cases {
		got, err := parseAt(tc.raw, now, tokyo)
		require.NoError(t, err, tc.raw)
		assert.True(t, got.Equal(tc.want), "%s: got %s", tc.raw, got)
	}

	for _, bad := range []string{"", "tomorrow", "+soon"} {
		_, err := parseAt(bad, now, tokyo)
		assert.Error(t, err, bad)
	}
}
