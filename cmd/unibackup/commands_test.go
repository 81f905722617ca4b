package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangthinker/unibackup/internal/config"
	"github.com/tangthinker/unibackup/internal/schedule"
	"github.com/tangthinker/unibackup/internal/status"
	"github.com/tangthinker/unibackup/internal/store"
)

func TestApplyScheduleArgs(t *testing.T) {
	cfg := schedule.DefaultConfig()

	require.NoError(t, applyScheduleArgs(&cfg, []string{"backup", "12", "hours"}))
	assert.Equal(t, schedule.Job{Enabled: true, Value: 12, Unit: schedule.UnitHour}, cfg.Backup)

	require.NoError(t, applyScheduleArgs(&cfg, []string{"check", "off"}))
	assert.False(t, cfg.Check.Enabled)
	assert.Equal(t, 4, cfg.Check.Value, "disabling keeps the interval")

	require.NoError(t, applyScheduleArgs(&cfg, []string{"CHECK", "on"}))
	assert.True(t, cfg.Check.Enabled)

	assert.Error(t, applyScheduleArgs(&cfg, []string{"cleanup", "1", "day"}))
	assert.Error(t, applyScheduleArgs(&cfg, []string{"backup", "soon"}))
	assert.Error(t, applyScheduleArgs(&cfg, []string{"backup", "x", "day"}))
	assert.ErrorIs(t, applyScheduleArgs(&cfg, []string{"backup", "2", "weeks"}), schedule.ErrUnknownUnit)
}

func TestParseID(t *testing.T) {
	id, err := parseID("3")
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	_, err = parseID("0")
	assert.Error(t, err)
	_, err = parseID("abc")
	assert.Error(t, err)
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unibackup.pid")
	assert.False(t, checkRunningDaemon(path))

	require.NoError(t, createPIDFile(path))
	assert.True(t, checkRunningDaemon(path), "the test process is alive")

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	assert.False(t, checkRunningDaemon(path))
	assert.NoFileExists(t, path, "a stale file is removed")

	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<22+12345)), 0644))
	assert.False(t, checkRunningDaemon(path))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	_, err = newLogger(config.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}

func TestRenderStatus(t *testing.T) {
	last := time.Now()
	out := renderStatus(status.Snapshot{
		SessionLoggedIn: true,
		Targets: []store.Target{
			{ID: 1, Name: "Site A", Status: "Success", LastTime: &last},
			{ID: 2, Name: "Site B", Status: store.StatusUnknown},
		},
		Logs: []store.LogEntry{
			{Timestamp: time.Now(), Message: "newest"},
			{Timestamp: time.Now(), Message: "older"},
		},
		NextTrigger: &status.NextTrigger{Label: schedule.LabelBackup, SecondsRemaining: 90},
	}, 1)

	assert.Contains(t, out, "logged in")
	assert.Contains(t, out, "Site A")
	assert.Contains(t, out, "BackupJob in 1m30s")
	assert.Contains(t, out, "newest")
	assert.NotContains(t, out, "older")
}
