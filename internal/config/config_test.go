package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, "https://unifi.ui.com/", cfg.Controller.URL)
	assert.Equal(t, 9515, cfg.ChromeDriver.Port)
	assert.Equal(t, 120*time.Second, cfg.Timeouts.Login)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Download)
	assert.Equal(t, 10*time.Second, cfg.Retry.PassDelay)
	assert.Equal(t, time.Second, cfg.Status.Interval)
	assert.Equal(t, 1, cfg.Session.InvalidateAfter)
	assert.Equal(t, "badger", cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(cfg.DataDir, "unibackup.sock"), cfg.SocketPath())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/unibackup
http:
  addr: 127.0.0.1:8080
retry:
  pass_delay: 30s
storage:
  driver: json
`), 0644))
	t.Setenv("UNIBACKUP_SESSION_INVALIDATE_AFTER", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/unibackup", cfg.DataDir)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.Retry.PassDelay)
	assert.Equal(t, "json", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Session.InvalidateAfter)
	assert.Equal(t, "/var/lib/unibackup/appdata.json", cfg.StateFile())
	assert.Equal(t, "/var/lib/unibackup/backups", cfg.BackupDir())
}

func TestLoadExplicitMissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/x", Storage: StorageConfig{Driver: "badger"}}
	require.NoError(t, cfg.Validate())

	cfg.Storage.Driver = "redis"
	assert.ErrorContains(t, cfg.Validate(), "unknown storage driver")

	cfg.Storage.Driver = "json"
	require.NoError(t, cfg.Validate())

	cfg.DataDir = ""
	assert.Error(t, cfg.Validate())
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "conf", "unibackup.yaml")

	require.NoError(t, WriteDefault(path))
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Settle)
	assert.Equal(t, "100.0", cfg.ChromeDriver.MinVersion)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "pass_delay")
	assert.NotContains(t, string(raw), "passes", "the retry ladder is fixed at three passes")
}
