package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, 60*time.Second, c.HeartbeatInterval)
	assert.Equal(t, 120*time.Second, c.IdleThreshold)
	assert.Equal(t, 30*time.Second, c.NotificationWindow)
	assert.Equal(t, 15*time.Minute, c.PeriodicSyncInterval)
	assert.Equal(t, 30*time.Second, c.SyncRetryInterval)
	assert.Equal(t, 10*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 15*time.Second, c.RequestTimeout)
	assert.Equal(t, 50, c.MaxLogEntries)
	assert.Equal(t, "notify-send", c.NotifyCommand)
	assert.Equal(t, "127.0.0.1:8765", c.WorkerAddr)
	assert.NotEmpty(t, c.DataDir)
}

func TestLoad_DerivedPaths(t *testing.T) {
	cfg := Load([]string{"-d", "/tmp/beat"})

	require.NotNil(t, cfg)
	assert.Equal(t, filepath.Join("/tmp/beat", "gophbeat.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join("/tmp/beat", "settings.json"), cfg.MirrorPath)
	assert.Equal(t, "http://127.0.0.1:8765", cfg.PushBaseURL)
}

func writeJSON(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_JSONThenFlags(t *testing.T) {
	path := writeJSON(t, `{
		"data_dir": "/srv/beat",
		"heartbeat_interval": "500ms",
		"idle_threshold": "5m",
		"request_timeout": 3000000000,
		"worker_addr": "127.0.0.1:9000",
		"max_log_entries": 20
	}`)

	cfg := Load([]string{"-c", path, "-t", "30", "-once", "sync"})

	assert.Equal(t, "/srv/beat", cfg.DataDir)
	assert.Equal(t, 500*time.Millisecond, cfg.HeartbeatInterval, "not overridden by the flag default")
	assert.Equal(t, 30*time.Second, cfg.IdleThreshold, "flag wins over json")
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 20, cfg.MaxLogEntries)
	assert.Equal(t, 30*time.Second, cfg.NotificationWindow, "absent keys keep defaults")
	assert.Equal(t, "http://127.0.0.1:9000", cfg.PushBaseURL)
}

func TestLoad_PanicsOnBadInput(t *testing.T) {
	assert.Panics(t, func() { Load([]string{"-c", filepath.Join(t.TempDir(), "missing.json")}) })
	assert.Panics(t, func() { Load([]string{"-c", writeJSON(t, `{"heartbeat_interval": true}`)}) })
	assert.Panics(t, func() { Load([]string{"-i", "soon"}) })
}
