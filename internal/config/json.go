package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/flagx"
	"github.com/dmitrijs2005/gophbeat/internal/timex"
)

// JsonConfig is a DTO used only for unmarshalling. Zero values mean "not
// set" and leave the current value alone.
type JsonConfig struct {
	DataDir      string `json:"data_dir"`
	DatabasePath string `json:"database_path"`
	MirrorPath   string `json:"mirror_path"`
	LogLevel     string `json:"log_level"`
	LogFormat    string `json:"log_format"`

	WorkerAddr  string `json:"worker_addr"`
	PushBaseURL string `json:"push_base_url"`

	HeartbeatInterval    timex.Duration `json:"heartbeat_interval"`
	IdleThreshold        timex.Duration `json:"idle_threshold"`
	NotificationWindow   timex.Duration `json:"notification_window"`
	PeriodicSyncInterval timex.Duration `json:"periodic_sync_interval"`
	SyncRetryInterval    timex.Duration `json:"sync_retry_interval"`
	OnlineCheckInterval  timex.Duration `json:"online_check_interval"`
	RequestTimeout       timex.Duration `json:"request_timeout"`

	MaxLogEntries int    `json:"max_log_entries"`
	NotifyCommand string `json:"notify_command"`
}

// parseJson overlays cfg with the file named by -c/-config, if any.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.MirrorPath, jc.MirrorPath)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.WorkerAddr, jc.WorkerAddr)
	setString(&cfg.PushBaseURL, jc.PushBaseURL)
	setString(&cfg.NotifyCommand, jc.NotifyCommand)

	setDuration(&cfg.HeartbeatInterval, jc.HeartbeatInterval)
	setDuration(&cfg.IdleThreshold, jc.IdleThreshold)
	setDuration(&cfg.NotificationWindow, jc.NotificationWindow)
	setDuration(&cfg.PeriodicSyncInterval, jc.PeriodicSyncInterval)
	setDuration(&cfg.SyncRetryInterval, jc.SyncRetryInterval)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)

	if jc.MaxLogEntries > 0 {
		cfg.MaxLogEntries = jc.MaxLogEntries
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
