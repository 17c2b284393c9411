package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for both processes.
type Config struct {
	DataDir      string
	DatabasePath string
	MirrorPath   string
	LogLevel     string
	LogFormat    string

	WorkerAddr  string
	PushBaseURL string

	HeartbeatInterval    time.Duration
	IdleThreshold        time.Duration
	NotificationWindow   time.Duration
	PeriodicSyncInterval time.Duration
	SyncRetryInterval    time.Duration
	OnlineCheckInterval  time.Duration
	RequestTimeout       time.Duration

	MaxLogEntries int
	NotifyCommand string
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir()
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.WorkerAddr = "127.0.0.1:8765"
	c.HeartbeatInterval = 60 * time.Second
	c.IdleThreshold = 120 * time.Second
	c.NotificationWindow = 30 * time.Second
	c.PeriodicSyncInterval = 15 * time.Minute
	c.SyncRetryInterval = 30 * time.Second
	c.OnlineCheckInterval = 10 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.MaxLogEntries = 50
	c.NotifyCommand = "notify-send"
}

// resolve fills the fields that default to something derived from others.
func (c *Config) resolve() {
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "gophbeat.db")
	}
	if c.MirrorPath == "" {
		c.MirrorPath = filepath.Join(c.DataDir, "settings.json")
	}
	if c.PushBaseURL == "" {
		c.PushBaseURL = "http://" + c.WorkerAddr
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".gophbeat"
	}
	return filepath.Join(dir, "gophbeat")
}

// LoadConfig builds a Config from defaults, the JSON file and flags found in
// os.Args. It panics on unreadable files and bad flags.
func LoadConfig() *Config {
	return Load(os.Args[1:])
}

// Load is LoadConfig over an explicit argument list.
func Load(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	cfg.resolve()
	return cfg
}
