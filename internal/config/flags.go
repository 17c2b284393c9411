package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/flagx"
)

var ownFlags = []string{"-d", "-db", "-m", "-l", "-lf", "-w", "-p", "-i", "-t", "-r", "-n"}

// parseFlags populates cfg from the flags it owns; other arguments are
// ignored so binaries can define their own.
func parseFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "database file")
	fs.StringVar(&cfg.MirrorPath, "m", cfg.MirrorPath, "settings mirror file")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "lf", cfg.LogFormat, "log format (text or json)")
	fs.StringVar(&cfg.WorkerAddr, "w", cfg.WorkerAddr, "worker listen address")
	fs.StringVar(&cfg.PushBaseURL, "p", cfg.PushBaseURL, "public base url of the push endpoint")
	fs.StringVar(&cfg.NotifyCommand, "n", cfg.NotifyCommand, "notification command")
	interval := fs.Int("i", int(cfg.HeartbeatInterval.Seconds()), "heartbeat interval (in seconds)")
	idle := fs.Int("t", int(cfg.IdleThreshold.Seconds()), "idle threshold (in seconds)")
	timeout := fs.Int("r", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(flagx.FilterArgs(args, ownFlags)); err != nil {
		panic(err)
	}

	// only touch durations that were given, so sub-second values from JSON
	// survive the round trip through whole seconds
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.HeartbeatInterval = time.Duration(*interval) * time.Second
		case "t":
			cfg.IdleThreshold = time.Duration(*idle) * time.Second
		case "r":
			cfg.RequestTimeout = time.Duration(*timeout) * time.Second
		}
	})
}
