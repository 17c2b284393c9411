// Package config loads runtime configuration shared by the agent and the
// worker.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-d string   data directory
//	-db string  database file (default <data dir>/gophbeat.db)
//	-m string   settings mirror file (default <data dir>/settings.json)
//	-l string   log level (debug, info, warn, error)
//	-lf string  log format (text, json)
//	-w string   worker listen address
//	-p string   public base URL of the worker's push endpoint
//	-i int      heartbeat interval (seconds)
//	-t int      idle threshold (seconds)
//	-r int      request timeout (seconds)
//	-n string   notification command
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "60s" or
// integer nanoseconds. Absent keys keep the default:
//
//	{
//	  "data_dir": "/var/lib/gophbeat",
//	  "heartbeat_interval": "60s",
//	  "idle_threshold": "2m",
//	  "notification_window": "30s",
//	  "periodic_sync_interval": "15m",
//	  "sync_retry_interval": "30s",
//	  "online_check_interval": "10s",
//	  "request_timeout": "15s",
//	  "max_log_entries": 50,
//	  "notify_command": "notify-send",
//	  "worker_addr": "127.0.0.1:8765"
//	}
package config
