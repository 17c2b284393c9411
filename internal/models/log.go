package models

import "time"

type LogEntry struct {
	ID        int64
	Message   string
	Timestamp time.Time
}
