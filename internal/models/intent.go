package models

import "time"

// Intent is a one-shot retry request left for the background worker.
// Only one intent exists per name.
type Intent struct {
	Name         string
	RegisteredAt time.Time
	Attempts     int
	LastError    string
}
