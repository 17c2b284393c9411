package models

// Source names the delivery path that produced a heartbeat.
type Source string

const (
	SourceForeground Source = "foreground"
	SourceSync       Source = "background"
	SourcePeriodic   Source = "periodic"
	SourcePush       Source = "push"
)

// Background reports whether the source runs in the worker process.
func (s Source) Background() bool {
	return s != SourceForeground
}
