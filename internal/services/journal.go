package services

import (
	"context"

	"github.com/dmitrijs2005/gophbeat/internal/logging"
)

// LogStore persists user-facing activity log lines.
type LogStore interface {
	AppendLog(ctx context.Context, message string) error
}

// Journal writes an activity line to the durable log and to the process
// logger. Persistence failures never reach the caller.
type Journal struct {
	store  LogStore
	logger logging.Logger
}

func NewJournal(store LogStore, logger logging.Logger) *Journal {
	return &Journal{store: store, logger: logger}
}

// Record logs message. Extra args are passed to the process logger only.
func (j *Journal) Record(ctx context.Context, message string, args ...any) {
	j.logger.Info(ctx, message, args...)
	if j.store == nil {
		return
	}
	if err := j.store.AppendLog(ctx, message); err != nil {
		j.logger.Warn(ctx, "failed to persist log entry", "error", err)
	}
}
