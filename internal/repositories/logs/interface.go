// Package logs keeps the append-only activity journal shown to the user.
package logs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/models"
)

type Repository interface {
	Append(ctx context.Context, message string, at time.Time) error
	Recent(ctx context.Context, limit int) ([]models.LogEntry, error)
	Count(ctx context.Context) (int, error)
	// Prune deletes everything but the newest max entries and returns the
	// number of rows removed.
	Prune(ctx context.Context, max int) (int64, error)
}
