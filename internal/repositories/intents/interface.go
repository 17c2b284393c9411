// Package intents persists the named one-shot retry requests that the
// foreground leaves for the background worker.
package intents

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/models"
)

type Repository interface {
	// Register creates the intent unless it already exists. The returned
	// bool is true only when a new row was written.
	Register(ctx context.Context, name string, at time.Time) (bool, error)
	Get(ctx context.Context, name string) (*models.Intent, error)
	List(ctx context.Context) ([]models.Intent, error)
	RecordAttempt(ctx context.Context, name, lastError string) error
	Resolve(ctx context.Context, name string) error
}
