// Package worker is the background execution context. It reacts to
// lifecycle, sync, periodic sync, push, fetch and message events through a
// fixed set of handlers and runs them as a daemon or one event at a time.
package worker

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/gophbeat/internal/models"
)

// Handlers is the full set of events the background context reacts to.
type Handlers interface {
	OnInstall(ctx context.Context) error
	OnActivate(ctx context.Context) error
	OnFetch(req *http.Request, next http.RoundTripper) (*http.Response, error)
	OnSync(ctx context.Context, tag string) error
	OnPeriodicSync(ctx context.Context, tag string) error
	OnPush(ctx context.Context, payload []byte) error
	OnMessage(ctx context.Context, msg models.Message) error
}
