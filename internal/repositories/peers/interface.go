// Package peers tracks the processes listening on the message channel.
package peers

import (
	"context"

	"github.com/dmitrijs2005/gophbeat/internal/models"
)

type Repository interface {
	Upsert(ctx context.Context, p models.Peer) error
	List(ctx context.Context, role models.PeerRole) ([]models.Peer, error)
	Remove(ctx context.Context, id string) error
}
