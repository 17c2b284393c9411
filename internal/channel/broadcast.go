package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"nhooyr.io/websocket"

	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/metrics"
	"github.com/dmitrijs2005/gophbeat/internal/models"
)

const DefaultDialTimeout = 2 * time.Second

// PeerStore tracks which processes can be reached.
type PeerStore interface {
	UpsertPeer(ctx context.Context, p models.Peer) error
	Peers(ctx context.Context, role models.PeerRole) ([]models.Peer, error)
	RemovePeer(ctx context.Context, id string) error
}

// Broadcaster writes a message to every registered peer of a role. Peers
// that cannot be reached are forgotten.
type Broadcaster struct {
	peers   PeerStore
	logger  logging.Logger
	timeout time.Duration
}

func NewBroadcaster(peers PeerStore, logger logging.Logger, timeout time.Duration) *Broadcaster {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return &Broadcaster{peers: peers, logger: logger, timeout: timeout}
}

// Send returns the combined delivery errors. Callers usually only log them.
func (b *Broadcaster) Send(ctx context.Context, role models.PeerRole, m models.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	list, err := b.peers.Peers(ctx, role)
	if err != nil {
		return fmt.Errorf("failed to list peers: %w", err)
	}

	var errs error
	for _, p := range list {
		if err := b.deliver(ctx, p.Addr, data); err != nil {
			b.logger.Debug(ctx, "peer unreachable, removing", "peer", p.ID, "addr", p.Addr, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("peer %s: %w", p.ID, err))
			if rerr := b.peers.RemovePeer(ctx, p.ID); rerr != nil {
				errs = multierr.Append(errs, rerr)
			}
			continue
		}
		metrics.ChannelMessagesTotal.WithLabelValues("out", string(m.Type)).Inc()
	}
	return errs
}

func (b *Broadcaster) deliver(ctx context.Context, addr string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws://"+addr+Path, nil)
	if err != nil {
		return err
	}
	defer c.CloseNow()

	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}
	return c.Close(websocket.StatusNormalClosure, "")
}
