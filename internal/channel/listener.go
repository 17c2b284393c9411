package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/models"
)

// Listener serves a hub on a loopback address and keeps the process
// registered as a peer while it runs.
type Listener struct {
	srv    *http.Server
	ln     net.Listener
	peers  PeerStore
	logger logging.Logger
	clock  func() time.Time

	mu   sync.Mutex
	peer models.Peer
}

// Handler serves a hub at Path.
func Handler(h *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, h)
	return mux
}

// Listen starts serving handler on addr ("127.0.0.1:0" picks a free port)
// and registers the bound address under role. handler must route Path to
// a Hub.
func Listen(ctx context.Context, addr string, handler http.Handler, peers PeerStore, role models.PeerRole, logger logging.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	l := &Listener{
		srv:    &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		peers:  peers,
		logger: logger,
		clock:  time.Now,
	}
	l.peer = models.Peer{ID: uuid.NewString(), Role: role, Addr: ln.Addr().String()}

	if err := l.Touch(ctx); err != nil {
		_ = ln.Close()
		return nil, err
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "channel listener stopped", "error", err)
		}
	}()
	return l, nil
}

func (l *Listener) Addr() string { return l.Peer().Addr }

func (l *Listener) Peer() models.Peer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peer
}

// Touch refreshes the peer registration.
func (l *Listener) Touch(ctx context.Context) error {
	l.mu.Lock()
	l.peer.LastSeen = l.clock()
	p := l.peer
	l.mu.Unlock()
	if err := l.peers.UpsertPeer(ctx, p); err != nil {
		return fmt.Errorf("failed to register peer: %w", err)
	}
	return nil
}

// Keepalive re-registers every interval until ctx is done, so a peer that
// was dropped after a missed delivery comes back.
func (l *Listener) Keepalive(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := l.Touch(ctx); err != nil {
				l.logger.Warn(ctx, "failed to refresh peer registration", "error", err)
			}
		}
	}
}

// Close unregisters the peer and stops the server.
func (l *Listener) Close(ctx context.Context) error {
	return multierr.Combine(
		l.peers.RemovePeer(ctx, l.Peer().ID),
		l.srv.Shutdown(ctx),
	)
}
