package channel

import (
	"context"
	"errors"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/metrics"
	"github.com/dmitrijs2005/gophbeat/internal/models"
)

// Path is where hubs accept connections.
const Path = "/channel"

const maxMessageSize = 4096

type Dispatcher func(ctx context.Context, m models.Message)

// Hub accepts WebSocket connections and dispatches every valid message.
type Hub struct {
	validator   *Validator
	dispatch    Dispatcher
	onMalformed func(ctx context.Context, err error)
	logger      logging.Logger
}

type HubOption func(*Hub)

// WithMalformedHandler is called for messages that fail validation.
func WithMalformedHandler(fn func(ctx context.Context, err error)) HubOption {
	return func(h *Hub) { h.onMalformed = fn }
}

func NewHub(v *Validator, dispatch Dispatcher, logger logging.Logger, opts ...HubOption) *Hub {
	h := &Hub{validator: v, dispatch: dispatch, logger: logger}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "channel handshake failed", "error", err)
		return
	}
	defer c.CloseNow()
	c.SetReadLimit(maxMessageSize)

	ctx := r.Context()
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				h.logger.Debug(ctx, "channel connection closed", "error", err)
			}
			return
		}
		h.Receive(ctx, data)
	}
}

// Receive validates and dispatches one raw message.
func (h *Hub) Receive(ctx context.Context, data []byte) {
	m, err := h.validator.Parse(data)
	if err != nil {
		metrics.ChannelMessagesTotal.WithLabelValues("in", "malformed").Inc()
		h.logger.Warn(ctx, "dropping malformed channel message", "error", err)
		if h.onMalformed != nil {
			h.onMalformed(ctx, err)
		}
		return
	}
	metrics.ChannelMessagesTotal.WithLabelValues("in", string(m.Type)).Inc()
	h.dispatch(ctx, m)
}
