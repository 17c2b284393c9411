package channel

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/store"
)

func TestValidator_Parse(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    string
		wantErr bool
		want    models.MessageType
	}{
		{"heartbeat sent", `{"type":"heartbeat-sent","timestamp":"2024-05-01T12:00:00Z","beatCount":3,"source":"periodic"}`, false, models.MessageHeartbeatSent},
		{"expired", `{"type":"push-subscription-expired","message":"Push subscription expired, please re-enable server checks"}`, false, models.MessagePushSubscriptionExpired},
		{"replay", `{"type":"replay-intents"}`, false, models.MessageReplayIntents},
		{"not json", `{"type":`, true, ""},
		{"unknown type", `{"type":"reboot"}`, true, ""},
		{"missing count", `{"type":"heartbeat-sent","timestamp":"2024-05-01T12:00:00Z","source":"push"}`, true, ""},
		{"negative count", `{"type":"heartbeat-sent","timestamp":"2024-05-01T12:00:00Z","beatCount":-1,"source":"push"}`, true, ""},
		{"bad timestamp", `{"type":"heartbeat-sent","timestamp":"yesterday","beatCount":1,"source":"push"}`, true, ""},
		{"expired without message", `{"type":"push-subscription-expired"}`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := v.Parse([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Type)
		})
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "peers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type inbox struct {
	mu        sync.Mutex
	msgs      []models.Message
	malformed int
}

func (i *inbox) dispatch(_ context.Context, m models.Message) {
	i.mu.Lock()
	i.msgs = append(i.msgs, m)
	i.mu.Unlock()
}

func (i *inbox) bad(context.Context, error) {
	i.mu.Lock()
	i.malformed++
	i.mu.Unlock()
}

func (i *inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs)
}

func TestBroadcast_DeliversToRegisteredPeers(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	v, err := NewValidator()
	require.NoError(t, err)

	box := &inbox{}
	l, err := Listen(ctx, "127.0.0.1:0", Handler(NewHub(v, box.dispatch, logging.Nop())), st, models.RoleForeground, logging.Nop())
	require.NoError(t, err)
	defer l.Close(ctx)

	peers, err := st.Peers(ctx, models.RoleForeground)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, l.Addr(), peers[0].Addr)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := models.HeartbeatSent(at, 9, models.SourcePush)
	require.NoError(t, NewBroadcaster(st, logging.Nop(), time.Second).Send(ctx, models.RoleForeground, msg))

	require.Eventually(t, func() bool { return box.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	box.mu.Lock()
	defer box.mu.Unlock()
	if diff := cmp.Diff(msg, box.msgs[0]); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestBroadcast_DropsUnreachablePeers(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertPeer(ctx, models.Peer{ID: "gone", Role: models.RoleForeground, Addr: "127.0.0.1:1", LastSeen: time.Now()}))

	err := NewBroadcaster(st, logging.Nop(), 200*time.Millisecond).Send(ctx, models.RoleForeground, models.Message{Type: models.MessageReplayIntents})
	assert.Error(t, err)

	peers, err := st.Peers(ctx, models.RoleForeground)
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestBroadcast_NoPeers(t *testing.T) {
	st := openStore(t)
	assert.NoError(t, NewBroadcaster(st, logging.Nop(), 0).Send(context.Background(), models.RoleBackground, models.Message{Type: models.MessageReplayIntents}))
}

func TestHub_MalformedCallsHandler(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)
	box := &inbox{}
	h := NewHub(v, box.dispatch, logging.Nop(), WithMalformedHandler(box.bad))

	h.Receive(context.Background(), []byte(`{"type":"heartbeat-sent"}`))
	h.Receive(context.Background(), []byte(`{"type":"replay-intents"}`))

	assert.Equal(t, 1, box.malformed)
	assert.Equal(t, 1, box.Len())
}

func TestListener_CloseUnregisters(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	v, err := NewValidator()
	require.NoError(t, err)

	l, err := Listen(ctx, "127.0.0.1:0", Handler(NewHub(v, func(context.Context, models.Message) {}, logging.Nop())), st, models.RoleBackground, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, l.Touch(ctx))
	require.NoError(t, l.Close(ctx))

	peers, err := st.Peers(ctx, models.RoleBackground)
	require.NoError(t, err)
	assert.Empty(t, peers)
}
