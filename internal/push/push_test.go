package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophbeat/internal/cryptox"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/store"
)

type fixture struct {
	store    *store.Store
	platform *Platform
	server   *httptest.Server
	keys     VAPIDKeys
	sender   *Sender

	receiver *Receiver

	mu       sync.Mutex
	received [][]byte
	hold     chan struct{}
}

func (f *fixture) Received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.received...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "push.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{store: st}
	r := chi.NewRouter()
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)

	f.platform = NewPlatform(st, cryptox.NewCodec(st, logging.Nop()), f.server.URL)
	rc, err := NewReceiver(f.platform, f.server.URL, func(_ context.Context, payload []byte) error {
		f.mu.Lock()
		hold := f.hold
		f.mu.Unlock()
		if hold != nil {
			<-hold
		}
		f.mu.Lock()
		f.received = append(f.received, payload)
		f.mu.Unlock()
		return nil
	}, logging.Nop())
	require.NoError(t, err)
	rc.Mount(r)
	f.receiver = rc
	t.Cleanup(rc.Wait)

	f.keys, err = GenerateVAPIDKeys()
	require.NoError(t, err)
	f.sender = NewSender(f.keys, "ops@example.com", f.server.Client())
	return f
}

func (f *fixture) applicationServerKey(t *testing.T) []byte {
	t.Helper()
	k, err := unb64(f.keys.Public)
	require.NoError(t, err)
	return k
}

func TestPlatform_SubscribeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	none, err := f.platform.Subscription(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	sub, err := f.platform.Subscribe(ctx, f.applicationServerKey(t))
	require.NoError(t, err)
	assert.True(t, sub.Valid())
	assert.True(t, strings.HasPrefix(sub.Endpoint, f.server.URL+"/push/"))
	assert.Equal(t, "aes128gcm", sub.Encoding)

	auth, err := unb64(sub.Keys.Auth)
	require.NoError(t, err)
	assert.Len(t, auth, authSecretSize)

	current, err := f.platform.Subscription(ctx)
	require.NoError(t, err)
	assert.Equal(t, sub, current)

	id := strings.TrimPrefix(sub.Endpoint, f.server.URL+"/push/")
	reg, err := f.platform.Lookup(ctx, id)
	require.NoError(t, err)
	raw, err := f.store.Get(ctx, store.DomainPush, keyPrefix+id)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), b64(reg.PrivateKey.Bytes()), "private key is stored encrypted")

	require.NoError(t, f.platform.Unsubscribe(ctx))
	none, err = f.platform.Subscription(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = f.platform.Lookup(ctx, id)
	assert.ErrorIs(t, err, ErrUnknownSubscription)
}

func TestPlatform_SubscribeReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.platform.Subscribe(ctx, f.applicationServerKey(t))
	require.NoError(t, err)
	second, err := f.platform.Subscribe(ctx, f.applicationServerKey(t))
	require.NoError(t, err)
	assert.NotEqual(t, first.Endpoint, second.Endpoint)

	_, err = f.platform.Lookup(ctx, strings.TrimPrefix(first.Endpoint, f.server.URL+"/push/"))
	assert.ErrorIs(t, err, ErrUnknownSubscription)
}

func TestPlatform_RejectsBadApplicationServerKey(t *testing.T) {
	f := newFixture(t)
	_, err := f.platform.Subscribe(context.Background(), []byte{4, 1, 2})
	assert.Error(t, err)
}

func TestReceiver_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.platform.Subscribe(ctx, f.applicationServerKey(t))
	require.NoError(t, err)

	res, err := f.sender.Send(ctx, *sub, []byte(`{"type":"heartbeat-request"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	f.receiver.Wait()
	require.Len(t, f.Received(), 1)
	assert.JSONEq(t, `{"type":"heartbeat-request"}`, string(f.Received()[0]))
}

func TestReceiver_RespondsBeforeHandlerFinishes(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	f.hold = release
	ctx := context.Background()
	sub, err := f.platform.Subscribe(ctx, f.applicationServerKey(t))
	require.NoError(t, err)

	res, err := f.sender.Send(ctx, *sub, []byte(`{"type":"heartbeat-request"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Empty(t, f.Received(), "handler still running")

	unblock()
	require.Eventually(t, func() bool { return len(f.Received()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestReceiver_WrongVAPIDKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.platform.Subscribe(ctx, f.applicationServerKey(t))
	require.NoError(t, err)

	other, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	res, err := NewSender(other, "ops@example.com", f.server.Client()).Send(ctx, *sub, []byte(`{"type":"heartbeat-request"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Empty(t, f.Received())
}

func TestReceiver_GoneAfterUnsubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.platform.Subscribe(ctx, f.applicationServerKey(t))
	require.NoError(t, err)
	require.NoError(t, f.platform.Unsubscribe(ctx))

	res, err := f.sender.Send(ctx, *sub, []byte(`{"type":"heartbeat-request"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusGone, res.StatusCode)
	assert.True(t, res.Gone)
}

func TestReceiver_MissingAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.platform.Subscribe(ctx, f.applicationServerKey(t))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, sub.Endpoint, strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set("Content-Encoding", "aes128gcm")
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestParseVAPID(t *testing.T) {
	tok, key, err := parseVAPID("vapid t=aaa.bbb.ccc, k=BKey")
	require.NoError(t, err)
	assert.Equal(t, "aaa.bbb.ccc", tok)
	assert.Equal(t, "BKey", key)

	for _, h := range []string{"", "Bearer x", "vapid t=only", "vapid k=only"} {
		_, _, err := parseVAPID(h)
		assert.ErrorIs(t, err, ErrUnauthorized, h)
	}
}

func TestUnpad(t *testing.T) {
	got, err := unpad([]byte("hi\x02\x00\x00"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)

	got, err = unpad([]byte("\x02"))
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, in := range [][]byte{nil, {0, 0}, []byte("hi\x01")} {
		_, err := unpad(in)
		assert.ErrorIs(t, err, ErrMalformedMessage)
	}
}

func TestDecrypt_ShortInput(t *testing.T) {
	_, err := Decrypt(&Registration{}, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}
