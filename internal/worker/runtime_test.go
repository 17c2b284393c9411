package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophbeat/internal/app"
	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/config"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/push"
	"github.com/dmitrijs2005/gophbeat/internal/services"
)

// beatServer counts heartbeats and answers with status.
type beatServer struct {
	*httptest.Server
	beats  atomic.Int32
	status atomic.Int32
}

func newBeatServer(t *testing.T) *beatServer {
	t.Helper()
	b := &beatServer{}
	b.status.Store(http.StatusOK)
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == common.BeatPath {
			b.beats.Add(1)
		}
		w.WriteHeader(int(b.status.Load()))
	}))
	t.Cleanup(b.Close)
	return b
}

type runtimeFixture struct {
	app     *app.App
	runtime *Runtime
	server  *httptest.Server
	beats   *beatServer
}

// newRuntimeFixture serves the runtime router on a test server whose URL is
// also the push base URL.
func newRuntimeFixture(t *testing.T) *runtimeFixture {
	t.Helper()
	var (
		mu      sync.RWMutex
		handler http.Handler = http.NotFoundHandler()
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		h := handler
		mu.RUnlock()
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := config.Load([]string{"-d", dir, "-db", filepath.Join(dir, "beat.db"), "-p", srv.URL})
	a, err := app.New(context.Background(), cfg, logging.Nop(), app.Options{Role: models.RoleBackground})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	rt, err := NewRuntime(a)
	require.NoError(t, err)
	t.Cleanup(rt.pushRx.Wait)
	mu.Lock()
	handler = rt.Handler()
	mu.Unlock()

	f := &runtimeFixture{app: a, runtime: rt, server: srv, beats: newBeatServer(t)}

	s := models.DefaultSettings()
	s.ServerURL, s.AuthToken, s.Enabled = f.beats.URL, "token", true
	require.NoError(t, a.Settings.Save(context.Background(), s))
	return f
}

func TestRuntime_HealthAndMetrics(t *testing.T) {
	f := newRuntimeFixture(t)

	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRuntime_RunOnce(t *testing.T) {
	f := newRuntimeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.runtime.RunOnce(ctx, EventInstall, ""))
	require.NoError(t, f.runtime.RunOnce(ctx, EventPeriodicSync, ""))
	assert.Equal(t, int32(1), f.beats.beats.Load())

	// no intent yet, nothing to replay
	require.NoError(t, f.runtime.RunOnce(ctx, EventSync, ""))
	assert.Equal(t, int32(1), f.beats.beats.Load())

	_, err := f.app.Store.RegisterIntent(ctx, common.SyncTagHeartbeat)
	require.NoError(t, err)
	require.NoError(t, f.runtime.RunOnce(ctx, EventMessage, `{"type":"replay-intents"}`))
	assert.Equal(t, int32(2), f.beats.beats.Load())

	in, err := f.app.Store.PendingIntent(ctx, common.SyncTagHeartbeat)
	require.NoError(t, err)
	assert.Nil(t, in)

	count, err := f.app.Store.BeatCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Error(t, f.runtime.RunOnce(ctx, EventMessage, `{"type":"bogus"}`))
	assert.Error(t, f.runtime.RunOnce(ctx, "reboot", ""))
}

func TestRuntime_RunOnceSyncKeepsIntentOnServerError(t *testing.T) {
	f := newRuntimeFixture(t)
	ctx := context.Background()
	f.beats.status.Store(http.StatusServiceUnavailable)

	_, err := f.app.Store.RegisterIntent(ctx, common.SyncTagHeartbeat)
	require.NoError(t, err)

	err = f.runtime.RunOnce(ctx, EventSync, common.SyncTagHeartbeat)
	assert.ErrorIs(t, err, common.ErrDeliveryFailed)

	in, err := f.app.Store.PendingIntent(ctx, common.SyncTagHeartbeat)
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.GreaterOrEqual(t, in.Attempts, 1)

	f.beats.status.Store(http.StatusOK)
	require.NoError(t, f.runtime.ReplayWithBackoff(ctx))
	in, err = f.app.Store.PendingIntent(ctx, common.SyncTagHeartbeat)
	require.NoError(t, err)
	assert.Nil(t, in)
}

func TestRuntime_PushTriggersHeartbeat(t *testing.T) {
	f := newRuntimeFixture(t)
	ctx := context.Background()

	keys, err := push.GenerateVAPIDKeys()
	require.NoError(t, err)
	appKey, err := services.DecodeApplicationServerKey(keys.Public)
	require.NoError(t, err)

	sub, err := f.app.Platform.Subscribe(ctx, appKey)
	require.NoError(t, err)

	sender := push.NewSender(keys, "ops@example.com", f.server.Client())
	res, err := sender.Send(ctx, *sub, []byte(`{"type":"heartbeat-request"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	assert.Eventually(t, func() bool {
		return f.beats.beats.Load() == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRuntime_PushAfterUnsubscribeIsGone(t *testing.T) {
	f := newRuntimeFixture(t)
	ctx := context.Background()

	keys, err := push.GenerateVAPIDKeys()
	require.NoError(t, err)
	appKey, err := services.DecodeApplicationServerKey(keys.Public)
	require.NoError(t, err)
	sub, err := f.app.Platform.Subscribe(ctx, appKey)
	require.NoError(t, err)
	require.NoError(t, f.app.Platform.Unsubscribe(ctx))

	res, err := push.NewSender(keys, "ops@example.com", f.server.Client()).
		Send(ctx, *sub, []byte(`{"type":"heartbeat-request"}`))
	require.NoError(t, err)
	assert.True(t, res.Gone)
	assert.Zero(t, f.beats.beats.Load())
}
