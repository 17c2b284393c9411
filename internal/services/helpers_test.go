package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophbeat/internal/api"
	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/cryptox"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/store"
)

var errBoom = errors.New("boom")

func openStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	opts = append([]store.Option{store.WithLogger(logging.Nop())}, opts...)
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "beat.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSettings(t *testing.T, st *store.Store, m SettingsMirror) *SettingsManager {
	t.Helper()
	return NewSettingsManager(st, cryptox.NewCodec(st, logging.Nop()), m, logging.Nop())
}

// flakyKV wraps the real store and fails a set number of reads or updates.
type flakyKV struct {
	*store.Store
	mu      sync.Mutex
	gets    int
	updates int
}

func (f *flakyKV) FailGets(n int) {
	f.mu.Lock()
	f.gets = n
	f.mu.Unlock()
}

func (f *flakyKV) FailUpdates(n int) {
	f.mu.Lock()
	f.updates = n
	f.mu.Unlock()
}

func (f *flakyKV) Get(ctx context.Context, domain, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.gets > 0
	if fail {
		f.gets--
	}
	f.mu.Unlock()
	if fail {
		return nil, common.ErrStorageUnavailable
	}
	return f.Store.Get(ctx, domain, key)
}

func (f *flakyKV) Update(ctx context.Context, domain, key string, fn func([]byte) ([]byte, error)) error {
	f.mu.Lock()
	fail := f.updates > 0
	if fail {
		f.updates--
	}
	f.mu.Unlock()
	if fail {
		return common.ErrStorageUnavailable
	}
	return f.Store.Update(ctx, domain, key, fn)
}

// flakyCodec fails a set number of key initializations.
type flakyCodec struct {
	SecretCodec
	mu   sync.Mutex
	keys int
}

func (c *flakyCodec) FailKeys(n int) {
	c.mu.Lock()
	c.keys = n
	c.mu.Unlock()
}

func (c *flakyCodec) InitializeKey(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	fail := c.keys > 0
	if fail {
		c.keys--
	}
	c.mu.Unlock()
	if fail {
		return nil, errBoom
	}
	return c.SecretCodec.InitializeKey(ctx)
}

func newFlakySettings(t *testing.T, m SettingsMirror) (*SettingsManager, *flakyKV, *flakyCodec) {
	t.Helper()
	st := openStore(t)
	kv := &flakyKV{Store: st}
	codec := &flakyCodec{SecretCodec: cryptox.NewCodec(st, logging.Nop())}
	return NewSettingsManager(kv, codec, m, logging.Nop()), kv, codec
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// fakeSender stands in for the API client.
type fakeSender struct {
	mu    sync.Mutex
	err   error
	calls int
	block chan struct{}
}

func (f *fakeSender) Beat(_ context.Context, _ api.Target) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticSettings struct{ s models.Settings }

func (s staticSettings) Load(context.Context) models.Settings { return s.s }

func readySettings() models.Settings {
	s := models.DefaultSettings()
	s.ServerURL = "http://beat.example"
	s.AuthToken = "token"
	s.Enabled = true
	return s
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
	return nil
}

func (n *recordingNotifier) Titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.titles...)
}

type allowAll struct{}

func (allowAll) NotificationsPermitted(context.Context) bool { return true }
