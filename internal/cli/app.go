package cli

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/app"
	"github.com/dmitrijs2005/gophbeat/internal/channel"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/services"
	"github.com/dmitrijs2005/gophbeat/internal/store"
	"github.com/dmitrijs2005/gophbeat/internal/worker"
)

const (
	listenAddr      = "127.0.0.1:0"
	shutdownTimeout = 3 * time.Second
)

// App is the foreground agent.
type App struct {
	app    *app.App
	engine *services.Engine
	logger logging.Logger
	reader *bufio.Reader
	out    io.Writer

	// ctrl serialises enable/disable against mirror reloads.
	ctrl sync.Mutex

	mu     sync.Mutex
	online bool
}

// Options returns the app.Options of the foreground process: beat requests
// go through the fetch interceptor so that network failures are queued for
// the worker.
func Options(logger logging.Logger, notifier services.Notifier) app.Options {
	return app.Options{
		Role:     models.RoleForeground,
		Notifier: notifier,
		Transport: func(st *store.Store, next http.RoundTripper) http.RoundTripper {
			ic := worker.NewInterceptor(st, logger.With("module", "fetch"))
			return &worker.FetchTransport{Fetch: ic.Intercept, Next: next}
		},
	}
}

func NewApp(a *app.App, in io.Reader, out io.Writer) *App {
	logger := a.Logger.With("module", "cli")
	engine := services.NewEngine(a.Beater, a.Gate, a.Store, logger.With("component", "engine"), a.Config.HeartbeatInterval)
	return &App{
		app:    a,
		engine: engine,
		logger: logger,
		reader: bufio.NewReader(in),
		out:    out,
		online: true,
	}
}

func (a *App) Engine() *services.Engine { return a.engine }

// Run starts monitoring if enabled and serves the REPL until the user exits
// or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := channel.NewHub(a.app.Validator, a.dispatch, a.logger.With("component", "channel"),
		channel.WithMalformedHandler(a.malformed))
	l, err := channel.Listen(ctx, listenAddr, channel.Handler(hub), a.app.Store, models.RoleForeground, a.logger)
	if err != nil {
		a.logger.Warn(ctx, "background messages unavailable", "error", err)
	}

	if err := a.engine.Refresh(ctx); err != nil {
		a.logger.Warn(ctx, "beat count unavailable", "error", err)
	}
	a.reload(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.StartOnlineStatusWatcher(ctx, a.app.Config.OnlineCheckInterval)
	}()
	go func() {
		defer wg.Done()
		if err := a.app.Mirror.Watch(ctx, func() { a.reload(ctx) }); err != nil {
			a.logger.Warn(ctx, "settings mirror not watched", "error", err)
		}
	}()
	if l != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Keepalive(ctx, a.app.Config.SyncRetryInterval)
		}()
	}

	printlnFn("Welcome to gophbeat (type 'help' for commands)")
	runREPL(ctx, a, a.prompt, a.reader)

	cancel()
	a.engine.Stop()
	a.engine.Wait()
	wg.Wait()

	if l != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return l.Close(shutdownCtx)
	}
	return nil
}

// reload brings the engine in line with the stored enabled flag.
func (a *App) reload(ctx context.Context) {
	a.ctrl.Lock()
	defer a.ctrl.Unlock()

	s := a.app.Settings.Load(ctx)
	switch {
	case s.Enabled && !a.engine.Running():
		a.engine.Start(ctx)
	case !s.Enabled && a.engine.Running():
		a.engine.Stop()
	}
}

func (a *App) dispatch(_ context.Context, m models.Message) {
	switch m.Type {
	case models.MessageHeartbeatSent:
		if m.BeatCount == nil {
			return
		}
		var at time.Time
		if m.Timestamp != nil {
			at = *m.Timestamp
		}
		a.engine.SetBeatCount(*m.BeatCount, at)
	case models.MessagePushSubscriptionExpired:
		printlnFn(warnColor.Sprint(m.Message))
	}
}

// malformed falls back to the store when a message cannot be trusted.
func (a *App) malformed(ctx context.Context, err error) {
	a.logger.Debug(ctx, "malformed message, re-reading counter", "error", err)
	if err := a.engine.Refresh(ctx); err != nil {
		a.logger.Warn(ctx, "failed to refresh beat count", "error", err)
	}
}

// RecordActivity marks the user as present.
func (a *App) RecordActivity(ctx context.Context) {
	if err := a.app.Store.RecordActivity(ctx, time.Now()); err != nil {
		a.logger.Debug(ctx, "activity not recorded", "error", err)
	}
}

// StartOnlineStatusWatcher probes the server every interval until ctx is
// done and reacts to connectivity changes.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	s := a.app.Settings.Load(ctx)
	if s.ServerURL == "" {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, a.app.Config.RequestTimeout)
	err := a.app.Client.Ping(pingCtx, s.ServerURL)
	cancel()
	if ctx.Err() != nil {
		return
	}
	a.setOnline(ctx, err == nil)
}

func (a *App) setOnline(ctx context.Context, online bool) {
	a.mu.Lock()
	changed := a.online != online
	a.online = online
	a.mu.Unlock()
	if !changed {
		return
	}

	if online {
		a.app.Journal.Record(ctx, "Connection restored")
	} else {
		a.app.Journal.Record(ctx, "Connection lost")
	}
	a.engine.SetOnline(ctx, online)
	if !online {
		return
	}

	if a.engine.Running() {
		a.engine.Tick(ctx)
	}
	if err := a.app.Broadcaster.Send(ctx, models.RoleBackground, models.Message{Type: models.MessageReplayIntents}); err != nil {
		a.logger.Debug(ctx, "replay request not delivered", "error", err)
	}
}

func (a *App) isOnline() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.online
}
