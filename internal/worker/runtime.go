package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/gophbeat/internal/app"
	"github.com/dmitrijs2005/gophbeat/internal/channel"
	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/metrics"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/push"
)

// Events accepted by RunOnce.
const (
	EventInstall      = "install"
	EventActivate     = "activate"
	EventSync         = "sync"
	EventPeriodicSync = "periodicsync"
	EventPush         = "push"
	EventMessage      = "message"
)

const (
	syncAttempts     = 3
	syncBackoffStart = time.Second
	shutdownTimeout  = 5 * time.Second
)

// Runtime hosts the background handlers: an HTTP server for push, channel
// and metrics, plus periodic sync and retry loops.
type Runtime struct {
	app     *app.App
	service *Service
	logger  logging.Logger
	router  chi.Router
	pushRx  *push.Receiver

	// base is the lifetime context for work started from inbound messages.
	base context.Context
}

func NewRuntime(a *app.App) (*Runtime, error) {
	logger := a.Logger.With("module", "worker")
	svc := NewService(a.Beater, a.Store, a.Gate, a.Push, a.Broadcaster, a.Journal, logger)
	rt := &Runtime{app: a, service: svc, logger: logger, base: context.Background()}

	receiver, err := push.NewReceiver(a.Platform, a.Config.PushBaseURL, svc.OnPush, logger.With("component", "push"))
	if err != nil {
		return nil, err
	}
	rt.pushRx = receiver
	hub := channel.NewHub(a.Validator, rt.dispatch, logger.With("component", "channel"))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	receiver.Mount(r)
	r.Handle(channel.Path, hub)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	rt.router = r
	return rt, nil
}

func (rt *Runtime) Service() *Service { return rt.service }

func (rt *Runtime) Handler() http.Handler { return rt.router }

// dispatch runs message handlers outside the connection that carried them.
func (rt *Runtime) dispatch(_ context.Context, m models.Message) {
	go func() {
		if err := rt.service.OnMessage(rt.base, m); err != nil {
			rt.logger.Warn(rt.base, "message handler failed", "type", m.Type, "error", err)
		}
	}()
}

func (rt *Runtime) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a termination signal arrives or ctx is done.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	rt.initSignalHandler(cancelFunc)
	return rt.Serve(ctx)
}

// Serve starts the listener and the loops and blocks until ctx is done.
func (rt *Runtime) Serve(ctx context.Context) error {
	rt.base = ctx
	cfg := rt.app.Config

	if err := rt.service.OnInstall(ctx); err != nil {
		return err
	}

	l, err := channel.Listen(ctx, cfg.WorkerAddr, rt.router, rt.app.Store, models.RoleBackground, rt.logger)
	if err != nil {
		return err
	}
	rt.logger.Info(ctx, "worker listening", "addr", l.Addr(), "push_base_url", cfg.PushBaseURL)

	if err := rt.service.OnActivate(ctx); err != nil {
		rt.logger.Warn(ctx, "pending intents not replayed", "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		rt.every(ctx, cfg.PeriodicSyncInterval, func(ctx context.Context) {
			if err := rt.service.OnPeriodicSync(ctx, common.PeriodicTagHeartbeat); err != nil {
				rt.logger.Warn(ctx, "periodic sync failed", "error", err)
			}
		})
	}()
	go func() {
		defer wg.Done()
		rt.every(ctx, cfg.SyncRetryInterval, func(ctx context.Context) {
			if err := rt.ReplayWithBackoff(ctx); err != nil && !errors.Is(err, context.Canceled) {
				rt.logger.Info(ctx, "retry intents still pending", "error", err)
			}
		})
	}()
	go func() {
		defer wg.Done()
		l.Keepalive(ctx, cfg.SyncRetryInterval)
	}()

	<-ctx.Done()
	rt.logger.Info(ctx, "stopping worker")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err = l.Close(shutdownCtx)
	wg.Wait()
	rt.pushRx.Wait()
	return err
}

func (rt *Runtime) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}

// ReplayWithBackoff replays pending intents, retrying delivery failures
// with exponential backoff a few times before giving up until next tick.
func (rt *Runtime) ReplayWithBackoff(ctx context.Context) error {
	b := retry.WithMaxRetries(syncAttempts, retry.WithJitterPercent(10, retry.NewExponential(syncBackoffStart)))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := rt.service.Replay(ctx)
		if errors.Is(err, common.ErrDeliveryFailed) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// RunOnce handles a single event and returns. arg is the sync tag, the push
// payload or the message JSON, depending on event.
func (rt *Runtime) RunOnce(ctx context.Context, event, arg string) error {
	s := rt.service
	switch event {
	case EventInstall:
		return s.OnInstall(ctx)
	case EventActivate:
		return s.OnActivate(ctx)
	case EventSync:
		return s.OnSync(ctx, orDefault(arg, common.SyncTagHeartbeat))
	case EventPeriodicSync:
		return s.OnPeriodicSync(ctx, orDefault(arg, common.PeriodicTagHeartbeat))
	case EventPush:
		return s.OnPush(ctx, []byte(arg))
	case EventMessage:
		m, err := rt.app.Validator.Parse([]byte(arg))
		if err != nil {
			return err
		}
		return s.OnMessage(ctx, m)
	default:
		return fmt.Errorf("unknown event %q", event)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
