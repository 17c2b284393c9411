package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/metrics"
	"github.com/dmitrijs2005/gophbeat/internal/store"
)

// Notifier displays a user-visible notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// WindowClaimer atomically claims a rate-limit window shared by processes.
type WindowClaimer interface {
	ClaimWindow(ctx context.Context, key string, window time.Duration, now time.Time) (bool, error)
}

type PermissionChecker interface {
	NotificationsPermitted(ctx context.Context) bool
}

// NotificationGate lets at most one notification through per window across
// both processes. When the store cannot be reached it falls back to a
// per-process window.
type NotificationGate struct {
	claimer    WindowClaimer
	permission PermissionChecker
	notifier   Notifier
	logger     logging.Logger
	window     time.Duration
	clock      func() time.Time

	mu   sync.Mutex
	last time.Time
}

type GateOption func(*NotificationGate)

func WithGateClock(clock func() time.Time) GateOption {
	return func(g *NotificationGate) { g.clock = clock }
}

func NewNotificationGate(claimer WindowClaimer, permission PermissionChecker, notifier Notifier, logger logging.Logger, window time.Duration, opts ...GateOption) *NotificationGate {
	g := &NotificationGate{
		claimer:    claimer,
		permission: permission,
		notifier:   notifier,
		logger:     logger,
		window:     window,
		clock:      time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Notify shows the notification unless permission is missing or another one
// was shown within the window. It reports whether the notification was shown.
func (g *NotificationGate) Notify(ctx context.Context, title, body string) bool {
	if g.permission != nil && !g.permission.NotificationsPermitted(ctx) {
		g.logger.Debug(ctx, "notification suppressed, permission not granted", "title", title)
		metrics.NotificationsTotal.WithLabelValues("suppressed").Inc()
		return false
	}

	now := g.clock()
	ok, err := g.claimer.ClaimWindow(ctx, store.KeyLastNotification, g.window, now)
	if err != nil {
		g.logger.Warn(ctx, "shared notification window unavailable, using local window", "error", err)
		ok = g.claimLocal(now)
	} else if ok {
		g.mu.Lock()
		g.last = now
		g.mu.Unlock()
	}
	if !ok {
		g.logger.Debug(ctx, "notification rate limited", "title", title)
		metrics.NotificationsTotal.WithLabelValues("rate_limited").Inc()
		return false
	}

	if err := g.notifier.Notify(ctx, title, body); err != nil {
		g.logger.Warn(ctx, "failed to show notification", "title", title, "error", err)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return false
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	return true
}

func (g *NotificationGate) claimLocal(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.last.IsZero() && now.Sub(g.last) < g.window {
		return false
	}
	g.last = now
	return true
}
