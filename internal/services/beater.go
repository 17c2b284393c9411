package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/gophbeat/internal/api"
	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/delivery"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/metrics"
	"github.com/dmitrijs2005/gophbeat/internal/models"
)

const (
	heartbeatLease  = "heartbeat"
	DefaultLeaseTTL = 30 * time.Second
)

// BeatStore is what the beat pipeline needs from the durable store.
type BeatStore interface {
	IncrementBeatCount(ctx context.Context) (int64, error)
	LastActivity(ctx context.Context) (time.Time, bool, error)
	TryLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error
	ResolveIntent(ctx context.Context, name string) error
}

type SettingsLoader interface {
	Load(ctx context.Context) models.Settings
}

type BeatStatus string

const (
	BeatSent     BeatStatus = "sent"
	BeatFailed   BeatStatus = "failed"
	BeatIdle     BeatStatus = "idle"
	BeatDisabled BeatStatus = "disabled"
	BeatInFlight BeatStatus = "in_flight"
)

// BeatResult is the outcome of one pass through the beat pipeline.
type BeatResult struct {
	Status BeatStatus
	Source models.Source
	At     time.Time
	// Count is the counter value after a successful beat. It is zero when
	// the beat was delivered but the counter could not be updated.
	Count  int64
	Report delivery.Report
}

// Beater runs the heartbeat pipeline: gating, delivery, counting and logging.
// At most one beat is in flight per process, and the store lease extends
// that to the other process.
type Beater struct {
	store    BeatStore
	settings SettingsLoader
	chain    *delivery.Chain
	journal  *Journal
	logger   logging.Logger

	idle     time.Duration
	leaseTTL time.Duration
	owner    string
	clock    func() time.Time

	sf singleflight.Group
}

type BeaterOption func(*Beater)

func WithBeaterClock(clock func() time.Time) BeaterOption {
	return func(b *Beater) { b.clock = clock }
}

func WithLeaseTTL(ttl time.Duration) BeaterOption {
	return func(b *Beater) { b.leaseTTL = ttl }
}

// WithOwner sets the lease owner name. It defaults to a random id.
func WithOwner(owner string) BeaterOption {
	return func(b *Beater) { b.owner = owner }
}

func NewBeater(st BeatStore, settings SettingsLoader, chain *delivery.Chain, journal *Journal, logger logging.Logger, idle time.Duration, opts ...BeaterOption) *Beater {
	b := &Beater{
		store:    st,
		settings: settings,
		chain:    chain,
		journal:  journal,
		logger:   logger,
		idle:     idle,
		leaseTTL: DefaultLeaseTTL,
		owner:    uuid.NewString(),
		clock:    time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Beat sends one heartbeat on behalf of source. Concurrent calls in the same
// process share a single attempt and its result.
func (b *Beater) Beat(ctx context.Context, source models.Source) BeatResult {
	v, _, _ := b.sf.Do(heartbeatLease, func() (any, error) {
		return b.beat(ctx, source), nil
	})
	res := v.(BeatResult)
	metrics.HeartbeatsTotal.WithLabelValues(string(source), string(res.Status)).Inc()
	return res
}

func (b *Beater) beat(ctx context.Context, source models.Source) BeatResult {
	now := b.clock()
	res := BeatResult{Source: source, At: now}

	s := b.settings.Load(ctx)
	if !s.CanBeat() {
		res.Status = BeatDisabled
		return res
	}

	if s.ActivityDetection && !b.recentlyActive(ctx, now) {
		b.journal.Record(ctx, idleMessage(source))
		res.Status = BeatIdle
		return res
	}

	leased, err := b.store.TryLease(ctx, heartbeatLease, b.owner, b.leaseTTL)
	switch {
	case err != nil:
		b.logger.Warn(ctx, "heartbeat lease unavailable, sending anyway", "error", err)
	case !leased:
		b.logger.Info(ctx, "another heartbeat is already in flight", "source", source)
		res.Status = BeatInFlight
		return res
	default:
		defer func() {
			if err := b.store.ReleaseLease(context.WithoutCancel(ctx), heartbeatLease, b.owner); err != nil {
				b.logger.Warn(ctx, "failed to release heartbeat lease", "error", err)
			}
		}()
	}

	res.Report = b.chain.Run(ctx, api.TargetFrom(s))
	if !res.Report.Delivered() {
		res.Status = BeatFailed
		b.journal.Record(ctx, failureMessage(source, res.Report.First()), "error", res.Report.First().Err)
		if res.Report.Queued() {
			b.journal.Record(ctx, "Heartbeat queued for background retry")
		}
		return res
	}

	res.Status = BeatSent
	count, err := b.store.IncrementBeatCount(ctx)
	if err != nil {
		b.logger.Error(ctx, "heartbeat sent but counter not updated", "error", err)
	} else {
		res.Count = count
	}
	if err := b.store.ResolveIntent(ctx, common.SyncTagHeartbeat); err != nil {
		b.logger.Warn(ctx, "failed to resolve pending retry intent", "error", err)
	}
	b.journal.Record(ctx, successMessage(source), "count", res.Count)
	return res
}

// recentlyActive treats a missing or unreadable activity timestamp as
// activity right now.
func (b *Beater) recentlyActive(ctx context.Context, now time.Time) bool {
	last, ok, err := b.store.LastActivity(ctx)
	if err != nil {
		b.logger.Warn(ctx, "activity timestamp unavailable", "error", err)
		return true
	}
	if !ok {
		return true
	}
	return now.Sub(last) <= b.idle
}

func idleMessage(source models.Source) string {
	if source.Background() {
		return "No recent activity, skipping background heartbeat"
	}
	return "No recent activity, skipping heartbeat"
}

func successMessage(source models.Source) string {
	switch source {
	case models.SourceForeground:
		return "Heartbeat sent successfully"
	case models.SourcePush:
		return "Server-initiated heartbeat sent successfully"
	default:
		return "Background heartbeat sent successfully"
	}
}

func failureMessage(source models.Source, r delivery.Result) string {
	prefix := "Heartbeat"
	switch source {
	case models.SourceForeground:
	case models.SourcePush:
		prefix = "Server-initiated heartbeat"
	default:
		prefix = "Background heartbeat"
	}
	if r.StatusCode != 0 {
		return fmt.Sprintf("%s failed: %d", prefix, r.StatusCode)
	}
	if source == models.SourceForeground && r.Err != nil {
		return "Network error: " + r.Err.Error()
	}
	if r.Err != nil {
		return fmt.Sprintf("%s error: %s", prefix, r.Err)
	}
	return prefix + " failed"
}
