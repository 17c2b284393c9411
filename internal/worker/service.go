package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/delivery"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/metrics"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/services"
)

const expiredMessage = "Push subscription expired, please re-enable server checks"

// IntentStore is the retry-intent part of the durable store.
type IntentStore interface {
	IntentRegistrar
	PendingIntent(ctx context.Context, name string) (*models.Intent, error)
	PendingIntents(ctx context.Context) ([]models.Intent, error)
	RecordIntentAttempt(ctx context.Context, name, lastError string) error
	ResolveIntent(ctx context.Context, name string) error
}

type Broadcaster interface {
	Send(ctx context.Context, role models.PeerRole, m models.Message) error
}

type ExpiryHandler interface {
	HandleExpired(ctx context.Context)
}

// Service implements Handlers on top of the shared beat pipeline.
type Service struct {
	beater      services.BeatRunner
	intents     IntentStore
	gate        services.GateNotifier
	push        ExpiryHandler
	broadcaster Broadcaster
	interceptor *Interceptor
	journal     *services.Journal
	logger      logging.Logger
}

func NewService(
	beater services.BeatRunner,
	intents IntentStore,
	gate services.GateNotifier,
	push ExpiryHandler,
	broadcaster Broadcaster,
	journal *services.Journal,
	logger logging.Logger,
) *Service {
	return &Service{
		beater:      beater,
		intents:     intents,
		gate:        gate,
		push:        push,
		broadcaster: broadcaster,
		interceptor: NewInterceptor(intents, logger),
		journal:     journal,
		logger:      logger,
	}
}

var _ Handlers = (*Service)(nil)

func (s *Service) OnInstall(ctx context.Context) error {
	s.logger.Info(ctx, "background worker installed")
	return nil
}

// OnActivate picks up intents left behind while no worker was running.
func (s *Service) OnActivate(ctx context.Context) error {
	s.logger.Info(ctx, "background worker activated")
	return s.Replay(ctx)
}

func (s *Service) OnFetch(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	return s.interceptor.Intercept(req, next)
}

// OnSync replays the pending heartbeat intent. The intent is kept, with the
// attempt recorded, only when the failure is worth retrying; in that case
// the returned error wraps common.ErrDeliveryFailed.
func (s *Service) OnSync(ctx context.Context, tag string) error {
	if tag != common.SyncTagHeartbeat {
		s.logger.Warn(ctx, "ignoring unknown sync tag", "tag", tag)
		return nil
	}
	intent, err := s.intents.PendingIntent(ctx, tag)
	if err != nil {
		return fmt.Errorf("failed to read intent: %w", err)
	}
	if intent == nil {
		return nil
	}

	res := s.beater.Beat(ctx, models.SourceSync)
	switch res.Status {
	case services.BeatSent:
		s.announce(ctx, res)
		return nil
	case services.BeatInFlight:
		return fmt.Errorf("%w: another heartbeat is in flight", common.ErrDeliveryFailed)
	case services.BeatFailed:
		first := res.Report.First()
		if first.Outcome == delivery.Retryable {
			if err := s.intents.RecordIntentAttempt(ctx, tag, errText(first)); err != nil {
				s.logger.Warn(ctx, "failed to record intent attempt", "error", err)
			}
			return fmt.Errorf("%w: %s", common.ErrDeliveryFailed, errText(first))
		}
	}

	// disabled, idle or a permanent failure: retrying cannot help
	if res.Status == services.BeatFailed {
		s.journal.Record(ctx, "Queued heartbeat discarded: "+errText(res.Report.First()))
	}
	if err := s.intents.ResolveIntent(ctx, tag); err != nil {
		s.logger.Warn(ctx, "failed to resolve intent", "error", err)
	}
	return nil
}

// OnPeriodicSync sends a recurring beat independent of the foreground.
func (s *Service) OnPeriodicSync(ctx context.Context, tag string) error {
	if tag != common.PeriodicTagHeartbeat {
		s.logger.Warn(ctx, "ignoring unknown periodic sync tag", "tag", tag)
		return nil
	}
	res := s.beater.Beat(ctx, models.SourcePeriodic)
	if res.Status == services.BeatSent {
		s.gate.Notify(ctx, "Heartbeat Sent", "Background heartbeat successfully sent")
		s.announce(ctx, res)
	}
	return nil
}

// OnPush handles a decrypted push payload.
func (s *Service) OnPush(ctx context.Context, payload []byte) error {
	var p models.PushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		metrics.PushMessagesTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("invalid push payload: %w", err)
	}
	metrics.PushMessagesTotal.WithLabelValues(p.Type).Inc()
	if p.Type != common.PushTypeHeartbeat {
		s.logger.Info(ctx, "ignoring push message", "type", p.Type)
		return nil
	}

	res := s.beater.Beat(ctx, models.SourcePush)
	switch res.Status {
	case services.BeatSent:
		s.gate.Notify(ctx, "Server Check", "Server-initiated heartbeat sent successfully")
		s.announce(ctx, res)
	case services.BeatFailed:
		s.gate.Notify(ctx, "Server Check Failed", "Server-initiated heartbeat failed")
		if res.Report.First().Gone {
			s.expire(ctx)
		}
	default:
		s.logger.Info(ctx, "server check skipped", "status", res.Status)
	}
	return nil
}

func (s *Service) OnMessage(ctx context.Context, msg models.Message) error {
	switch msg.Type {
	case models.MessageReplayIntents:
		return s.Replay(ctx)
	default:
		s.logger.Debug(ctx, "ignoring message", "type", msg.Type)
		return nil
	}
}

// Replay runs OnSync for every pending intent and returns the first error.
func (s *Service) Replay(ctx context.Context) error {
	pending, err := s.intents.PendingIntents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list intents: %w", err)
	}
	metrics.IntentsPending.Set(float64(len(pending)))
	var firstErr error
	for _, in := range pending {
		if err := s.OnSync(ctx, in.Name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) expire(ctx context.Context) {
	s.push.HandleExpired(ctx)
	msg := models.Message{Type: models.MessagePushSubscriptionExpired, Message: expiredMessage}
	if err := s.broadcaster.Send(ctx, models.RoleForeground, msg); err != nil {
		s.logger.Debug(ctx, "expiry broadcast incomplete", "error", err)
	}
}

// announce tells every foreground about a beat it did not send itself.
func (s *Service) announce(ctx context.Context, res services.BeatResult) {
	if res.Count == 0 {
		return
	}
	msg := models.HeartbeatSent(res.At, res.Count, res.Source)
	if err := s.broadcaster.Send(ctx, models.RoleForeground, msg); err != nil {
		s.logger.Debug(ctx, "heartbeat broadcast incomplete", "error", err)
	}
}

func errText(r delivery.Result) string {
	if r.StatusCode != 0 {
		return fmt.Sprintf("status %d", r.StatusCode)
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return "unknown error"
}
