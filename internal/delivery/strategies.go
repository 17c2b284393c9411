package delivery

import (
	"context"

	"github.com/dmitrijs2005/gophbeat/internal/api"
)

type BeatSender interface {
	Beat(ctx context.Context, t api.Target) error
}

type IntentRegistrar interface {
	RegisterIntent(ctx context.Context, name string) (bool, error)
}

// Immediate posts the heartbeat right away.
type Immediate struct {
	client BeatSender
}

func NewImmediate(client BeatSender) *Immediate {
	return &Immediate{client: client}
}

func (s *Immediate) Name() string { return "immediate" }

func (s *Immediate) Deliver(ctx context.Context, t api.Target) Result {
	return Classify(s.client.Beat(ctx, t))
}

// Deferred leaves a named retry intent for the background worker. At most
// one intent per name exists, so repeated failures do not pile up.
type Deferred struct {
	intents IntentRegistrar
	name    string
}

func NewDeferred(intents IntentRegistrar, name string) *Deferred {
	return &Deferred{intents: intents, name: name}
}

func (s *Deferred) Name() string { return "deferred:" + s.name }

func (s *Deferred) Deliver(ctx context.Context, _ api.Target) Result {
	if _, err := s.intents.RegisterIntent(ctx, s.name); err != nil {
		return Result{Outcome: Retryable, Err: err}
	}
	return Result{Outcome: Retryable, Queued: true}
}
