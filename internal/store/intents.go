package store

import (
	"context"

	"github.com/dmitrijs2005/gophbeat/internal/models"
)

// RegisterIntent records a one-shot retry request. Registering a name that
// is already pending changes nothing and returns false.
func (s *Store) RegisterIntent(ctx context.Context, name string) (bool, error) {
	created, err := s.intents.Register(ctx, name, s.clock())
	if err != nil {
		return false, unavailable(err)
	}
	return created, nil
}

func (s *Store) PendingIntent(ctx context.Context, name string) (*models.Intent, error) {
	in, err := s.intents.Get(ctx, name)
	if err != nil {
		return nil, unavailable(err)
	}
	return in, nil
}

func (s *Store) PendingIntents(ctx context.Context) ([]models.Intent, error) {
	list, err := s.intents.List(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	return list, nil
}

func (s *Store) RecordIntentAttempt(ctx context.Context, name, lastError string) error {
	if err := s.intents.RecordAttempt(ctx, name, lastError); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) ResolveIntent(ctx context.Context, name string) error {
	if err := s.intents.Resolve(ctx, name); err != nil {
		return unavailable(err)
	}
	return nil
}
