package store

import (
	"context"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/repositories/kv"
)

// IncrementBeatCount adds one to the beat counter in a single transaction
// and returns the new value. A stored value that is not a number counts as
// zero; only decimal integers are ever written back.
func (s *Store) IncrementBeatCount(ctx context.Context) (int64, error) {
	var next int64
	err := s.tx(ctx, func(ctx context.Context, r kv.Repository) error {
		raw, err := r.Get(ctx, DomainStatistics, KeyBeatCount)
		if err != nil {
			return err
		}
		next = s.parseCount(ctx, raw) + 1
		return r.Set(ctx, DomainStatistics, KeyBeatCount, []byte(strconv.FormatInt(next, 10)))
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return next, nil
}

func (s *Store) BeatCount(ctx context.Context) (int64, error) {
	raw, err := s.Get(ctx, DomainStatistics, KeyBeatCount)
	if err != nil {
		return 0, err
	}
	return s.parseCount(ctx, raw), nil
}

func (s *Store) parseCount(ctx context.Context, raw []byte) int64 {
	if raw == nil {
		return 0
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || n < 0 {
		s.logger.Warn(ctx, "beat counter is corrupt, counting from zero", "value", string(raw))
		return 0
	}
	return n
}

// RecordActivity stores the instant of the latest user interaction.
func (s *Store) RecordActivity(ctx context.Context, at time.Time) error {
	return s.Put(ctx, DomainStatistics, KeyLastActivity, []byte(strconv.FormatInt(at.UnixMilli(), 10)))
}

// LastActivity returns the recorded activity instant. ok is false when
// nothing (or nothing readable) was recorded.
func (s *Store) LastActivity(ctx context.Context) (at time.Time, ok bool, err error) {
	raw, err := s.Get(ctx, DomainStatistics, KeyLastActivity)
	if err != nil || raw == nil {
		return time.Time{}, false, err
	}
	ms, perr := strconv.ParseInt(string(raw), 10, 64)
	if perr != nil {
		s.logger.Warn(ctx, "activity timestamp is corrupt", "value", string(raw))
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// ClaimWindow atomically checks that at least window has passed since the
// instant stored under (DomainStatistics, key) and, if so, stores now.
// It reports whether the caller won the window.
func (s *Store) ClaimWindow(ctx context.Context, key string, window time.Duration, now time.Time) (bool, error) {
	claimed := false
	err := s.tx(ctx, func(ctx context.Context, r kv.Repository) error {
		raw, err := r.Get(ctx, DomainStatistics, key)
		if err != nil {
			return err
		}
		if raw != nil {
			if ms, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil {
				if now.Sub(time.UnixMilli(ms)) < window {
					return nil
				}
			}
		}
		claimed = true
		return r.Set(ctx, DomainStatistics, key, []byte(strconv.FormatInt(now.UnixMilli(), 10)))
	})
	if err != nil {
		return false, unavailable(err)
	}
	return claimed, nil
}
