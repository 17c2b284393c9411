package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/repositories/kv"
)

type lease struct {
	Owner   string `json:"owner"`
	Expires int64  `json:"expires"`
}

// TryLease takes the named lease for owner until ttl elapses. It fails
// (false, nil) while another owner holds an unexpired lease. Re-taking a
// lease the caller already owns extends it.
func (s *Store) TryLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := s.clock()
	acquired := false
	err := s.tx(ctx, func(ctx context.Context, r kv.Repository) error {
		raw, err := r.Get(ctx, DomainLeases, name)
		if err != nil {
			return err
		}
		var cur lease
		if raw != nil && json.Unmarshal(raw, &cur) == nil {
			if cur.Owner != owner && cur.Expires > now.UnixMilli() {
				return nil
			}
		}
		b, err := json.Marshal(lease{Owner: owner, Expires: now.Add(ttl).UnixMilli()})
		if err != nil {
			return err
		}
		acquired = true
		return r.Set(ctx, DomainLeases, name, b)
	})
	if err != nil {
		return false, unavailable(err)
	}
	return acquired, nil
}

// ReleaseLease drops the lease if owner still holds it.
func (s *Store) ReleaseLease(ctx context.Context, name, owner string) error {
	err := s.tx(ctx, func(ctx context.Context, r kv.Repository) error {
		raw, err := r.Get(ctx, DomainLeases, name)
		if err != nil || raw == nil {
			return err
		}
		var cur lease
		if json.Unmarshal(raw, &cur) == nil && cur.Owner != owner {
			return nil
		}
		return r.Delete(ctx, DomainLeases, name)
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}
