package store

import (
	"context"

	"github.com/dmitrijs2005/gophbeat/internal/models"
)

func (s *Store) UpsertPeer(ctx context.Context, p models.Peer) error {
	if err := s.peers.Upsert(ctx, p); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Peers(ctx context.Context, role models.PeerRole) ([]models.Peer, error) {
	list, err := s.peers.List(ctx, role)
	if err != nil {
		return nil, unavailable(err)
	}
	return list, nil
}

func (s *Store) RemovePeer(ctx context.Context, id string) error {
	if err := s.peers.Remove(ctx, id); err != nil {
		return unavailable(err)
	}
	return nil
}
