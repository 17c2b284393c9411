package store

import "context"

const keyEncryption = "encryption"

// LoadKey returns the persisted symmetric key, or nil when none exists.
func (s *Store) LoadKey(ctx context.Context) ([]byte, error) {
	return s.Get(ctx, DomainKeys, keyEncryption)
}

// StoreKeyIfAbsent persists key unless another process got there first,
// and returns whichever key is now stored.
func (s *Store) StoreKeyIfAbsent(ctx context.Context, key []byte) ([]byte, error) {
	if _, err := s.kv.SetIfAbsent(ctx, DomainKeys, keyEncryption, key); err != nil {
		return nil, unavailable(err)
	}
	return s.LoadKey(ctx)
}

// ReplaceKey overwrites the persisted key. Secrets encrypted with the old
// key become unreadable.
func (s *Store) ReplaceKey(ctx context.Context, key []byte) error {
	return s.Put(ctx, DomainKeys, keyEncryption, key)
}
