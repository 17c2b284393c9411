// Package kv stores small values grouped by domain (configuration,
// statistics, keys, push, leases).
package kv

import "context"

// Repository is keyed by (domain, key). Get returns (nil, nil) when the
// key is absent.
type Repository interface {
	Get(ctx context.Context, domain, key string) ([]byte, error)
	Set(ctx context.Context, domain, key string, value []byte) error
	SetIfAbsent(ctx context.Context, domain, key string, value []byte) (bool, error)
	Delete(ctx context.Context, domain, key string) error
	List(ctx context.Context, domain string) (map[string][]byte, error)
}
