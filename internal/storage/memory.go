package storage

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryGateway is an in-process Gateway used for tests and local
// development. Values never expire; lifecycle is managed by Remove calls.
type MemoryGateway struct {
	cache *gocache.Cache
}

// NewMemoryGateway constructs an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{cache: gocache.New(gocache.NoExpiration, 0)}
}

// Get implements Gateway.
func (m *MemoryGateway) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return value.([]byte), true, nil
}

// Set implements Gateway.
func (m *MemoryGateway) Set(_ context.Context, key string, value []byte) error {
	copied := append([]byte(nil), value...)
	m.cache.Set(key, copied, gocache.NoExpiration)
	return nil
}

// Remove implements Gateway.
func (m *MemoryGateway) Remove(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}
