package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore implements CredentialStore using ttlcache. It only serves a
// single process, so it is meant for development and tests.
type MemoryStore struct {
	mu    sync.Mutex // serializes writers so RefreshTTL never races a Put
	cache *ttlcache.Cache[string, []byte]
}

// NewMemoryStore creates a new in-memory credential store with automatic
// cleanup of expired entries.
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryStore{cache: cache}
}

// Put implements CredentialStore.Put.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(value))
	copy(buf, value)
	s.cache.Set(key, buf, ttl)

	return nil
}

// Get implements CredentialStore.Get.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, ErrNotFound
	}

	value := item.Value()
	buf := make([]byte, len(value))
	copy(buf, value)

	return buf, nil
}

// RefreshTTL implements CredentialStore.RefreshTTL.
func (s *MemoryStore) RefreshTTL(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return ErrNotFound
	}
	s.cache.Set(key, item.Value(), ttl)

	return nil
}

// TTL implements CredentialStore.TTL.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return 0, ErrNotFound
	}

	return time.Until(item.ExpiresAt()), nil
}

// Ping implements CredentialStore.Ping. The memory store is always reachable.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Len counts the live entries in the store.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cache.Stop()

	return nil
}
