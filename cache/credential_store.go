package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("key not found")

// CredentialStore is a key-value store with per-key expiry holding serialized
// session records. Implementations must be safe for concurrent use and must
// report transport failures wrapped in domain.ErrStoreUnavailable.
type CredentialStore interface {
	// Put writes value under key with the given expiry in a single operation.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// RefreshTTL resets the expiry of key to ttl, or returns ErrNotFound.
	RefreshTTL(ctx context.Context, key string, ttl time.Duration) error
	// TTL reports the remaining lifetime of key, or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying connection.
	Close() error
}
