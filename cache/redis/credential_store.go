package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/neoproxy/cache"
	"github.com/pilab-dev/neoproxy/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultOpTimeout bounds every store round trip when Options.OpTimeout is zero.
const DefaultOpTimeout = 2 * time.Second

// Options configures the Redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	OpTimeout time.Duration
}

// CredentialStore implements cache.CredentialStore using Redis.
type CredentialStore struct {
	client  *redis.Client
	timeout time.Duration
}

var _ cache.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates a new [CredentialStore] on top of an existing
// client. The caller keeps ownership of the client only until Close is called.
func NewCredentialStore(client *redis.Client, timeout time.Duration) *CredentialStore {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return &CredentialStore{
		client:  client,
		timeout: timeout,
	}
}

// Open dials Redis and verifies the connection with a PING. Automatic command
// retries are disabled: a failed write must surface to the caller instead of
// being replayed.
func Open(ctx context.Context, opts Options) (*CredentialStore, error) {
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   -1,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	store := NewCredentialStore(client, timeout)
	if err := store.Ping(ctx); err != nil {
		return store, err
	}

	return store, nil
}

// Put stores the value with its expiry using a single SET ... EX command.
func (s *CredentialStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}

	return nil
}

// Get retrieves a value from Redis.
func (s *CredentialStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrNotFound
	} else if err != nil {
		return nil, unavailable("get", err)
	}

	return val, nil
}

// RefreshTTL resets the expiry of an existing key.
func (s *CredentialStore) RefreshTTL(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return unavailable("expire", err)
	}
	if !ok {
		return cache.ErrNotFound
	}

	return nil
}

// TTL returns the remaining lifetime of a key.
func (s *CredentialStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("ttl", err)
	}
	// -2: key does not exist, -1: key has no expiry.
	if d == -2 {
		return 0, cache.ErrNotFound
	}

	return d, nil
}

// Ping checks the connection.
func (s *CredentialStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}

	return nil
}

// Close closes the underlying client.
func (s *CredentialStore) Close() error {
	return s.client.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", domain.ErrStoreUnavailable, op, err)
}
