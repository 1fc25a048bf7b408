package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pilab-dev/neoproxy/cache"
	"github.com/pilab-dev/neoproxy/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *CredentialStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := NewCredentialStore(client, time.Second)
	t.Cleanup(func() { _ = store.Close() })

	return mr, store
}

func TestCredentialStore_PutGet(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session:abc", []byte(`{"a":1}`), domain.SessionTTL))

	val, err := store.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(val))
	assert.Equal(t, domain.SessionTTL, mr.TTL("session:abc"))
}

func TestCredentialStore_GetMissing(t *testing.T) {
	_, store := setupStore(t)

	_, err := store.Get(context.Background(), "session:nope")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestCredentialStore_Expiry(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session:abc", []byte("v"), time.Hour))
	mr.FastForward(time.Hour + time.Second)

	_, err := store.Get(ctx, "session:abc")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestCredentialStore_RefreshTTL(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session:abc", []byte("v"), domain.SessionTTL))
	mr.FastForward(5 * time.Hour)
	assert.Equal(t, 13*time.Hour, mr.TTL("session:abc"))

	require.NoError(t, store.RefreshTTL(ctx, "session:abc", domain.SessionTTL))
	assert.Equal(t, domain.SessionTTL, mr.TTL("session:abc"))

	ttl, err := store.TTL(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionTTL, ttl)

	err = store.RefreshTTL(ctx, "session:missing", domain.SessionTTL)
	assert.ErrorIs(t, err, cache.ErrNotFound)

	_, err = store.TTL(ctx, "session:missing")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestCredentialStore_Unavailable(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()
	mr.Close()

	assert.ErrorIs(t, store.Ping(ctx), domain.ErrStoreUnavailable)
	assert.ErrorIs(t, store.Put(ctx, "k", []byte("v"), time.Minute), domain.ErrStoreUnavailable)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, cache.ErrNotFound)

	assert.ErrorIs(t, store.RefreshTTL(ctx, "k", time.Minute), domain.ErrStoreUnavailable)
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := Open(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	mr.Close()
	store, err = Open(context.Background(), Options{Addr: mr.Addr(), OpTimeout: 200 * time.Millisecond})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.NotNil(t, store)
	_ = store.Close()
}
