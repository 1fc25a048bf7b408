package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	value := []byte("record")
	require.NoError(t, store.Put(ctx, "session:1", value, time.Hour))

	// Mutating the caller's buffer must not leak into the store.
	value[0] = 'X'

	got, err := store.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.Equal(t, "record", string(got))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.Get(context.Background(), "session:none")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.TTL(context.Background(), "session:none")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.RefreshTTL(context.Background(), "session:none", time.Hour)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session:1", []byte("v"), 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	_, err := store.Get(ctx, "session:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RefreshTTL(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session:1", []byte("v"), time.Minute))
	require.NoError(t, store.RefreshTTL(ctx, "session:1", 18*time.Hour))

	ttl, err := store.TTL(ctx, "session:1")
	require.NoError(t, err)
	assert.InDelta(t, float64(18*time.Hour), float64(ttl), float64(time.Second))

	got, err := store.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session:1", []byte("v"), time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Get(ctx, "session:1")
			_ = store.RefreshTTL(ctx, "session:1", time.Hour)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("2c5f8ebf-1ade-4746-bded-c4502a9f5d2e")
	assert.Len(t, fp, 12)
	assert.Equal(t, fp, Fingerprint("2c5f8ebf-1ade-4746-bded-c4502a9f5d2e"))
	assert.NotEqual(t, fp, Fingerprint("other"))
}
