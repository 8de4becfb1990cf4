package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hogtech/orderflow/internal/domain"
)

type countingSource struct {
	calls    int
	settings domain.StoreSettings
	err      error
}

func (s *countingSource) GetStoreSettings(context.Context) (domain.StoreSettings, error) {
	s.calls++
	return s.settings, s.err
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestSettingsCacheMemoryTTL(t *testing.T) {
	threshold := 500.0
	source := &countingSource{settings: domain.StoreSettings{Currency: "GHS", FreeShippingThreshold: &threshold}}
	now := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	cache, err := NewSettingsCache(source, WithTTL(time.Minute), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := cache.StoreSettings(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "GHS", got.Currency)
	}
	assert.Equal(t, 1, source.calls)

	now = now.Add(2 * time.Minute)
	_, err = cache.StoreSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestSettingsCacheRedisShared(t *testing.T) {
	srv, client := newRedis(t)
	source := &countingSource{settings: domain.StoreSettings{Currency: "GHS", AdminEmail: "ops@example.com"}}

	first, err := NewSettingsCache(source, WithRedis(client), WithTTL(time.Minute))
	require.NoError(t, err)
	second, err := NewSettingsCache(source, WithRedis(client))
	require.NoError(t, err)

	got, err := first.StoreSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", got.AdminEmail)

	got, err = second.StoreSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "GHS", got.Currency)
	assert.Equal(t, 1, source.calls, "second instance should read the shared entry")

	srv.FastForward(2 * time.Minute)
	_, err = second.StoreSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)

	require.NoError(t, first.Invalidate(context.Background()))
	assert.False(t, srv.Exists(settingsKey))
}

func TestSettingsCacheRedisUnavailableFallsBackToSource(t *testing.T) {
	srv, client := newRedis(t)
	source := &countingSource{settings: domain.StoreSettings{Currency: "GHS"}}
	cache, err := NewSettingsCache(source, WithRedis(client))
	require.NoError(t, err)

	srv.Close()
	got, err := cache.StoreSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "GHS", got.Currency)
}

func TestSettingsCacheSourceError(t *testing.T) {
	source := &countingSource{err: errors.New("firestore down")}
	cache, err := NewSettingsCache(source)
	require.NoError(t, err)
	_, err = cache.StoreSettings(context.Background())
	assert.Error(t, err)
}

func TestRedisLocker(t *testing.T) {
	srv, client := newRedis(t)
	locker, err := NewRedisLocker(client, 10*time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "payment-ref:TXN-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.Acquire(ctx, "payment-ref:TXN-1")
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be rejected")

	release()
	_, ok, err = locker.Acquire(ctx, "payment-ref:TXN-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// An expired lock taken by someone else is not released by the stale holder.
	staleRelease, ok, err := locker.Acquire(ctx, "payment-ref:TXN-2")
	require.NoError(t, err)
	require.True(t, ok)
	srv.FastForward(11 * time.Second)
	_, ok, err = locker.Acquire(ctx, "payment-ref:TXN-2")
	require.NoError(t, err)
	require.True(t, ok)
	staleRelease()
	assert.True(t, srv.Exists(lockKeyPrefix+"payment-ref:TXN-2"))
}

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker(time.Minute)
	now := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }

	release, ok, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locker.Acquire(context.Background(), "k")
	assert.False(t, ok)

	release()
	_, ok, _ = locker.Acquire(context.Background(), "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = locker.Acquire(context.Background(), "k")
	assert.True(t, ok, "expired entries are reclaimed")

	_, _, err = locker.Acquire(context.Background(), " ")
	assert.Error(t, err)
}
