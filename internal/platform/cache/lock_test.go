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
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, "shiftplanner:lock:"), mr
}

func TestLockerExcludesConcurrentHolders(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "generate:1:2024-03", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("shiftplanner:lock:generate:1:2024-03"))

	_, ok, err = locker.TryLock(ctx, "generate:1:2024-03", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	_, ok, err = locker.TryLock(ctx, "generate:1:2024-04", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "different month is independent")

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("shiftplanner:lock:generate:1:2024-03"))

	_, ok, err = locker.TryLock(ctx, "generate:1:2024-03", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerReleaseAfterExpiryDoesNotStealLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = release(ctx)
	assert.True(t, errors.Is(err, ErrLockNotHeld))
	assert.True(t, mr.Exists("shiftplanner:lock:k"), "new holder keeps the lock")
}

func TestLockerRejectsBadInput(t *testing.T) {
	var nilLocker *Locker
	_, _, err := nilLocker.TryLock(context.Background(), "k", time.Second)
	require.Error(t, err)

	locker, _ := newTestLocker(t)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	require.Error(t, err)
}

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	addr := mr.Addr()
	mr.Close()
	_, err = New(context.Background(), Options{Addr: addr})
	require.Error(t, err)
}
