package shared

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	locker.retries = 2
	locker.backoff = time.Millisecond
	return locker, mr
}

func TestAcquireAndRelease(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	key := ProductLockKey(42)
	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	release()
	require.False(t, mr.Exists(key))
}

func TestAcquireContendedKeyFails(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	key := TransactionLockKey(uuid.New())
	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	defer release()

	_, err = locker.Acquire(ctx, key)
	require.ErrorIs(t, err, ErrLockHeld)
}

func TestReleaseDoesNotStealExpiredLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	key := ProductLockKey(7)
	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	// Simulate TTL expiry followed by another holder taking the key.
	mr.FastForward(time.Minute)
	second, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	defer second()

	release()
	require.True(t, mr.Exists(key), "first holder's release must not delete the second holder's lock")
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *Locker
	release, err := locker.Acquire(context.Background(), "anything")
	require.NoError(t, err)
	release()
}
