package policystore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return redis.NewClient(&redis.Options{Addr: s.Addr()}), s
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "policy-reload", time.Minute)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lock.Release(ctx))

	ok, err = lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_SecondAcquireFails(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	lock1 := NewRedisLock(client, "policy-reload", time.Minute)
	ok, err := lock1.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	lock2 := NewRedisLock(client, "policy-reload", time.Minute)
	ok, err = lock2.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLock_ReleaseOnlyByHolder(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	lock1 := NewRedisLock(client, "policy-reload", time.Minute)
	ok, err := lock1.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate lock1's lease expiring and another holder taking over.
	mr.FastForward(2 * time.Minute)
	lock2 := NewRedisLock(client, "policy-reload", time.Minute)
	ok, err = lock2.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// lock1 releasing now must not evict lock2's lease.
	require.NoError(t, lock1.Release(ctx))
	assert.True(t, mr.Exists("policy-reload"))
}

func TestRedisLock_Extend(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "policy-reload", time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Extend(ctx, time.Minute))
}

func TestRedisLock_ExtendWithoutHoldingFails(t *testing.T) {
	client, _ := newTestClient(t)
	lock := NewRedisLock(client, "policy-reload", time.Minute)
	err := lock.Extend(context.Background(), time.Minute)
	assert.Error(t, err)
}
