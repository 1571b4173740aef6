package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, time.Minute), mr
}

func TestStore_LockRememberRecall(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	ok, err := store.TryLock(ctx, "orders", "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TryLock(ctx, "orders", "abc")
	require.NoError(t, err)
	assert.False(t, ok, "second claim must fail")

	_, found, err := store.Recall(ctx, "orders", "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Remember(ctx, "orders", "abc", `{"order_id":1}`))

	val, found, err := store.Recall(ctx, "orders", "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"order_id":1}`, val)
}

func TestStore_ReleaseAllowsRetry(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	ok, err := store.TryLock(ctx, "orders", "k")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Release(ctx, "orders", "k"))

	ok, err = store.TryLock(ctx, "orders", "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_KeysExpire(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	_, err := store.TryLock(ctx, "orders", "k")
	require.NoError(t, err)
	require.NoError(t, store.Remember(ctx, "orders", "k", "v"))

	mr.FastForward(2 * time.Minute)

	_, found, err := store.Recall(ctx, "orders", "k")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := store.TryLock(ctx, "orders", "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	addr := mr.Addr()
	rdb, err := NewClient(context.Background(), addr, "", 0)
	require.NoError(t, err)
	require.NoError(t, rdb.Close())

	mr.Close()
	_, err = NewClient(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
