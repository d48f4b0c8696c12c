package shared

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStoreRejectsDuplicateKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewIdempotencyStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "till-1-0001", "sales"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "till-1-0001", "sales"), ErrIdempotencyConflict)
	require.NoError(t, store.CheckAndInsert(ctx, "till-1-0001", "returns"))

	require.NoError(t, store.Delete(ctx, "till-1-0001", "sales"))
	require.NoError(t, store.CheckAndInsert(ctx, "till-1-0001", "sales"))
}

func TestIdempotencyKeysExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewIdempotencyStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "k", "sales"))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, store.CheckAndInsert(ctx, "k", "sales"))
}

func TestIdempotencyStoreValidatesInput(t *testing.T) {
	var nilStore *IdempotencyStore
	require.Error(t, nilStore.CheckAndInsert(context.Background(), "k", "sales"))
	require.NoError(t, nilStore.Delete(context.Background(), "k", "sales"))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewIdempotencyStore(client, 0)
	require.Error(t, store.CheckAndInsert(context.Background(), "", "sales"))
	require.Error(t, store.CheckAndInsert(context.Background(), "k", ""))
}
