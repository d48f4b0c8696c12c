package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Quantity int64 `json:"quantity"`
}

func newTestCache(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "inventory", time.Minute), mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	loads := 0
	loader := func(context.Context) (any, error) {
		loads++
		return snapshot{Quantity: int64(loads * 10)}, nil
	}

	key, err := c.BuildKey(ctx, "all")
	require.NoError(t, err)
	require.Equal(t, "inventory:all:1", key)

	var got snapshot
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, int64(10), got.Quantity)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, loads)

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "all")
	require.NoError(t, err)
	require.Equal(t, "inventory:all:2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, int64(20), got.Quantity)
	require.Equal(t, 2, loads)
}

func TestFetchJSONPropagatesLoaderError(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var got snapshot
	err := c.FetchJSON(ctx, "inventory:x:1", &got, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("inventory:x:1"))
}

func TestNilClientBypassesCache(t *testing.T) {
	c := NewVersioned(nil, "inventory", 0)
	ctx := context.Background()
	key, err := c.BuildKey(ctx, "p1", "M")
	require.NoError(t, err)
	require.Equal(t, "inventory:p1:M", key)

	loads := 0
	var got snapshot
	for i := 0; i < 2; i++ {
		require.NoError(t, c.FetchJSON(ctx, key, &got, func(context.Context) (any, error) {
			loads++
			return snapshot{Quantity: 3}, nil
		}))
	}
	require.Equal(t, 2, loads)
	require.Equal(t, int64(3), got.Quantity)
	require.NoError(t, c.Bump(ctx))
}
