package cart

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "", ttl), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	_, err := store.Load(ctx, "a")
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, store.Save(ctx, "a", []byte(`[]`)))
	require.NoError(t, store.Save(ctx, "b", []byte(`[{"id":"x"}]`)))
	require.True(t, mr.Exists("cart:a"))
	require.Equal(t, time.Hour, mr.TTL("cart:a"))

	data, err := store.Load(ctx, "b")
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"x"}]`, string(data))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, store.Delete(ctx, "a"))
	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keys)
}

func TestRedisStoreExpires(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "a", []byte(`[]`)))

	mr.FastForward(2 * time.Minute)
	_, err := store.Load(ctx, "a")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestServiceOverRedisStore(t *testing.T) {
	store, _ := newRedisStore(t, time.Hour)
	clk := &clock{t: time.Now()}
	svc := newTestService(t, store, clk)
	_, err := svc.Add(context.Background(), draft("Ola", "Hansen"))
	require.NoError(t, err)

	reopened := newTestService(t, store, clk)
	require.Equal(t, 1, reopened.Len())
}

func TestMemoryStoreCopiesData(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	buf := []byte(`[1]`)
	require.NoError(t, store.Save(ctx, "a", buf))
	buf[1] = '2'

	data, err := store.Load(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, `[1]`, string(data))
}
