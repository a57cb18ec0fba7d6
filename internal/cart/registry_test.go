package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dansestudio/internal/common"
	"github.com/noah-isme/dansestudio/internal/lock"
)

func newTestRegistry(store Store, clk *clock) *Registry {
	return &Registry{
		Store:   store,
		Catalog: testCatalog(),
		TTL:     30 * time.Minute,
		Now:     clk.Now,
		Logger:  zerolog.Nop(),
	}
}

func TestRegistrySerialisesConcurrentAdds(t *testing.T) {
	reg := newTestRegistry(NewMemoryStore(), &clock{t: time.Now()})
	ctx := context.Background()

	names := []string{"Ola", "Kari", "Per", "Nora", "Emil", "Sofie"}
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			err := reg.WithCart(ctx, "c1", func(ctx context.Context, svc *Service) error {
				_, err := svc.Add(ctx, draft(name, "Hansen"))
				return err
			})
			require.NoError(t, err)
		}(name)
	}
	wg.Wait()

	var items []Item
	require.NoError(t, reg.WithCart(ctx, "c1", func(_ context.Context, svc *Service) error {
		items = svc.Items()
		return nil
	}))
	require.Len(t, items, len(names))

	eligible := 0
	for _, it := range items {
		if it.SecondDancer {
			eligible++
		}
	}
	require.Equal(t, len(names)-1, eligible, "only the first student added is not a sibling")
	reg.mu.Lock()
	require.Empty(t, reg.local)
	reg.mu.Unlock()
}

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
}

func (l *recordingLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return fn(ctx)
}

func TestRegistryUsesDistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	reg := newTestRegistry(NewMemoryStore(), &clock{t: time.Now()})
	reg.Locker = locker

	require.NoError(t, reg.WithCart(context.Background(), "abc", func(context.Context, *Service) error { return nil }))
	require.Equal(t, []string{"lock:cart:abc"}, locker.keys)
}

func TestSweeperRemovesExpiredAcrossCarts(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	clk := &clock{t: start}
	store := NewMemoryStore()
	reg := newTestRegistry(store, clk)
	ctx := context.Background()

	for _, key := range []string{"c1", "c2"} {
		require.NoError(t, reg.WithCart(ctx, key, func(ctx context.Context, svc *Service) error {
			_, err := svc.Add(ctx, draft("Ola", "Hansen"))
			return err
		}))
	}
	clk.Advance(10 * time.Minute)
	require.NoError(t, reg.WithCart(ctx, "c2", func(ctx context.Context, svc *Service) error {
		_, err := svc.Add(ctx, draft("Kari", "Hansen"))
		return err
	}))

	sweeper := Sweeper{Registry: reg, Logger: zerolog.Nop()}
	removed, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)

	clk.t = start.Add(31 * time.Minute)
	removed, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, keys)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	reg := newTestRegistry(NewMemoryStore(), &clock{t: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Sweeper{Registry: reg, Interval: 5 * time.Millisecond, Logger: zerolog.Nop()}.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRegistriesShareRedisLockAcrossProcesses(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond, Logger: zerolog.Nop()}

	clk := &clock{t: time.Now()}
	api := newTestRegistry(store, clk)
	api.Locker = locker
	worker := newTestRegistry(store, clk)
	worker.Locker = locker

	ctx := context.Background()
	var wg sync.WaitGroup
	for i, name := range []string{"Ola", "Kari", "Per", "Nora"} {
		reg := api
		if i%2 == 1 {
			reg = worker
		}
		wg.Add(1)
		go func(reg *Registry, name string) {
			defer wg.Done()
			err := reg.WithCart(ctx, "shared", func(ctx context.Context, svc *Service) error {
				_, err := svc.Add(ctx, draft(name, "Berg"))
				return err
			})
			require.NoError(t, err)
		}(reg, name)
	}
	wg.Wait()

	var n int
	require.NoError(t, api.WithCart(ctx, "shared", func(_ context.Context, svc *Service) error {
		n = svc.Len()
		return nil
	}))
	require.Equal(t, 4, n)
	require.False(t, mr.Exists("lock:cart:shared"))
}

func TestWithCartGivesUpWhenContextEndsWhileWaiting(t *testing.T) {
	reg := newTestRegistry(NewMemoryStore(), &clock{t: time.Now()})

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = reg.WithCart(context.Background(), "c", func(context.Context, *Service) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := reg.WithCart(ctx, "c", func(context.Context, *Service) error {
		t.Fatal("ran while another holder had the cart")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 500*time.Millisecond)

	reg.mu.Lock()
	require.Equal(t, 1, reg.local["c"].refs)
	reg.mu.Unlock()
}

func TestWithCartReportsBusyWhenLockIsLost(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := newTestRegistry(store, &clock{t: time.Now()})
	reg.Locker = lock.Locker{R: client, RenewEvery: 5 * time.Millisecond, Logger: zerolog.Nop()}

	err := reg.WithCart(context.Background(), "c7", func(ctx context.Context, _ *Service) error {
		mr.Del("lock:cart:c7")
		<-ctx.Done()
		return ctx.Err()
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "CART_BUSY", appErr.Code)
	require.ErrorIs(t, err, lock.ErrLockLost)
}
