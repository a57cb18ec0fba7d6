package app

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dansestudio/internal/cart"
	"github.com/noah-isme/dansestudio/internal/catalog"
	"github.com/noah-isme/dansestudio/internal/checkout"
	"github.com/noah-isme/dansestudio/internal/config"
	"github.com/noah-isme/dansestudio/internal/lock"
	"github.com/noah-isme/dansestudio/internal/payment"
	"github.com/noah-isme/dansestudio/internal/pricing"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"DATABASE_URL":     "",
		"REDIS_URL":        "",
		"APP_ENV":          "test",
		"PAYMENT_PROVIDER": "mock",
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.LoadForTests(base)
	require.NoError(t, err)
	return cfg
}

func TestOpenWithoutBackingServices(t *testing.T) {
	deps, err := Open(context.Background(), testConfig(t, nil), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	require.Nil(t, deps.DB)
	require.Nil(t, deps.Redis)
	require.IsType(t, catalog.StaticProvider{}, deps.Catalog)
	require.IsType(t, &cart.MemoryStore{}, deps.Carts.Store)
	require.Nil(t, deps.Carts.Locker)
	require.IsType(t, &checkout.MemoryOrderStore{}, deps.Orders)
	require.Equal(t, "mock", deps.Gateway.Name())

	_, ok := deps.AsynqRedis()
	require.False(t, ok)

	pkgs, err := deps.Catalog.Packages(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, pkgs)
}

func TestOpenWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, map[string]string{
		"REDIS_URL":         "redis://" + mr.Addr() + "/0",
		"CART_TTL":          "30m",
		"CATALOG_CACHE_TTL": "1m",
	})
	deps, err := Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	require.IsType(t, &catalog.CachedProvider{}, deps.Catalog)
	require.IsType(t, &cart.RedisStore{}, deps.Carts.Store)
	require.IsType(t, lock.Locker{}, deps.Carts.Locker)
	require.IsType(t, payment.BreakerGateway{}, deps.Gateway)
	require.Equal(t, payment.Closed, deps.Breaker.State())

	opt, ok := deps.AsynqRedis()
	require.True(t, ok)
	require.NotNil(t, opt)

	_, err = deps.Catalog.Packages(context.Background())
	require.NoError(t, err)
	require.True(t, mr.Exists(catalog.DefaultCacheKey))

	err = deps.Carts.WithCart(context.Background(), "c1", func(ctx context.Context, svc *cart.Service) error {
		_, err := svc.Add(ctx, cart.Draft{
			FirstName: "Ola", LastName: "Nordmann", Age: 9,
			Courses: []pricing.Course{{ID: "jazz", Name: "Jazz", AgeRange: "8+ år"}},
		})
		return err
	})
	require.NoError(t, err)
	require.True(t, mr.Exists("cart:c1"))
	require.Equal(t, 40*time.Minute, mr.TTL("cart:c1"))
}
