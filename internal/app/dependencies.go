// Package app assembles the services shared by the API and the worker from
// configuration. Postgres and Redis are optional: without them the catalog
// falls back to the built-in packages and carts and orders live in memory.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/cart"
	"github.com/noah-isme/dansestudio/internal/catalog"
	"github.com/noah-isme/dansestudio/internal/checkout"
	"github.com/noah-isme/dansestudio/internal/config"
	"github.com/noah-isme/dansestudio/internal/db"
	"github.com/noah-isme/dansestudio/internal/lock"
	"github.com/noah-isme/dansestudio/internal/payment"
	"github.com/noah-isme/dansestudio/internal/pricing"
)

// cartGrace keeps a snapshot in Redis a little past the item TTL so the
// sweeper, not key expiry, is what removes stale students.
const cartGrace = 10 * time.Minute

// Dependencies enumerates the infrastructure and domain services shared by
// the binaries.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client

	Engine   *pricing.Engine
	Catalog  catalog.Provider
	Carts    *cart.Registry
	Orders   checkout.OrderStore
	Gateway  payment.Gateway
	Breaker  *payment.Breaker
	redisOpt *redis.Options
}

// Open connects to the configured backing services and wires the domain
// services on top of them.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger}

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		d.DB = pool
	} else {
		logger.Warn().Msg("DATABASE_URL not set: using built-in catalog and in-memory orders")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			d.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		d.Redis = client
		d.redisOpt = opts
	} else {
		logger.Warn().Msg("REDIS_URL not set: carts are kept in process memory")
	}

	d.Engine = pricing.NewEngine(cfg.FamilyRates, logger.With().Str("component", "pricing").Logger())
	d.Catalog = d.buildCatalog()
	d.Carts = d.buildCarts()
	d.Orders = d.buildOrders()
	d.Gateway, d.Breaker = d.buildGateway()
	return d, nil
}

func (d *Dependencies) buildCatalog() catalog.Provider {
	var source catalog.Provider = catalog.StaticProvider{Items: catalog.DefaultPackages()}
	if d.DB != nil {
		source = catalog.PostgresProvider{Pool: d.DB}
	}
	if d.Redis == nil || d.Config.CatalogCacheTTL <= 0 {
		return source
	}
	return &catalog.CachedProvider{
		Source: source,
		Cache:  catalog.NewCache(d.Redis, d.Config.CatalogCacheTTL),
		Logger: d.Logger.With().Str("component", "catalog").Logger(),
	}
}

func (d *Dependencies) buildCarts() *cart.Registry {
	reg := &cart.Registry{
		Catalog: d.Catalog,
		Engine:  d.Engine,
		TTL:     d.Config.CartTTL,
		LockTTL: d.Config.CartLockTTL,
		Logger:  d.Logger.With().Str("component", "cart").Logger(),
	}
	if d.Redis == nil {
		reg.Store = cart.NewMemoryStore()
		return reg
	}
	reg.Store = cart.NewRedisStore(d.Redis, "", d.Config.CartTTL+cartGrace)
	reg.Locker = lock.Locker{
		R:       d.Redis,
		MaxWait: d.Config.CartLockTTL,
		Logger:  d.Logger.With().Str("component", "lock").Logger(),
	}
	return reg
}

func (d *Dependencies) buildOrders() checkout.OrderStore {
	if d.DB == nil {
		return checkout.NewMemoryOrderStore()
	}
	return checkout.PostgresOrderStore{Pool: d.DB}
}

func (d *Dependencies) buildGateway() (payment.Gateway, *payment.Breaker) {
	cfg := d.Config
	var gw payment.Gateway
	switch cfg.PaymentProvider {
	case "http":
		gw = payment.HTTPGateway{
			BaseURL:     cfg.PaymentBaseURL,
			APIKey:      cfg.PaymentAPIKey,
			Client:      payment.NewHTTPClient(cfg.PaymentTimeout),
			MaxAttempts: cfg.PaymentMaxAttempts,
		}
	default:
		gw = payment.MockGateway{BaseURL: cfg.PaymentBaseURL}
	}
	breaker := payment.NewBreaker(gw.Name(), cfg.BreakerMinRequests, cfg.BreakerFailRatio, cfg.BreakerOpenFor,
		d.Logger.With().Str("component", "payment").Logger())
	return payment.BreakerGateway{Gateway: gw, Breaker: breaker}, breaker
}

// AsynqRedis returns the connection options for the task queue. It reports
// false when Redis is not configured.
func (d *Dependencies) AsynqRedis() (asynq.RedisConnOpt, bool) {
	if d.redisOpt == nil {
		return nil, false
	}
	return asynq.RedisClientOpt{
		Network:   d.redisOpt.Network,
		Addr:      d.redisOpt.Addr,
		Username:  d.redisOpt.Username,
		Password:  d.redisOpt.Password,
		DB:        d.redisOpt.DB,
		TLSConfig: d.redisOpt.TLSConfig,
	}, true
}

// Close releases the backing connections.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
