package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Fixed applies a ulule rate to every key.
type Fixed struct {
	lim *limiter.Limiter
}

// ParseRate parses the "<limit>-<period>" format, e.g. "10-M".
func ParseRate(formatted string) (limiter.Rate, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return limiter.Rate{}, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	return rate, nil
}

// NewRedis builds a limiter whose counters live in Redis under prefix.
func NewRedis(client *redis.Client, prefix string, rate limiter.Rate) (*Fixed, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("rate limit store: %w", err)
	}
	return &Fixed{lim: limiter.New(store, rate)}, nil
}

// NewMemory builds a process-local limiter.
func NewMemory(prefix string, rate limiter.Rate) *Fixed {
	store := memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute})
	return &Fixed{lim: limiter.New(store, rate)}
}

// Allow implements Limiter.
func (f *Fixed) Allow(ctx context.Context, key string) (Decision, error) {
	lctx, err := f.lim.Get(ctx, key)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		ResetAt:   time.Unix(lctx.Reset, 0),
	}, nil
}
