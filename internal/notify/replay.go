package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ReplayGuard claims a key so a notification is delivered at most once even
// when the queue redelivers its task.
type ReplayGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisReplayGuard implements ReplayGuard with SETNX.
type RedisReplayGuard struct {
	Client *redis.Client
}

// Acquire claims key for ttl. Without a client every claim succeeds.
func (r RedisReplayGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	return r.Client.SetNX(ctx, key, "1", ttl).Result()
}

// Release drops the claim on key.
func (r RedisReplayGuard) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}
