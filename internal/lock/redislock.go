package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrNotAcquired is returned when the lock could not be taken within MaxWait.
	ErrNotAcquired = errors.New("lock: not acquired")
	// ErrLockLost is the cancellation cause seen by a holder whose lock expired
	// or was taken over before it finished.
	ErrLockLost = errors.New("lock: lost")
)

var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

var renewScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)

// Locker provides a Redis-backed mutual exclusion lock keyed by string. It
// serialises cart mutations and the expiry sweep across API and worker
// processes.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock polls for a held lock. Zero waits
	// until ctx is done.
	MaxWait time.Duration
	// RenewEvery is how often the holder extends the lock while fn runs.
	// Defaults to a third of the ttl.
	RenewEvery time.Duration
	Logger     zerolog.Logger
}

// WithLock executes fn while holding the lock for key. The lock is extended
// while fn runs, expires after ttl if the holder dies, and is released when fn
// returns, but only if it is still owned by this caller. If ownership is lost
// midway, the context passed to fn is cancelled with ErrLockLost as its cause.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer l.release(key, token)

	lockCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := l.keepAlive(lockCtx, cancel, key, token, ttl)
	err = fn(lockCtx)
	stop()
	if cause := context.Cause(lockCtx); err != nil && errors.Is(cause, ErrLockLost) {
		return errors.Join(cause, err)
	}
	return err
}

// keepAlive extends the lock every RenewEvery until the returned stop func is
// called. A failed ownership check cancels ctx with ErrLockLost.
func (l Locker) keepAlive(ctx context.Context, lost context.CancelCauseFunc, key, token string, ttl time.Duration) func() {
	interval := l.RenewEvery
	if interval <= 0 {
		interval = max(ttl/3, time.Millisecond)
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			owned, err := renewScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.Logger.Warn().Err(err).Str("key", key).Msg("lock renew failed")
				continue
			}
			if owned == 0 {
				l.Logger.Warn().Str("key", key).Msg("lock lost before holder finished")
				lost(fmt.Errorf("%w: %s", ErrLockLost, key))
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	var deadline <-chan time.Time
	if l.MaxWait > 0 {
		t := time.NewTimer(l.MaxWait)
		defer t.Stop()
		deadline = t.C
	}

	for attempt := 0; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			if attempt > 0 {
				l.Logger.Debug().Str("key", key).Int("attempts", attempt+1).Msg("lock acquired after contention")
			}
			return token, nil
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-deadline:
			timer.Stop()
			l.Logger.Warn().Str("key", key).Dur("waited", l.MaxWait).Msg("lock wait exceeded")
			return "", fmt.Errorf("%w: %s", ErrNotAcquired, key)
		case <-timer.C:
		}
	}
}

func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.R, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.Logger.Warn().Err(err).Str("key", key).Msg("lock release failed")
	}
}
