package cart

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/common"
	"github.com/noah-isme/dansestudio/internal/lock"
	"github.com/noah-isme/dansestudio/internal/pricing"
)

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Registry opens carts on demand and makes sure that at most one unit of work
// runs against a given cart at a time. Foreground requests and the expiry
// sweep both go through WithCart.
type Registry struct {
	Store   Store
	Catalog Catalog
	Engine  *pricing.Engine
	TTL     time.Duration
	Now     func() time.Time
	Locker  Locker
	LockTTL time.Duration
	Logger  zerolog.Logger

	mu    sync.Mutex
	local map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// WithCart opens the cart identified by key and runs fn while holding the
// cart's lock.
func (r *Registry) WithCart(ctx context.Context, key string, fn func(context.Context, *Service) error) error {
	run := func(ctx context.Context) error {
		svc, err := Open(ctx, Config{
			Key:     key,
			Store:   r.Store,
			Catalog: r.Catalog,
			Engine:  r.Engine,
			TTL:     r.TTL,
			Now:     r.Now,
			Logger:  r.Logger,
		})
		if err != nil {
			return err
		}
		return fn(ctx, svc)
	}

	unlock, err := r.lockLocal(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	if r.Locker == nil {
		return run(ctx)
	}
	err = r.Locker.WithLock(ctx, "lock:cart:"+key, r.lockTTL(), run)
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		r.Logger.Warn().Str("cart_id", key).Msg("cart busy")
		return common.NewAppError("CART_BUSY", "cart is being updated, try again", http.StatusConflict, err)
	case errors.Is(err, lock.ErrLockLost):
		r.Logger.Error().Err(err).Str("cart_id", key).Msg("cart lock lost mid-operation")
		return common.NewAppError("CART_BUSY", "cart is being updated, try again", http.StatusConflict, err)
	}
	return err
}

func (r *Registry) lockTTL() time.Duration {
	if r.LockTTL <= 0 {
		return 10 * time.Second
	}
	return r.LockTTL
}

// lockLocal takes an in-process lock for key and returns its release func.
// It gives up with ctx's error if ctx ends first.
func (r *Registry) lockLocal(ctx context.Context, key string) (func(), error) {
	r.mu.Lock()
	if r.local == nil {
		r.local = make(map[string]*keyLock)
	}
	l, ok := r.local[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		r.local[key] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		r.unref(key, l)
		return nil, ctx.Err()
	}
	return func() {
		<-l.sem
		r.unref(key, l)
	}, nil
}

func (r *Registry) unref(key string, l *keyLock) {
	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.local, key)
	}
	r.mu.Unlock()
}
