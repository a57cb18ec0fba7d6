package cart

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically removes expired items from every stored cart.
type Sweeper struct {
	Registry *Registry
	Interval time.Duration
	Logger   zerolog.Logger
}

// Run sweeps on every tick until ctx is cancelled.
func (s Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.Logger.Error().Err(err).Msg("cart sweep")
			}
		}
	}
}

// SweepOnce refreshes every stored cart and returns the number of removed items.
func (s Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.Registry == nil || s.Registry.Store == nil {
		return 0, errors.New("cart sweeper: registry not configured")
	}
	keys, err := s.Registry.Store.Keys(ctx)
	if err != nil {
		return 0, err
	}
	var (
		total  int
		joined error
	)
	for _, key := range keys {
		err := s.Registry.WithCart(ctx, key, func(ctx context.Context, svc *Service) error {
			removed, err := svc.Refresh(ctx)
			total += removed
			return err
		})
		if err != nil {
			joined = errors.Join(joined, err)
		}
	}
	if total > 0 {
		s.Logger.Info().Int("carts", len(keys)).Int("removed", total).Msg("cart sweep completed")
	}
	return total, joined
}
