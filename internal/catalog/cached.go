package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/dansestudio/internal/pricing"
)

// DefaultCacheKey is the Redis key holding the active package list.
const DefaultCacheKey = "catalog:packages:active"

// CachedProvider fronts a Provider with the Redis cache. Concurrent misses
// share a single load.
type CachedProvider struct {
	Source Provider
	Cache  *Cache
	Key    string
	Logger zerolog.Logger

	group singleflight.Group
}

func (p *CachedProvider) key() string {
	if p.Key == "" {
		return DefaultCacheKey
	}
	return p.Key
}

// Packages implements Provider.
func (p *CachedProvider) Packages(ctx context.Context) ([]pricing.Package, error) {
	if p.Source == nil {
		return nil, fmt.Errorf("cached provider without source: %w", ErrUnavailable)
	}
	key := p.key()
	v, err, _ := p.group.Do(key, func() (any, error) {
		var cached []pricing.Package
		hit, err := p.Cache.GetJSON(ctx, key, &cached)
		if err != nil {
			p.Logger.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
		}
		if hit {
			return cached, nil
		}

		pkgs, err := p.Source.Packages(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if err := p.Cache.SetJSON(ctx, key, pkgs); err != nil {
			p.Logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
		}
		return pkgs, nil
	})
	if err != nil {
		return nil, err
	}
	pkgs := v.([]pricing.Package)
	return append([]pricing.Package(nil), pkgs...), nil
}

// Invalidate drops the cached package list so the next read hits the source.
func (p *CachedProvider) Invalidate(ctx context.Context) error {
	return p.Cache.Delete(ctx, p.key())
}
