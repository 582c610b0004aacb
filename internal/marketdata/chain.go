// chain.go composes the market-data tiers into one Source.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"

	"paper-trader/pkg/types"
)

// Chain tries each tier in order and returns the first successful
// snapshot. HTTP hits are written through to the cache tier so the local
// files stay warm. When every tier fails, the error wraps
// types.ErrDataUnavailable for the executor to classify.
type Chain struct {
	tiers  []Source
	cache  *BarCache // write-through target; nil disables caching
	logger *slog.Logger
}

// NewChain builds a chain over the given tiers. The cache may be nil when
// no cache directory is configured; it should also appear among tiers to
// serve reads.
func NewChain(logger *slog.Logger, cache *BarCache, tiers ...Source) *Chain {
	return &Chain{
		tiers:  tiers,
		cache:  cache,
		logger: logger.With("component", "marketdata"),
	}
}

// Fetch returns the first tier's successful snapshot, trying them in order.
func (c *Chain) Fetch(ctx context.Context, symbol string) (types.Snapshot, error) {
	var lastErr error
	for _, tier := range c.tiers {
		snap, err := tier.Fetch(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return types.Snapshot{}, ctx.Err()
			}
			c.logger.Debug("tier miss", "symbol", symbol, "error", err)
			lastErr = err
			continue
		}

		// Keep the local files warm with anything fetched over HTTP.
		if c.cache != nil && snap.Source != TierCache {
			if err := c.cache.Put(snap); err != nil {
				c.logger.Warn("cache write failed", "symbol", symbol, "error", err)
			}
		}
		return snap, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no tiers configured")
	}
	return types.Snapshot{}, fmt.Errorf("%w: %s: %v", types.ErrDataUnavailable, symbol, lastErr)
}
