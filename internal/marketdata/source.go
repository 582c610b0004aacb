// Package marketdata implements the market-data capability: trailing daily
// bars plus a live quote for a symbol.
//
// Three tiers are composed into a Chain, tried in order:
//   - Client (primary):  HTTP quote API via resty, rate-limited and retried
//   - BarCache:          local gzip daily-bar files written through from HTTP hits
//   - Client (fallback): a second HTTP API, same wire shape
//
// Callers see a single Fetch(ctx, symbol) that returns a types.Snapshot
// tagged with whichever tier served it.
package marketdata

import (
	"context"

	"paper-trader/pkg/types"
)

// Source is the market-data capability used by the classifier, the
// strategy engines, and the executor.
type Source interface {
	Fetch(ctx context.Context, symbol string) (types.Snapshot, error)
}

// Details carries the company metadata the classifier folds into a
// StockProfile. Zero values mean unknown.
type Details struct {
	MarketCap float64
	Sector    string
	IsETF     bool
}

// DetailSource is an optional capability for company metadata. The primary
// HTTP client implements it; the cache and fallback tiers do not need to.
type DetailSource interface {
	Details(ctx context.Context, symbol string) (Details, error)
}
