// Package classify derives a StockProfile for a symbol from recent market
// data and optional company metadata. The profile is computed on demand
// and never persisted; the router keys its rule table off it.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"paper-trader/internal/config"
	"paper-trader/internal/indicators"
	"paper-trader/internal/marketdata"
	"paper-trader/pkg/types"
)

// Market caps above this (and at or below the large-cap threshold) are
// mid caps; anything positive below is a small cap.
const midCapThreshold = 10e9

// Classifier builds StockProfiles. Company metadata comes from an
// optional DetailSource; when it is nil or failing, market cap stays 0 and
// the sector stays UNKNOWN, which the rule table tolerates.
type Classifier struct {
	cfg     config.RoutingConfig
	source  marketdata.Source
	details marketdata.DetailSource
	etf     map[string]bool
	logger  *slog.Logger
}

// New creates a classifier. details may be nil.
func New(cfg config.RoutingConfig, source marketdata.Source, details marketdata.DetailSource, logger *slog.Logger) *Classifier {
	etf := make(map[string]bool, len(cfg.ETFSymbols))
	for _, s := range cfg.ETFSymbols {
		etf[strings.ToUpper(s)] = true
	}
	return &Classifier{
		cfg:     cfg,
		source:  source,
		details: details,
		etf:     etf,
		logger:  logger.With("component", "classify"),
	}
}

// Classify derives the profile for one symbol. Market-data failure
// propagates; metadata failure degrades to unknown fields.
func (c *Classifier) Classify(ctx context.Context, symbol string) (types.StockProfile, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || len(symbol) > 10 {
		return types.StockProfile{}, fmt.Errorf("invalid symbol %q", symbol)
	}

	snap, err := c.source.Fetch(ctx, symbol)
	if err != nil {
		return types.StockProfile{}, fmt.Errorf("classify %s: %w", symbol, err)
	}
	if len(snap.Closes) < 20 {
		c.logger.Warn("thin history", "symbol", symbol, "closes", len(snap.Closes))
	}

	price := snap.CurrentPrice
	if price <= 0 && len(snap.Closes) > 0 {
		price = snap.Closes[len(snap.Closes)-1]
	}

	profile := types.StockProfile{
		Symbol:               symbol,
		Price:                price,
		VolatilityAnnualized: indicators.AnnualizedVolatility(snap.Closes),
		Sector:               "UNKNOWN",
		IsETF:                c.etf[symbol],
		AvgVolume:            indicators.Mean(snap.Volumes),
	}

	if c.details != nil {
		det, err := c.details.Details(ctx, symbol)
		if err != nil {
			c.logger.Debug("company details unavailable", "symbol", symbol, "error", err)
		} else {
			profile.MarketCap = det.MarketCap
			if det.Sector != "" {
				profile.Sector = det.Sector
			}
			profile.IsETF = profile.IsETF || det.IsETF
		}
	}

	profile.Classification = c.classification(profile)
	return profile, nil
}

// classification applies the tier rules in order; the first match wins.
func (c *Classifier) classification(p types.StockProfile) types.Classification {
	switch {
	case p.IsETF:
		return types.ClassETF
	case p.Price > 0 && p.Price < c.cfg.PennyThreshold:
		return types.ClassPennyStock
	case p.MarketCap > c.cfg.LargeCapThreshold:
		return types.ClassLargeCap
	case p.MarketCap > midCapThreshold:
		return types.ClassMidCap
	case p.MarketCap > 0:
		return types.ClassSmallCap
	default:
		return types.ClassUnknown
	}
}
