// Package strategy implements the trading engines behind a common
// capability set.
//
// Engines are stateless between calls: everything a decision needs
// arrives as arguments, and the only thing an engine wants remembered
// between monitor ticks (the momentum trailing stop) lives on the
// Position row. GenerateSignal is pure given its inputs, which keeps
// the engines trivially parallel-safe for the worker pool.
package strategy

import (
	"fmt"
	"math"
	"time"

	"paper-trader/internal/config"
	"paper-trader/pkg/types"
)

const reasonInsufficientData = "insufficient data"

// Portfolio is the engine's read-only view of the account: cash on hand
// and open positions keyed by symbol.
type Portfolio struct {
	Cash      float64
	Positions map[string]types.Position
}

func (p Portfolio) HasPosition(symbol string) bool {
	_, ok := p.Positions[symbol]
	return ok
}

// Engine is the capability set every strategy variant provides.
//
// MonitorPosition takes the position by pointer because the momentum
// engine ratchets MaxSeen and StopLoss in place; the caller persists the
// row when those fields change. It receives a full Snapshot rather than
// a bare price because two of the exit rules (RSI overbought, moving
// average cross) need trailing closes.
type Engine interface {
	Name() string
	RequiredHistory() int
	GenerateSignal(symbol string, snap types.Snapshot, pf Portfolio) types.TradeSignal
	MonitorPosition(pos *types.Position, snap types.Snapshot, asOf time.Time) types.TradeSignal
	PositionSize(pf Portfolio, price, capFraction float64) int64
}

// New returns the engine registered under name. minStopBuffer is the
// routing-level minimum stop gap, which floors the RSI engine's stop
// distance.
func New(name string, cfg config.EnginesConfig, minStopBuffer float64) (Engine, error) {
	switch name {
	case types.StrategyRSIMeanReversion:
		return NewRSI(cfg.RSI, minStopBuffer), nil
	case types.StrategyMomentumBreakout:
		return NewMomentum(cfg.Momentum), nil
	case types.StrategyBollingerMeanReversion:
		return NewBollinger(cfg.Bollinger), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// All builds every engine, keyed by strategy name.
func All(cfg config.EnginesConfig, minStopBuffer float64) map[string]Engine {
	return map[string]Engine{
		types.StrategyRSIMeanReversion:       NewRSI(cfg.RSI, minStopBuffer),
		types.StrategyMomentumBreakout:       NewMomentum(cfg.Momentum),
		types.StrategyBollingerMeanReversion: NewBollinger(cfg.Bollinger),
	}
}

// Shares converts a cash fraction into whole shares, flooring toward
// zero. Never negative.
func Shares(cash, price, capFraction float64) int64 {
	if cash <= 0 || price <= 0 || capFraction <= 0 {
		return 0
	}
	return int64(math.Floor(cash * capFraction / price))
}

func hold(symbol, reason string, indicators map[string]float64) types.TradeSignal {
	return types.TradeSignal{
		Action:     types.ActionHold,
		Symbol:     symbol,
		Reason:     reason,
		Indicators: indicators,
	}
}

func sell(pos *types.Position, price float64, reason string, indicators map[string]float64) types.TradeSignal {
	return types.TradeSignal{
		Action:     types.ActionSell,
		Symbol:     pos.Symbol,
		Quantity:   pos.Quantity,
		Price:      price,
		Reason:     reason,
		Indicators: indicators,
	}
}

// holdDays measures position age in fractional days.
func holdDays(entry, asOf time.Time) float64 {
	return asOf.Sub(entry).Hours() / 24
}
