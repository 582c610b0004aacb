package strategy

import (
	"fmt"
	"math"
	"time"

	"paper-trader/internal/config"
	"paper-trader/internal/indicators"
	"paper-trader/pkg/types"
)

// breakoutMargin is how far above resistance the price must clear before
// a breakout counts. Filters out prints that merely touch the level.
const breakoutMargin = 0.001

// Momentum is the breakout engine: buy a close above recent resistance
// confirmed by volume and a fast/slow moving-average alignment, then ride
// it with a ratcheting trailing stop.
type Momentum struct {
	cfg config.MomentumConfig
}

func NewMomentum(cfg config.MomentumConfig) *Momentum {
	return &Momentum{cfg: cfg}
}

func (e *Momentum) Name() string { return types.StrategyMomentumBreakout }

func (e *Momentum) RequiredHistory() int {
	if e.cfg.BreakoutPeriod > 20 {
		return e.cfg.BreakoutPeriod
	}
	return 20
}

func (e *Momentum) PositionSize(pf Portfolio, price, capFraction float64) int64 {
	return Shares(pf.Cash, price, capFraction)
}

func (e *Momentum) GenerateSignal(symbol string, snap types.Snapshot, pf Portfolio) types.TradeSignal {
	if len(snap.Closes) < e.RequiredHistory() || len(snap.Volumes) < e.RequiredHistory() {
		return hold(symbol, reasonInsufficientData, nil)
	}

	resistance := indicators.Resistance(snap.Closes, e.cfg.BreakoutPeriod)
	avgVolume := indicators.AvgVolumePrior(snap.Volumes, e.cfg.BreakoutPeriod)
	maFast := indicators.SMA(snap.Closes, 5)
	maSlow := indicators.SMA(snap.Closes, 20)
	ind := map[string]float64{
		"resistance": resistance,
		"avg_volume": avgVolume,
		"ma_fast":    maFast,
		"ma_slow":    maSlow,
	}

	price := snap.CurrentPrice
	if price <= resistance*(1+breakoutMargin) {
		return hold(symbol, fmt.Sprintf("price %.2f has not cleared resistance %.2f", price, resistance), ind)
	}
	if snap.CurrentVolume < avgVolume*e.cfg.VolumeMultiple {
		return hold(symbol, fmt.Sprintf("volume %.0f below %.1fx average %.0f", snap.CurrentVolume, e.cfg.VolumeMultiple, avgVolume), ind)
	}
	if maFast <= maSlow {
		return hold(symbol, "fast average not above slow average", ind)
	}

	qty := e.PositionSize(pf, price, e.cfg.PositionSize)
	if qty == 0 {
		return hold(symbol, "position size rounds to zero shares", ind)
	}

	// Initial stop is whichever of the fixed and trailing distances sits
	// closer to the entry price.
	stop := math.Max(price*(1-e.cfg.StopLoss), price*(1-e.cfg.TrailingStop))
	return types.TradeSignal{
		Action:       types.ActionBuy,
		Symbol:       symbol,
		Quantity:     qty,
		Price:        price,
		StopLoss:     stop,
		ProfitTarget: price * (1 + e.cfg.ProfitTarget),
		Confidence:   0.85,
		Reason:       fmt.Sprintf("breakout above %.2f on %.1fx volume", resistance, snap.CurrentVolume/avgVolume),
		Indicators:   ind,
	}
}

// MonitorPosition ratchets the trailing stop before evaluating exits.
// When the price makes a new high, the stop moves up to trail it and the
// caller persists the updated row; the stop never moves down.
func (e *Momentum) MonitorPosition(pos *types.Position, snap types.Snapshot, asOf time.Time) types.TradeSignal {
	price := snap.CurrentPrice

	if price > pos.MaxSeen {
		pos.MaxSeen = price
		if trail := pos.MaxSeen * (1 - e.cfg.TrailingStop); trail > pos.StopLoss {
			pos.StopLoss = trail
		}
		pos.LastUpdated = asOf
	}

	ind := map[string]float64{"max_seen": pos.MaxSeen, "effective_stop": pos.StopLoss}

	if pos.StopLoss > 0 && price <= pos.StopLoss {
		return sell(pos, price, "trailing stop", ind)
	}
	if pos.ProfitTarget > 0 && price >= pos.ProfitTarget {
		return sell(pos, price, "profit target", ind)
	}
	if len(snap.Closes) >= 20 {
		maFast := indicators.SMA(snap.Closes, 5)
		maSlow := indicators.SMA(snap.Closes, 20)
		ind["ma_fast"], ind["ma_slow"] = maFast, maSlow
		if maFast < maSlow {
			return sell(pos, price, "momentum lost", ind)
		}
	}
	if d := holdDays(pos.EntryTime, asOf); d >= float64(e.cfg.MaxHoldDays) {
		return sell(pos, price, fmt.Sprintf("held %.0f days, limit %d", d, e.cfg.MaxHoldDays), ind)
	}
	return hold(pos.Symbol, "no exit condition", ind)
}
