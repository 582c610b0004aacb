package strategy

import (
	"fmt"
	"time"

	"paper-trader/internal/config"
	"paper-trader/internal/indicators"
	"paper-trader/pkg/types"
)

// Bollinger is the band mean-reversion engine: buy a touch of the lower
// band, exit on reversion to the middle (or upper, per config).
type Bollinger struct {
	cfg config.BollingerConfig
}

func NewBollinger(cfg config.BollingerConfig) *Bollinger {
	return &Bollinger{cfg: cfg}
}

func (e *Bollinger) Name() string { return types.StrategyBollingerMeanReversion }

func (e *Bollinger) RequiredHistory() int {
	if e.cfg.Period > 20 {
		return e.cfg.Period
	}
	return 20
}

func (e *Bollinger) PositionSize(pf Portfolio, price, capFraction float64) int64 {
	return Shares(pf.Cash, price, capFraction)
}

func (e *Bollinger) GenerateSignal(symbol string, snap types.Snapshot, pf Portfolio) types.TradeSignal {
	if len(snap.Closes) < e.RequiredHistory() {
		return hold(symbol, reasonInsufficientData, nil)
	}

	middle, upper, lower := indicators.Bollinger(snap.Closes, e.cfg.Period, e.cfg.StdDev)
	ind := map[string]float64{"bb_middle": middle, "bb_upper": upper, "bb_lower": lower}

	price := snap.CurrentPrice
	if price > lower {
		return hold(symbol, fmt.Sprintf("price %.2f above lower band %.2f", price, lower), ind)
	}

	qty := e.PositionSize(pf, price, e.cfg.PositionSize)
	if qty == 0 {
		return hold(symbol, "position size rounds to zero shares", ind)
	}

	target := middle
	if !e.cfg.ExitAtMiddle {
		target = upper
	}
	return types.TradeSignal{
		Action:       types.ActionBuy,
		Symbol:       symbol,
		Quantity:     qty,
		Price:        price,
		StopLoss:     price * (1 - e.cfg.StopLoss),
		ProfitTarget: target,
		Confidence:   0.80,
		Reason:       fmt.Sprintf("price %.2f at or below lower band %.2f", price, lower),
		Indicators:   ind,
	}
}

func (e *Bollinger) MonitorPosition(pos *types.Position, snap types.Snapshot, asOf time.Time) types.TradeSignal {
	price := snap.CurrentPrice
	ind := map[string]float64{}

	// Prefer freshly computed bands; the entry-time target on the row is
	// the fallback when the snapshot is too short.
	bandTarget := pos.ProfitTarget
	if len(snap.Closes) >= e.cfg.Period {
		middle, upper, _ := indicators.Bollinger(snap.Closes, e.cfg.Period, e.cfg.StdDev)
		ind["bb_middle"], ind["bb_upper"] = middle, upper
		if e.cfg.ExitAtMiddle {
			bandTarget = middle
		} else {
			bandTarget = upper
		}
	}

	if bandTarget > 0 && price >= bandTarget {
		reason := "reverted to middle band"
		if !e.cfg.ExitAtMiddle {
			reason = "reached upper band"
		}
		return sell(pos, price, reason, ind)
	}
	if gain := price/pos.EntryPrice - 1; pos.EntryPrice > 0 && gain >= e.cfg.ProfitTarget {
		return sell(pos, price, "profit target", ind)
	}
	if pos.StopLoss > 0 && price <= pos.StopLoss {
		return sell(pos, price, "stop loss", ind)
	}
	if d := holdDays(pos.EntryTime, asOf); d >= float64(e.cfg.MaxHoldDays) {
		return sell(pos, price, fmt.Sprintf("held %.0f days, limit %d", d, e.cfg.MaxHoldDays), ind)
	}
	return hold(pos.Symbol, "no exit condition", ind)
}
