package strategy

import (
	"fmt"
	"math"
	"time"

	"paper-trader/internal/config"
	"paper-trader/internal/indicators"
	"paper-trader/pkg/types"
)

// RSI is the mean-reversion engine: buy when the 14-period RSI shows the
// symbol oversold, exit when it swings overbought or a price level hits.
type RSI struct {
	cfg       config.RSIConfig
	minBuffer float64
}

func NewRSI(cfg config.RSIConfig, minStopBuffer float64) *RSI {
	return &RSI{cfg: cfg, minBuffer: minStopBuffer}
}

func (e *RSI) Name() string { return types.StrategyRSIMeanReversion }

func (e *RSI) RequiredHistory() int {
	if e.cfg.Period+1 > 20 {
		return e.cfg.Period + 1
	}
	return 20
}

func (e *RSI) PositionSize(pf Portfolio, price, capFraction float64) int64 {
	return Shares(pf.Cash, price, capFraction)
}

func (e *RSI) GenerateSignal(symbol string, snap types.Snapshot, pf Portfolio) types.TradeSignal {
	if len(snap.Closes) < e.RequiredHistory() {
		return hold(symbol, reasonInsufficientData, nil)
	}

	r := indicators.RSI(snap.Closes, e.cfg.Period)
	ind := map[string]float64{"rsi": r}

	if pf.HasPosition(symbol) {
		return hold(symbol, "position already open", ind)
	}
	if r >= e.cfg.Oversold {
		return hold(symbol, fmt.Sprintf("rsi %.1f not below oversold %.0f", r, e.cfg.Oversold), ind)
	}

	price := snap.CurrentPrice
	qty := e.PositionSize(pf, price, e.cfg.PositionSize)
	if qty == 0 {
		return hold(symbol, "position size rounds to zero shares", ind)
	}

	stopFrac := math.Max(e.minBuffer, 0.05)
	return types.TradeSignal{
		Action:       types.ActionBuy,
		Symbol:       symbol,
		Quantity:     qty,
		Price:        price,
		StopLoss:     price * (1 - stopFrac),
		ProfitTarget: price * (1 + e.cfg.ProfitTarget),
		Confidence:   0.80,
		Reason:       fmt.Sprintf("rsi %.1f below oversold %.0f", r, e.cfg.Oversold),
		Indicators:   ind,
	}
}

func (e *RSI) MonitorPosition(pos *types.Position, snap types.Snapshot, asOf time.Time) types.TradeSignal {
	price := snap.CurrentPrice
	ind := map[string]float64{}

	if len(snap.Closes) > e.cfg.Period {
		r := indicators.RSI(snap.Closes, e.cfg.Period)
		ind["rsi"] = r
		if r > e.cfg.Overbought {
			return sell(pos, price, fmt.Sprintf("rsi %.1f above overbought %.0f", r, e.cfg.Overbought), ind)
		}
	}
	if pos.ProfitTarget > 0 && price >= pos.ProfitTarget {
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
