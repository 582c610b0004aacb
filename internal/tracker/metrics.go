package tracker

import (
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"paper-trader/pkg/types"
)

// Decision-confidence bands for the accuracy metric. A high-confidence
// routing decision is judged correct when its trade closed profitable; a
// low-confidence one when its trade closed unprofitable. Decisions in the
// middle band carry no prediction and are excluded.
const (
	highConfidence = 0.80
	lowConfidence  = 0.50
)

// closedTrade is one finished trade's contribution to the aggregates.
type closedTrade struct {
	pnl        float64
	pnlPct     float64
	holdDays   float64
	profitable bool
	confidence float64 // routing confidence at entry
}

func scanClosedTrades(rows pgx.Rows) ([]closedTrade, error) {
	defer rows.Close()

	var out []closedTrade
	for rows.Next() {
		var t closedTrade
		if err := rows.Scan(&t.pnl, &t.pnlPct, &t.holdDays, &t.profitable, &t.confidence); err != nil {
			return nil, fmt.Errorf("scanning closed trade: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating closed trades: %w", err)
	}
	return out, nil
}

// computeMetric distills an ordered sequence of closed trades into one
// aggregate row. The order matters only for max drawdown, which walks the
// running cumulative return; callers pass trades sorted by exit time.
func computeMetric(trades []closedTrade) types.StrategyMetric {
	m := types.StrategyMetric{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	var (
		sumPct, sumHold        float64
		sumWinnerPct, sumLoser float64
	)
	for _, t := range trades {
		sumPct += t.pnlPct
		sumHold += t.holdDays
		if t.profitable {
			m.WinningTrades++
			sumWinnerPct += t.pnlPct
		} else {
			// Break-even counts as a loss for win rate.
			m.LosingTrades++
			sumLoser += t.pnlPct
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	m.AvgProfitPct = sumPct / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AvgWinnerPct = sumWinnerPct / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoserPct = sumLoser / float64(m.LosingTrades)
	}
	m.TotalReturnPct = sumPct
	m.MaxDrawdownPct = maxDrawdown(trades)
	m.AvgHoldDays = sumHold / float64(m.TotalTrades)
	m.Sharpe = sharpe(trades)
	m.ConfidenceAccuracy = confidenceAccuracy(trades)
	return m
}

// maxDrawdown is the deepest peak-to-trough decline of the running
// cumulative return over the trade sequence.
func maxDrawdown(trades []closedTrade) float64 {
	var cum, peak, worst float64
	for _, t := range trades {
		cum += t.pnlPct
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpe is mean return over sample standard deviation (n-1). Zero when
// fewer than two trades or when every return is identical.
func sharpe(trades []closedTrade) float64 {
	n := len(trades)
	if n < 2 {
		return 0
	}

	var sum float64
	for _, t := range trades {
		sum += t.pnlPct
	}
	mean := sum / float64(n)

	var ss float64
	for _, t := range trades {
		d := t.pnlPct - mean
		ss += d * d
	}
	stdev := math.Sqrt(ss / float64(n-1))
	if stdev == 0 {
		return 0
	}
	return mean / stdev
}

// confidenceAccuracy is the fraction of confident routing decisions that
// called their trade correctly: high-confidence entries that won plus
// low-confidence entries that lost, over all decisions in either band.
func confidenceAccuracy(trades []closedTrade) float64 {
	var total, correct int
	for _, t := range trades {
		switch {
		case t.confidence >= highConfidence:
			total++
			if t.profitable {
				correct++
			}
		case t.confidence < lowConfidence:
			total++
			if !t.profitable {
				correct++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}
