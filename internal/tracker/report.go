package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"paper-trader/pkg/types"
)

// Report summarizes all closed trades in a window, overall and broken out
// per (strategy, classification).
type Report struct {
	Window      time.Duration
	GeneratedAt time.Time
	TotalTrades int
	TotalPnL    float64
	WinRate     float64
	Strategies  []types.StrategyMetric
}

const openTradeSQL = `
	SELECT trade_id
	FROM trade_tracking
	WHERE symbol = $1 AND strategy = $2 AND exit_time IS NULL
	ORDER BY entry_time DESC
	LIMIT 1`

// OpenTradeID finds the open trade record for a position, so the monitor
// can close the right record without carrying IDs in memory across
// restarts.
func (t *Tracker) OpenTradeID(ctx context.Context, symbol, strategy string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := t.pool.QueryRow(ctx, openTradeSQL, symbol, strategy).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("finding open trade for %s: %w", symbol, err)
	}
	return id, true, nil
}

const reportTradesSQL = `
	SELECT strategy, classification, pnl, pnl_pct, hold_days, was_profitable, routing_confidence
	FROM trade_tracking
	WHERE exit_time >= $1
	ORDER BY strategy, classification, exit_time`

// GetReport aggregates every trade closed within the trailing window.
func (t *Tracker) GetReport(ctx context.Context, window time.Duration) (Report, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-window)

	rows, err := t.pool.Query(ctx, reportTradesSQL, cutoff)
	if err != nil {
		return Report{}, fmt.Errorf("loading report trades: %w", err)
	}
	defer rows.Close()

	type groupKey struct {
		strategy string
		class    string
	}
	groups := make(map[groupKey][]closedTrade)
	var order []groupKey

	rep := Report{Window: window, GeneratedAt: now}
	winners := 0
	for rows.Next() {
		var (
			key groupKey
			tr  closedTrade
		)
		if err := rows.Scan(&key.strategy, &key.class,
			&tr.pnl, &tr.pnlPct, &tr.holdDays, &tr.profitable, &tr.confidence); err != nil {
			return Report{}, fmt.Errorf("scanning report trade: %w", err)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], tr)

		rep.TotalTrades++
		rep.TotalPnL += tr.pnl
		if tr.profitable {
			winners++
		}
	}
	if err := rows.Err(); err != nil {
		return Report{}, fmt.Errorf("iterating report trades: %w", err)
	}

	if rep.TotalTrades > 0 {
		rep.WinRate = float64(winners) / float64(rep.TotalTrades)
	}
	for _, key := range order {
		m := computeMetric(groups[key])
		m.Strategy = key.strategy
		m.StockType = types.Classification(key.class)
		m.PeriodStart = cutoff
		m.PeriodEnd = now
		m.UpdatedAt = now
		rep.Strategies = append(rep.Strategies, m)
	}
	return rep, nil
}

// metricColumns whitelists the sortable aggregate columns so a metric name
// from config or an operator can never reach the SQL as raw text.
var metricColumns = map[string]string{
	"win_rate":         "win_rate",
	"avg_profit_pct":   "avg_profit_pct",
	"total_return_pct": "total_return_pct",
	"sharpe":           "sharpe",
	"total_trades":     "total_trades",
}

const topPerformersSQL = `
	SELECT strategy, stock_type, period_start, period_end,
	       total_trades, winning_trades, losing_trades, win_rate, avg_profit_pct,
	       avg_winner_pct, avg_loser_pct, total_return_pct, max_drawdown_pct,
	       avg_hold_days, sharpe, confidence_accuracy, updated_at
	FROM strategy_metrics
	ORDER BY %s DESC
	LIMIT $1`

// TopPerformers returns the best k aggregate rows by the named metric.
func (t *Tracker) TopPerformers(ctx context.Context, metric string, k int) ([]types.StrategyMetric, error) {
	col, ok := metricColumns[metric]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := t.pool.Query(ctx, fmt.Sprintf(topPerformersSQL, col), k)
	if err != nil {
		return nil, fmt.Errorf("loading top performers: %w", err)
	}
	defer rows.Close()

	var out []types.StrategyMetric
	for rows.Next() {
		var m types.StrategyMetric
		if err := rows.Scan(&m.Strategy, &m.StockType, &m.PeriodStart, &m.PeriodEnd,
			&m.TotalTrades, &m.WinningTrades, &m.LosingTrades, &m.WinRate, &m.AvgProfitPct,
			&m.AvgWinnerPct, &m.AvgLoserPct, &m.TotalReturnPct, &m.MaxDrawdownPct,
			&m.AvgHoldDays, &m.Sharpe, &m.ConfidenceAccuracy, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning metric row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metric rows: %w", err)
	}
	return out, nil
}

const accuracyTradesSQL = `
	SELECT pnl, pnl_pct, hold_days, was_profitable, routing_confidence
	FROM trade_tracking
	WHERE exit_time >= $1
	ORDER BY exit_time`

// RoutingAccuracy measures how well routing confidence predicted outcomes
// over the window: confident calls that won plus doubtful calls that lost,
// as a fraction of all calls in either band.
func (t *Tracker) RoutingAccuracy(ctx context.Context, window time.Duration) (float64, error) {
	cutoff := time.Now().UTC().Add(-window)

	rows, err := t.pool.Query(ctx, accuracyTradesSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("loading accuracy trades: %w", err)
	}
	trades, err := scanClosedTrades(rows)
	if err != nil {
		return 0, err
	}
	return confidenceAccuracy(trades), nil
}
