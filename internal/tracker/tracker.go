// Package tracker records routing decisions and trade lifecycle events,
// and distills closed trades into per-(strategy, classification)
// aggregates. The router consults those aggregates to tilt future
// routing toward what has actually been working.
//
// The tracker is the only writer to routing_decisions, trade_tracking,
// and strategy_metrics. Its writes are idempotent: decisions key on
// decision_id, trades on trade_id, so replays after a retry or restart
// cannot create duplicates.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"paper-trader/pkg/types"
)

// aggregateWindow is the trailing span the rolling aggregates cover.
const aggregateWindow = 30 * 24 * time.Hour

// ErrUnknownTrade means LogTradeExit was called for a trade_id that was
// never entered.
var ErrUnknownTrade = errors.New("unknown trade id")

// Pool is the database surface the tracker needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Tracker struct {
	pool   Pool
	logger *slog.Logger
}

func New(pool Pool, logger *slog.Logger) *Tracker {
	return &Tracker{
		pool:   pool,
		logger: logger.With("component", "tracker"),
	}
}

const insertRoutingSQL = `
	INSERT INTO routing_decisions (decision_id, symbol, selected_strategy,
	                               classification, confidence, reason, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (decision_id) DO NOTHING`

// LogRouting persists one routing decision. Safe to call twice with the
// same decision.
func (t *Tracker) LogRouting(ctx context.Context, d types.RoutingDecision) error {
	_, err := t.pool.Exec(ctx, insertRoutingSQL,
		d.DecisionID, d.Symbol, d.Strategy, string(d.Classification),
		d.Confidence, d.Reason, d.IssuedAt)
	if err != nil {
		return fmt.Errorf("logging routing decision: %w", err)
	}
	return nil
}

const insertTradeSQL = `
	INSERT INTO trade_tracking (trade_id, symbol, strategy, classification,
	                            entry_time, entry_price, quantity, routing_confidence)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (trade_id) DO NOTHING`

// LogTradeEntry opens a trade record. Exit-side columns stay null until
// LogTradeExit closes it.
func (t *Tracker) LogTradeEntry(ctx context.Context, rec types.TradeRecord) error {
	_, err := t.pool.Exec(ctx, insertTradeSQL,
		rec.TradeID, rec.Symbol, rec.Strategy, string(rec.Classification),
		rec.EntryTime, rec.EntryPrice, rec.Quantity, rec.RoutingConfidence)
	if err != nil {
		return fmt.Errorf("logging trade entry: %w", err)
	}
	t.logger.Info("trade entry logged",
		"trade_id", rec.TradeID,
		"symbol", rec.Symbol,
		"strategy", rec.Strategy)
	return nil
}

const selectTradeSQL = `
	SELECT entry_time, entry_price, quantity, strategy, classification, exit_time
	FROM trade_tracking
	WHERE trade_id = $1
	FOR UPDATE`

const closeTradeSQL = `
	UPDATE trade_tracking
	SET exit_time = $2, exit_price = $3, exit_reason = $4,
	    pnl = $5, pnl_pct = $6, hold_days = $7, was_profitable = $8
	WHERE trade_id = $1`

// LogTradeExit closes a trade: it computes the realized P&L fields and
// refreshes the aggregate for the trade's (strategy, classification) in
// the same transaction. Closing an already-closed trade is a no-op.
func (t *Tracker) LogTradeExit(ctx context.Context, tradeID uuid.UUID, exitPrice float64, exitReason string) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin trade exit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		entryTime      time.Time
		entryPrice     float64
		quantity       int64
		strategy       string
		classification string
		exitTime       *time.Time
	)
	err = tx.QueryRow(ctx, selectTradeSQL, tradeID).
		Scan(&entryTime, &entryPrice, &quantity, &strategy, &classification, &exitTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrUnknownTrade, tradeID)
	}
	if err != nil {
		return fmt.Errorf("loading trade %s: %w", tradeID, err)
	}
	if exitTime != nil {
		// Already closed; idempotent by trade_id.
		return nil
	}

	now := time.Now().UTC()
	pnl := decimal.NewFromFloat(exitPrice).
		Sub(decimal.NewFromFloat(entryPrice)).
		Mul(decimal.NewFromInt(quantity)).
		InexactFloat64()
	pnlPct := 0.0
	if entryPrice > 0 {
		pnlPct = exitPrice/entryPrice - 1
	}
	held := now.Sub(entryTime).Hours() / 24

	if _, err := tx.Exec(ctx, closeTradeSQL,
		tradeID, now, exitPrice, exitReason, pnl, pnlPct, held, pnl > 0); err != nil {
		return fmt.Errorf("closing trade %s: %w", tradeID, err)
	}

	if err := t.refreshAggregate(ctx, tx, strategy, classification, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit trade exit: %w", err)
	}

	t.logger.Info("trade closed",
		"trade_id", tradeID,
		"exit_price", exitPrice,
		"reason", exitReason,
		"pnl", pnl,
		"pnl_pct", pnlPct)
	return nil
}

const selectWindowTradesSQL = `
	SELECT pnl, pnl_pct, hold_days, was_profitable, routing_confidence
	FROM trade_tracking
	WHERE strategy = $1 AND classification = $2 AND exit_time >= $3
	ORDER BY exit_time`

const upsertMetricSQL = `
	INSERT INTO strategy_metrics (strategy, stock_type, period_start, period_end,
		total_trades, winning_trades, losing_trades, win_rate, avg_profit_pct,
		avg_winner_pct, avg_loser_pct, total_return_pct, max_drawdown_pct,
		avg_hold_days, sharpe, confidence_accuracy, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (strategy, stock_type, period_start, period_end) DO UPDATE SET
		total_trades = EXCLUDED.total_trades,
		winning_trades = EXCLUDED.winning_trades,
		losing_trades = EXCLUDED.losing_trades,
		win_rate = EXCLUDED.win_rate,
		avg_profit_pct = EXCLUDED.avg_profit_pct,
		avg_winner_pct = EXCLUDED.avg_winner_pct,
		avg_loser_pct = EXCLUDED.avg_loser_pct,
		total_return_pct = EXCLUDED.total_return_pct,
		max_drawdown_pct = EXCLUDED.max_drawdown_pct,
		avg_hold_days = EXCLUDED.avg_hold_days,
		sharpe = EXCLUDED.sharpe,
		confidence_accuracy = EXCLUDED.confidence_accuracy,
		updated_at = EXCLUDED.updated_at`

// refreshAggregate recomputes the trailing-window metric row for one
// (strategy, classification) pair inside the caller's transaction. The
// period is anchored to UTC days so every refresh on the same day hits
// the same row.
func (t *Tracker) refreshAggregate(ctx context.Context, tx pgx.Tx, strategy, classification string, now time.Time) error {
	periodEnd := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	periodStart := periodEnd.Add(-aggregateWindow)

	rows, err := tx.Query(ctx, selectWindowTradesSQL, strategy, classification, periodStart)
	if err != nil {
		return fmt.Errorf("loading window trades: %w", err)
	}
	trades, err := scanClosedTrades(rows)
	if err != nil {
		return err
	}

	m := computeMetric(trades)
	m.Strategy = strategy
	m.StockType = types.Classification(classification)
	m.PeriodStart = periodStart
	m.PeriodEnd = periodEnd
	m.UpdatedAt = now

	if _, err := tx.Exec(ctx, upsertMetricSQL,
		m.Strategy, string(m.StockType), m.PeriodStart, m.PeriodEnd,
		m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRate,
		m.AvgProfitPct, m.AvgWinnerPct, m.AvgLoserPct, m.TotalReturnPct,
		m.MaxDrawdownPct, m.AvgHoldDays, m.Sharpe, m.ConfidenceAccuracy,
		m.UpdatedAt); err != nil {
		return fmt.Errorf("upserting metrics: %w", err)
	}
	return nil
}
