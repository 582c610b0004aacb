package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"paper-trader/pkg/types"
)

// ErrNoAccount means Bootstrap has not run yet.
var ErrNoAccount = errors.New("account row missing")

const selectAccountSQL = `SELECT cash, last_updated FROM account WHERE id = 1`

func (l *Ledger) Account(ctx context.Context) (types.Account, error) {
	var acct types.Account
	err := l.pool.QueryRow(ctx, selectAccountSQL).Scan(&acct.Cash, &acct.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Account{}, ErrNoAccount
	}
	if err != nil {
		return types.Account{}, fmt.Errorf("reading account: %w", err)
	}
	return acct, nil
}

const selectPositionsSQL = `
	SELECT symbol, quantity, entry_price, entry_time, stop_loss,
	       profit_target, max_seen, strategy, last_updated
	FROM positions
	ORDER BY symbol`

func (l *Ledger) OpenPositions(ctx context.Context) ([]types.Position, error) {
	rows, err := l.pool.Query(ctx, selectPositionsSQL)
	if err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var p types.Position
		if err := rows.Scan(&p.Symbol, &p.Quantity, &p.EntryPrice, &p.EntryTime,
			&p.StopLoss, &p.ProfitTarget, &p.MaxSeen, &p.Strategy, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating positions: %w", err)
	}
	return out, nil
}

const countOrdersSinceSQL = `SELECT COUNT(*) FROM orders WHERE timestamp >= $1`

// OrdersToday counts orders executed since UTC midnight of the given
// moment. The daily trade cap resets on the UTC day boundary.
func (l *Ledger) OrdersToday(ctx context.Context, now time.Time) (int, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	var n int
	if err := l.pool.QueryRow(ctx, countOrdersSinceSQL, dayStart).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting today's orders: %w", err)
	}
	return n, nil
}

const strategyAllocationSQL = `
	SELECT strategy, COALESCE(SUM(entry_price * quantity), 0)
	FROM positions
	GROUP BY strategy`

// StrategyAllocation returns capital currently deployed per strategy,
// valued at entry price.
func (l *Ledger) StrategyAllocation(ctx context.Context) (map[string]float64, error) {
	rows, err := l.pool.Query(ctx, strategyAllocationSQL)
	if err != nil {
		return nil, fmt.Errorf("reading strategy allocation: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var strategy string
		var deployed float64
		if err := rows.Scan(&strategy, &deployed); err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}
		out[strategy] = deployed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating allocation: %w", err)
	}
	return out, nil
}

const selectDailyRealizedSQL = `
	SELECT COALESCE(SUM(pnl), 0)
	FROM trade_tracking
	WHERE exit_time >= $1`

// RealizedPnLSince sums closed-trade P&L from the given cutoff; the
// report loop feeds it UTC midnight for the day's realized figure.
func (l *Ledger) RealizedPnLSince(ctx context.Context, cutoff time.Time) (float64, error) {
	var pnl float64
	if err := l.pool.QueryRow(ctx, selectDailyRealizedSQL, cutoff).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("summing realized pnl: %w", err)
	}
	return pnl, nil
}
