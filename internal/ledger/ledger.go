// Package ledger persists the paper account: cash, open positions, and
// the append-only order log.
//
// All mutations flow through a single writer goroutine (Run) fed by a
// command channel; each command executes inside one transaction, so the
// cash-plus-positions invariant holds after every commit. Reads go
// straight to the pool. There is no package-level handle: callers hold a
// *Ledger and the writer owns the only mutation path.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the slice of pgxpool.Pool the ledger uses. Tests substitute a
// pgxmock pool.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

type Ledger struct {
	pool     Pool
	logger   *slog.Logger
	commands chan command
}

const writerQueueSize = 64

func New(pool Pool, logger *slog.Logger) *Ledger {
	return &Ledger{
		pool:     pool,
		logger:   logger.With("component", "ledger"),
		commands: make(chan command, writerQueueSize),
	}
}

// Connect opens a pgx pool against the configured Postgres and verifies
// it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// migrations create the full schema. Statements are idempotent so the
// list runs unconditionally at every startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS account (
		id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		cash DOUBLE PRECISION NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT PRIMARY KEY,
		quantity BIGINT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		stop_loss DOUBLE PRECISION NOT NULL,
		profit_target DOUBLE PRECISION NOT NULL,
		max_seen DOUBLE PRECISION NOT NULL,
		strategy TEXT NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		strategy TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_timestamp ON orders (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders (symbol)`,
	`CREATE TABLE IF NOT EXISTS routing_decisions (
		decision_id UUID PRIMARY KEY,
		symbol TEXT NOT NULL,
		selected_strategy TEXT NOT NULL,
		classification TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_routing_symbol ON routing_decisions (symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_routing_timestamp ON routing_decisions (timestamp)`,
	`CREATE TABLE IF NOT EXISTS trade_tracking (
		trade_id UUID PRIMARY KEY,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		classification TEXT NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		quantity BIGINT NOT NULL,
		routing_confidence DOUBLE PRECISION NOT NULL,
		exit_time TIMESTAMPTZ,
		exit_price DOUBLE PRECISION,
		exit_reason TEXT,
		pnl DOUBLE PRECISION,
		pnl_pct DOUBLE PRECISION,
		hold_days DOUBLE PRECISION,
		was_profitable BOOLEAN
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_strategy_class ON trade_tracking (strategy, classification)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trade_tracking (exit_time)`,
	`CREATE TABLE IF NOT EXISTS strategy_metrics (
		strategy TEXT NOT NULL,
		stock_type TEXT NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ NOT NULL,
		total_trades INT NOT NULL,
		winning_trades INT NOT NULL,
		losing_trades INT NOT NULL,
		win_rate DOUBLE PRECISION NOT NULL,
		avg_profit_pct DOUBLE PRECISION NOT NULL,
		avg_winner_pct DOUBLE PRECISION NOT NULL,
		avg_loser_pct DOUBLE PRECISION NOT NULL,
		total_return_pct DOUBLE PRECISION NOT NULL,
		max_drawdown_pct DOUBLE PRECISION NOT NULL,
		avg_hold_days DOUBLE PRECISION NOT NULL,
		sharpe DOUBLE PRECISION NOT NULL,
		confidence_accuracy DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (strategy, stock_type, period_start, period_end)
	)`,
}

// Migrate applies the schema. Safe to run on every start.
func (l *Ledger) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := l.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	l.logger.Info("schema up to date", "statements", len(migrations))
	return nil
}

const bootstrapAccountSQL = `
	INSERT INTO account (id, cash, last_updated)
	VALUES (1, $1, $2)
	ON CONFLICT (id) DO NOTHING`

// Bootstrap seeds the singleton account row with the starting cash. A
// later start against an existing account is a no-op, so restarts never
// reset the balance.
func (l *Ledger) Bootstrap(ctx context.Context, startingCash float64) error {
	tag, err := l.pool.Exec(ctx, bootstrapAccountSQL, startingCash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("seeding account: %w", err)
	}
	if tag.RowsAffected() > 0 {
		l.logger.Info("account created", "starting_cash", startingCash)
	}
	return nil
}
