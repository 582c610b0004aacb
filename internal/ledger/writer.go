package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paper-trader/pkg/types"
)

// ErrInsufficientCash is returned when a buy would drive the account
// negative. The executor's cash gate makes this rare; the conditional
// update makes it impossible.
var ErrInsufficientCash = errors.New("insufficient cash")

type commandKind int

const (
	cmdBuy commandKind = iota
	cmdSell
	cmdStopUpdate
)

type command struct {
	kind     commandKind
	signal   types.TradeSignal
	strategy string
	position types.Position
	price    float64
	reason   string
	reply    chan error
}

// SubmitBuy enqueues an entry: order insert, position upsert, cash debit
// in one transaction. Blocks until the writer commits or rejects.
func (l *Ledger) SubmitBuy(ctx context.Context, sig types.TradeSignal, strategy string) error {
	return l.submit(ctx, command{kind: cmdBuy, signal: sig, strategy: strategy})
}

// SubmitSell enqueues an exit: order insert, position delete, cash credit
// in one transaction.
func (l *Ledger) SubmitSell(ctx context.Context, pos types.Position, price float64, reason string) error {
	return l.submit(ctx, command{kind: cmdSell, position: pos, price: price, reason: reason})
}

// SubmitStopUpdate persists a ratcheted trailing stop and max-seen price.
func (l *Ledger) SubmitStopUpdate(ctx context.Context, pos types.Position) error {
	return l.submit(ctx, command{kind: cmdStopUpdate, position: pos})
}

func (l *Ledger) submit(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case l.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the single writer. Commands execute strictly in FIFO order, one
// transaction each. On cancellation the queue is drained before the loop
// exits so accepted commands are never lost.
func (l *Ledger) Run(ctx context.Context) {
	l.logger.Info("ledger writer started")
	for {
		select {
		case cmd := <-l.commands:
			l.apply(cmd)
		case <-ctx.Done():
			for {
				select {
				case cmd := <-l.commands:
					l.apply(cmd)
				default:
					l.logger.Info("ledger writer stopped")
					return
				}
			}
		}
	}
}

// applyTimeout bounds each command's transaction. Commits keep their own
// deadline so shutdown does not abort in-flight work.
const applyTimeout = 15 * time.Second

func (l *Ledger) apply(cmd command) {
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()

	var err error
	switch cmd.kind {
	case cmdBuy:
		// Failed buys are never retried; the candidate can come back on a
		// later poll with fresh data.
		err = l.applyBuy(ctx, cmd.signal, cmd.strategy)
	case cmdSell:
		// Sells retry once: a missed exit leaves an unprotected position.
		err = l.applySell(ctx, cmd.position, cmd.price, cmd.reason)
		if err != nil {
			l.logger.Warn("sell failed, retrying once",
				"symbol", cmd.position.Symbol, "error", err)
			err = l.applySell(ctx, cmd.position, cmd.price, cmd.reason)
		}
	case cmdStopUpdate:
		err = l.applyStopUpdate(ctx, cmd.position)
	}
	cmd.reply <- err
}

const insertOrderSQL = `
	INSERT INTO orders (symbol, side, quantity, price, timestamp, strategy, reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const upsertPositionSQL = `
	INSERT INTO positions (symbol, quantity, entry_price, entry_time, stop_loss,
	                       profit_target, max_seen, strategy, last_updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (symbol) DO UPDATE SET
		quantity = EXCLUDED.quantity,
		entry_price = EXCLUDED.entry_price,
		entry_time = EXCLUDED.entry_time,
		stop_loss = EXCLUDED.stop_loss,
		profit_target = EXCLUDED.profit_target,
		max_seen = EXCLUDED.max_seen,
		strategy = EXCLUDED.strategy,
		last_updated = EXCLUDED.last_updated`

const debitCashSQL = `
	UPDATE account SET cash = cash - $1, last_updated = $2
	WHERE id = 1 AND cash >= $1`

func (l *Ledger) applyBuy(ctx context.Context, sig types.TradeSignal, strategy string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin buy: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, insertOrderSQL,
		sig.Symbol, string(types.BUY), sig.Quantity, sig.Price, now, strategy, sig.Reason); err != nil {
		return fmt.Errorf("insert buy order: %w", err)
	}
	if _, err := tx.Exec(ctx, upsertPositionSQL,
		sig.Symbol, sig.Quantity, sig.Price, now, sig.StopLoss,
		sig.ProfitTarget, sig.Price, strategy, now); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	cost := decimal.NewFromFloat(sig.Price).Mul(decimal.NewFromInt(sig.Quantity))
	tag, err := tx.Exec(ctx, debitCashSQL, cost.InexactFloat64(), now)
	if err != nil {
		return fmt.Errorf("debit cash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientCash
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit buy: %w", err)
	}
	l.logger.Info("buy committed",
		"symbol", sig.Symbol,
		"quantity", sig.Quantity,
		"price", sig.Price,
		"strategy", strategy,
		"cost", cost.StringFixed(2))
	return nil
}

const deletePositionSQL = `DELETE FROM positions WHERE symbol = $1`

const creditCashSQL = `
	UPDATE account SET cash = cash + $1, last_updated = $2
	WHERE id = 1`

func (l *Ledger) applySell(ctx context.Context, pos types.Position, price float64, reason string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin sell: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, insertOrderSQL,
		pos.Symbol, string(types.SELL), pos.Quantity, price, now, pos.Strategy, reason); err != nil {
		return fmt.Errorf("insert sell order: %w", err)
	}

	tag, err := tx.Exec(ctx, deletePositionSQL, pos.Symbol)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no open position for %s", pos.Symbol)
	}

	proceeds := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(pos.Quantity))
	if _, err := tx.Exec(ctx, creditCashSQL, proceeds.InexactFloat64(), now); err != nil {
		return fmt.Errorf("credit cash: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit sell: %w", err)
	}
	l.logger.Info("sell committed",
		"symbol", pos.Symbol,
		"quantity", pos.Quantity,
		"price", price,
		"reason", reason,
		"proceeds", proceeds.StringFixed(2))
	return nil
}

const updateStopSQL = `
	UPDATE positions SET stop_loss = $2, max_seen = $3, last_updated = $4
	WHERE symbol = $1`

func (l *Ledger) applyStopUpdate(ctx context.Context, pos types.Position) error {
	tag, err := l.pool.Exec(ctx, updateStopSQL,
		pos.Symbol, pos.StopLoss, pos.MaxSeen, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update stop: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no open position for %s", pos.Symbol)
	}
	return nil
}
