package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"

	"paper-trader/pkg/types"
)

func buySignal() types.TradeSignal {
	return types.TradeSignal{
		Action:       types.ActionBuy,
		Symbol:       "SPY",
		Quantity:     45,
		Price:        545.00,
		StopLoss:     517.75,
		ProfitTarget: 558.625,
		Confidence:   0.80,
		Reason:       "rsi 28.0 below oversold 45",
	}
}

func openPosition() types.Position {
	return types.Position{
		Symbol:       "SPY",
		Strategy:     "rsi_mean_reversion",
		Quantity:     45,
		EntryPrice:   545.00,
		EntryTime:    time.Now().UTC().Add(-48 * time.Hour),
		StopLoss:     517.75,
		ProfitTarget: 558.625,
		MaxSeen:      545.00,
	}
}

func expectBuyTx(mock pgxmock.PgxPoolIface) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("SPY", "BUY", int64(45), 545.00, pgxmock.AnyArg(), "rsi_mean_reversion", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO positions").
		WithArgs("SPY", int64(45), 545.00, pgxmock.AnyArg(), 517.75, 558.625, 545.00, "rsi_mean_reversion", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE account SET cash = cash -").
		WithArgs(24525.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
}

func TestApplyBuyCommitsOneTransaction(t *testing.T) {
	l, mock := newMockLedger(t)
	expectBuyTx(mock)

	if err := l.applyBuy(context.Background(), buySignal(), "rsi_mean_reversion"); err != nil {
		t.Fatalf("applyBuy() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyBuyRejectsOverdraft(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("SPY", "BUY", int64(45), 545.00, pgxmock.AnyArg(), "rsi_mean_reversion", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO positions").
		WithArgs("SPY", int64(45), 545.00, pgxmock.AnyArg(), 517.75, 558.625, 545.00, "rsi_mean_reversion", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Conditional debit affects no rows when cash would go negative.
	mock.ExpectExec("UPDATE account SET cash = cash -").
		WithArgs(24525.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := l.applyBuy(context.Background(), buySignal(), "rsi_mean_reversion")
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("applyBuy() error = %v, want ErrInsufficientCash", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func expectSellTx(mock pgxmock.PgxPoolIface, price float64, proceeds float64) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("SPY", "SELL", int64(45), price, pgxmock.AnyArg(), "rsi_mean_reversion", "profit target").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM positions").
		WithArgs("SPY").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("UPDATE account SET cash = cash \\+").
		WithArgs(proceeds, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
}

func TestApplySellCommitsOneTransaction(t *testing.T) {
	l, mock := newMockLedger(t)
	expectSellTx(mock, 558.90, 25150.5)

	if err := l.applySell(context.Background(), openPosition(), 558.90, "profit target"); err != nil {
		t.Fatalf("applySell() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplySellMissingPosition(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("SPY", "SELL", int64(45), 558.90, pgxmock.AnyArg(), "rsi_mean_reversion", "profit target").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM positions").
		WithArgs("SPY").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	if err := l.applySell(context.Background(), openPosition(), 558.90, "profit target"); err == nil {
		t.Fatal("applySell() succeeded with no position row")
	}
}

func TestRunExecutesSubmittedBuy(t *testing.T) {
	l, mock := newMockLedger(t)
	expectBuyTx(mock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	if err := l.SubmitBuy(context.Background(), buySignal(), "rsi_mean_reversion"); err != nil {
		t.Fatalf("SubmitBuy() error = %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not stop after cancel")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSellRetriesOnceAfterFailure(t *testing.T) {
	l, mock := newMockLedger(t)

	// First attempt dies at Begin; the retry goes through.
	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))
	expectSellTx(mock, 558.90, 25150.5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	if err := l.SubmitSell(context.Background(), openPosition(), 558.90, "profit target"); err != nil {
		t.Fatalf("SubmitSell() after retry error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestBuyIsNotRetried(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	if err := l.SubmitBuy(context.Background(), buySignal(), "rsi_mean_reversion"); err == nil {
		t.Fatal("SubmitBuy() swallowed a transaction failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRunDrainsQueueOnCancel(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectExec("UPDATE positions SET stop_loss").
		WithArgs("SPY", 520.00, 551.00, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	pos := openPosition()
	pos.StopLoss, pos.MaxSeen = 520.00, 551.00

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.SubmitStopUpdate(context.Background(), pos)
	}()
	time.Sleep(20 * time.Millisecond)

	// Run starts on an already-cancelled context: it must still flush the
	// queued command before exiting.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("queued SubmitStopUpdate() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("queued command was dropped on shutdown")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStopUpdateRequiresOpenPosition(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectExec("UPDATE positions SET stop_loss").
		WithArgs("SPY", 517.75, 545.00, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := l.applyStopUpdate(context.Background(), openPosition()); err == nil {
		t.Fatal("applyStopUpdate() succeeded with no position row")
	}
}
