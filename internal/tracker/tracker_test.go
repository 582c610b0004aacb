package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"

	"paper-trader/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockTracker(t *testing.T) (*Tracker, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("creating mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return New(mock, testLogger()), mock
}

func TestLogRoutingUsesDecisionKey(t *testing.T) {
	trk, mock := newMockTracker(t)

	d := types.RoutingDecision{
		DecisionID:     uuid.New(),
		Symbol:         "SPY",
		Strategy:       "rsi_mean_reversion",
		Classification: types.ClassETF,
		Confidence:     0.95,
		Reason:         "ETFs mean-revert reliably",
		IssuedAt:       time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO routing_decisions").
		WithArgs(d.DecisionID, "SPY", "rsi_mean_reversion", "etf", 0.95, d.Reason, d.IssuedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := trk.LogRouting(context.Background(), d); err != nil {
		t.Fatalf("LogRouting() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLogTradeEntry(t *testing.T) {
	trk, mock := newMockTracker(t)

	rec := types.TradeRecord{
		TradeID:           uuid.New(),
		Symbol:            "SPY",
		Strategy:          "rsi_mean_reversion",
		Classification:    types.ClassETF,
		EntryTime:         time.Now().UTC(),
		EntryPrice:        545.00,
		Quantity:          45,
		RoutingConfidence: 0.95,
	}

	mock.ExpectExec("INSERT INTO trade_tracking").
		WithArgs(rec.TradeID, "SPY", "rsi_mean_reversion", "etf",
			rec.EntryTime, 545.00, int64(45), 0.95).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := trk.LogTradeEntry(context.Background(), rec); err != nil {
		t.Fatalf("LogTradeEntry() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLogTradeExitClosesAndRefreshes(t *testing.T) {
	trk, mock := newMockTracker(t)
	tradeID := uuid.New()
	entryTime := time.Now().UTC().Add(-48 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT entry_time, entry_price").
		WithArgs(tradeID).
		WillReturnRows(pgxmock.
			NewRows([]string{"entry_time", "entry_price", "quantity", "strategy", "classification", "exit_time"}).
			AddRow(entryTime, 545.00, int64(45), "rsi_mean_reversion", "etf", nil))
	// (558.90 - 545.00) × 45 = 625.50 realized; the trade is profitable.
	mock.ExpectExec("UPDATE trade_tracking").
		WithArgs(tradeID, pgxmock.AnyArg(), 558.90, "profit target",
			625.5, pgxmock.AnyArg(), pgxmock.AnyArg(), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT pnl, pnl_pct, hold_days").
		WithArgs("rsi_mean_reversion", "etf", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.
			NewRows([]string{"pnl", "pnl_pct", "hold_days", "was_profitable", "routing_confidence"}).
			AddRow(625.5, 0.0255, 2.0, true, 0.95))
	mock.ExpectExec("INSERT INTO strategy_metrics").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := trk.LogTradeExit(context.Background(), tradeID, 558.90, "profit target"); err != nil {
		t.Fatalf("LogTradeExit() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLogTradeExitIsIdempotent(t *testing.T) {
	trk, mock := newMockTracker(t)
	tradeID := uuid.New()
	closedAt := time.Now().UTC().Add(-time.Hour)

	// An already-closed trade short-circuits before any write.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT entry_time, entry_price").
		WithArgs(tradeID).
		WillReturnRows(pgxmock.
			NewRows([]string{"entry_time", "entry_price", "quantity", "strategy", "classification", "exit_time"}).
			AddRow(time.Now().UTC().Add(-48*time.Hour), 545.00, int64(45), "rsi_mean_reversion", "etf", &closedAt))
	mock.ExpectRollback()

	if err := trk.LogTradeExit(context.Background(), tradeID, 560.00, "stop loss"); err != nil {
		t.Fatalf("LogTradeExit() on closed trade error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLogTradeExitUnknownTrade(t *testing.T) {
	trk, mock := newMockTracker(t)
	tradeID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT entry_time, entry_price").
		WithArgs(tradeID).
		WillReturnRows(pgxmock.NewRows([]string{"entry_time", "entry_price", "quantity", "strategy", "classification", "exit_time"}))
	mock.ExpectRollback()

	err := trk.LogTradeExit(context.Background(), tradeID, 560.00, "stop loss")
	if !errors.Is(err, ErrUnknownTrade) {
		t.Fatalf("LogTradeExit() error = %v, want ErrUnknownTrade", err)
	}
}

func TestAdjustedConfidenceTiers(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		winners int
		avgPct  float64
		want    float64
	}{
		{"too few trades stays neutral", 2, 2, 0.10, 1.0},
		{"hot streak clamps at ceiling", 10, 9, 0.06, 1.15},
		{"good win rate", 10, 8, 0.02, 1.05},
		{"cold streak", 10, 3, -0.02, 0.63},
		{"below half with losses", 10, 4, -0.10, 0.765},
		{"average everything", 10, 6, 0.01, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trk, mock := newMockTracker(t)

			mock.ExpectQuery("SELECT COUNT").
				WithArgs("rsi_mean_reversion", "etf", pgxmock.AnyArg()).
				WillReturnRows(pgxmock.
					NewRows([]string{"count", "winners", "avg"}).
					AddRow(tt.total, tt.winners, tt.avgPct))

			got := trk.AdjustedConfidence(context.Background(), "rsi_mean_reversion", types.ClassETF)
			if !almostEqual(got, tt.want) {
				t.Errorf("AdjustedConfidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdjustedConfidenceNeutralOnQueryFailure(t *testing.T) {
	trk, mock := newMockTracker(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("momentum_breakout", "penny_stock", pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	if got := trk.AdjustedConfidence(context.Background(), "momentum_breakout", types.ClassPennyStock); got != 1.0 {
		t.Errorf("AdjustedConfidence() on failure = %v, want 1.0", got)
	}
}

func TestOpenTradeID(t *testing.T) {
	trk, mock := newMockTracker(t)
	want := uuid.New()

	mock.ExpectQuery("SELECT trade_id").
		WithArgs("SPY", "rsi_mean_reversion").
		WillReturnRows(pgxmock.NewRows([]string{"trade_id"}).AddRow(want))

	got, ok, err := trk.OpenTradeID(context.Background(), "SPY", "rsi_mean_reversion")
	if err != nil || !ok {
		t.Fatalf("OpenTradeID() = (%v, %v, %v), want found", got, ok, err)
	}
	if got != want {
		t.Errorf("OpenTradeID() = %v, want %v", got, want)
	}
}

func TestOpenTradeIDMissing(t *testing.T) {
	trk, mock := newMockTracker(t)

	mock.ExpectQuery("SELECT trade_id").
		WithArgs("MU", "momentum_breakout").
		WillReturnRows(pgxmock.NewRows([]string{"trade_id"}))

	_, ok, err := trk.OpenTradeID(context.Background(), "MU", "momentum_breakout")
	if err != nil {
		t.Fatalf("OpenTradeID() error = %v", err)
	}
	if ok {
		t.Error("OpenTradeID() found a trade in an empty result")
	}
}

func TestGetReportGroupsByStrategy(t *testing.T) {
	trk, mock := newMockTracker(t)

	mock.ExpectQuery("SELECT strategy, classification, pnl").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.
			NewRows([]string{"strategy", "classification", "pnl", "pnl_pct", "hold_days", "was_profitable", "routing_confidence"}).
			AddRow("rsi_mean_reversion", "etf", 625.5, 0.0255, 2.0, true, 0.95).
			AddRow("rsi_mean_reversion", "etf", -200.0, -0.01, 5.0, false, 0.85).
			AddRow("momentum_breakout", "penny_stock", 90.0, 0.05, 1.0, true, 0.90))

	rep, err := trk.GetReport(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if rep.TotalTrades != 3 {
		t.Errorf("TotalTrades = %d, want 3", rep.TotalTrades)
	}
	if !almostEqual(rep.TotalPnL, 515.5) {
		t.Errorf("TotalPnL = %v, want 515.5", rep.TotalPnL)
	}
	if !almostEqual(rep.WinRate, 2.0/3.0) {
		t.Errorf("WinRate = %v, want 2/3", rep.WinRate)
	}
	if len(rep.Strategies) != 2 {
		t.Fatalf("Strategies groups = %d, want 2", len(rep.Strategies))
	}
	if rep.Strategies[0].Strategy != "rsi_mean_reversion" || rep.Strategies[0].TotalTrades != 2 {
		t.Errorf("first group = %s/%d trades, want rsi_mean_reversion/2",
			rep.Strategies[0].Strategy, rep.Strategies[0].TotalTrades)
	}
}

func TestTopPerformersRejectsUnknownMetric(t *testing.T) {
	trk, _ := newMockTracker(t)

	if _, err := trk.TopPerformers(context.Background(), "pnl; DROP TABLE orders", 3); err == nil {
		t.Fatal("TopPerformers() accepted an unknown metric name")
	}
}

func TestRoutingAccuracyOverWindow(t *testing.T) {
	trk, mock := newMockTracker(t)

	mock.ExpectQuery("SELECT pnl, pnl_pct, hold_days").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.
			NewRows([]string{"pnl", "pnl_pct", "hold_days", "was_profitable", "routing_confidence"}).
			AddRow(100.0, 0.02, 1.0, true, 0.90).
			AddRow(-50.0, -0.01, 2.0, false, 0.85).
			AddRow(-20.0, -0.005, 1.0, false, 0.40))

	got, err := trk.RoutingAccuracy(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("RoutingAccuracy() error = %v", err)
	}
	if !almostEqual(got, 2.0/3.0) {
		t.Errorf("RoutingAccuracy() = %v, want 2/3", got)
	}
}
