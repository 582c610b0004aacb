// Package engine is the central orchestrator of the paper trader.
//
// It wires together all subsystems:
//
//  1. Screener poller re-reads the recommendation file and feeds a
//     bounded candidate queue.
//  2. A worker pool drains the queue; each worker runs a candidate
//     through classify → route → validate → signal → risk → commit.
//  3. The ledger writer goroutine serializes every account mutation
//     into single Postgres transactions.
//  4. A monitor loop re-evaluates open positions for exits.
//  5. A report loop logs aggregate performance on an interval.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paper-trader/internal/classify"
	"paper-trader/internal/config"
	"paper-trader/internal/executor"
	"paper-trader/internal/ledger"
	"paper-trader/internal/marketdata"
	"paper-trader/internal/risk"
	"paper-trader/internal/router"
	"paper-trader/internal/screener"
	"paper-trader/internal/strategy"
	"paper-trader/internal/tracker"
	"paper-trader/internal/validate"
	"paper-trader/pkg/types"
)

// connectTimeout bounds the initial database connect, migration, and
// account bootstrap.
const connectTimeout = 30 * time.Second

// reportWindow is the trailing window the periodic report covers.
const reportWindow = 30 * 24 * time.Hour

// Engine owns every long-lived goroutine and the database pool.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	pool    ledger.Pool
	ledger  *ledger.Ledger
	tracker *tracker.Tracker
	riskMgr *risk.Manager
	poller  *screener.Poller
	exec    *executor.Executor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New connects to Postgres, applies migrations, seeds the account, and
// wires all components. Nothing runs until Start.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), connectTimeout)
	defer cancelConnect()

	pool, err := ledger.Connect(connectCtx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to ledger database: %w", err)
	}

	led := ledger.New(pool, logger)
	if err := led.Migrate(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := led.Bootstrap(connectCtx, cfg.Execution.StartingCash); err != nil {
		pool.Close()
		return nil, err
	}

	source, details, err := buildMarketData(cfg.MarketData, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	trk := tracker.New(pool, logger)
	riskMgr := risk.NewManager(cfg.Execution, logger)
	classifier := classify.New(cfg.Routing, source, details, logger)
	rtr := router.New(cfg.Routing, trk, logger)
	validator := validate.New(cfg.Validator, cfg.Routing.MinStopBuffer, logger)
	engines := strategy.All(cfg.Engines, cfg.Routing.MinStopBuffer)

	book := screener.NewBook()
	var poller *screener.Poller
	if cfg.Screener.Enabled {
		poller = screener.NewPoller(cfg.Screener, book, logger)
	}

	exec := executor.New(cfg.Execution, cfg.Screener.Enabled, executor.Deps{
		Classifier: classifier,
		Router:     rtr,
		Source:     source,
		Book:       book,
		Validator:  validator,
		Engines:    engines,
		Ledger:     led,
		Tracker:    trk,
		Risk:       riskMgr,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:     cfg,
		logger:  logger.With("component", "engine"),
		pool:    pool,
		ledger:  led,
		tracker: trk,
		riskMgr: riskMgr,
		poller:  poller,
		exec:    exec,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// buildMarketData assembles the tiered source: primary HTTP API, optional
// local bar cache, optional fallback HTTP API. The primary client doubles
// as the company-detail source.
func buildMarketData(cfg config.MarketDataConfig, logger *slog.Logger) (marketdata.Source, marketdata.DetailSource, error) {
	primary := marketdata.NewClient(cfg.PrimaryURL, "primary", cfg.Timeout, cfg.RatePerSec, logger)

	tiers := []marketdata.Source{primary}
	var cache *marketdata.BarCache
	if cfg.CacheDir != "" {
		var err error
		cache, err = marketdata.OpenBarCache(cfg.CacheDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening bar cache: %w", err)
		}
		tiers = append(tiers, cache)
	}
	if cfg.FallbackURL != "" {
		tiers = append(tiers, marketdata.NewClient(cfg.FallbackURL, "fallback", cfg.Timeout, cfg.RatePerSec, logger))
	}

	return marketdata.NewChain(logger, cache, tiers...), primary, nil
}

// Start launches the ledger writer, the screener poller and its worker
// pool, the position monitor, and the report loop.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.ledger.Run(e.ctx)
	}()

	if e.poller != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.poller.Run(e.ctx)
		}()

		for i := 0; i < e.cfg.Execution.Workers; i++ {
			e.wg.Add(1)
			go func(id int) {
				defer e.wg.Done()
				e.runWorker(id)
			}(i)
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.exec.RunMonitoringLoop(e.ctx, e.cfg.Monitor.Interval)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runReportLoop()
	}()

	e.logger.Info("engine started",
		"workers", e.cfg.Execution.Workers,
		"screener", e.cfg.Screener.Enabled,
		"monitor_interval", e.cfg.Monitor.Interval)
	return nil
}

// Stop cancels all goroutines, waits for them to drain, logs a final
// report and account snapshot, and closes the pool.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")
	e.cancel()
	e.wg.Wait()

	// Final state for the operator, best effort on a closing process.
	finalCtx, cancelFinal := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFinal()
	e.logReport(finalCtx)
	e.logSnapshot(finalCtx)

	e.pool.Close()
	e.logger.Info("shutdown complete")
}

// runWorker drains the candidate queue until shutdown. Every candidate
// produces exactly one outcome, logged whether it entered or was skipped.
func (e *Engine) runWorker(id int) {
	logger := e.logger.With("worker", id)
	for {
		select {
		case <-e.ctx.Done():
			return
		case symbol := <-e.poller.Candidates():
			out := e.exec.ProcessCandidate(e.ctx, symbol)
			if out.Step == types.StepEntered {
				logger.Info("candidate entered", "symbol", out.Symbol, "detail", out.Reason)
			} else {
				logger.Info("candidate skipped",
					"symbol", out.Symbol,
					"step", out.Step,
					"reason", out.Reason)
			}
		}
	}
}

func (e *Engine) runReportLoop() {
	ticker := time.NewTicker(e.cfg.Report.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.logReport(e.ctx)
		}
	}
}

func (e *Engine) logReport(ctx context.Context) {
	rep, err := e.tracker.GetReport(ctx, reportWindow)
	if err != nil {
		e.logger.Warn("performance report failed", "error", err)
		return
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	realizedToday, err := e.ledger.RealizedPnLSince(ctx, dayStart)
	if err != nil {
		e.logger.Warn("realized pnl read failed", "error", err)
	}

	e.logger.Info("performance report",
		"window", rep.Window,
		"total_trades", rep.TotalTrades,
		"total_pnl", rep.TotalPnL,
		"win_rate", rep.WinRate,
		"realized_today", realizedToday)
	for _, m := range rep.Strategies {
		e.logger.Info("strategy performance",
			"strategy", m.Strategy,
			"stock_type", m.StockType,
			"trades", m.TotalTrades,
			"win_rate", m.WinRate,
			"total_return_pct", m.TotalReturnPct,
			"sharpe", m.Sharpe)
	}

	if top, err := e.tracker.TopPerformers(ctx, "win_rate", 3); err == nil {
		for i, m := range top {
			e.logger.Info("top performer",
				"rank", i+1,
				"strategy", m.Strategy,
				"stock_type", m.StockType,
				"win_rate", m.WinRate)
		}
	}
	if acc, err := e.tracker.RoutingAccuracy(ctx, reportWindow); err == nil {
		e.logger.Info("routing accuracy", "window", reportWindow, "accuracy", acc)
	}
}

func (e *Engine) logSnapshot(ctx context.Context) {
	acct, err := e.ledger.Account(ctx)
	if err != nil {
		e.logger.Warn("final account read failed", "error", err)
		return
	}
	positions, err := e.ledger.OpenPositions(ctx)
	if err != nil {
		e.logger.Warn("final positions read failed", "error", err)
		return
	}

	held := acct.Cash
	for _, p := range positions {
		held += float64(p.Quantity) * p.EntryPrice
	}
	e.logger.Info("final account snapshot",
		"cash", acct.Cash,
		"open_positions", len(positions),
		"equity_at_entry", held)
	for _, p := range positions {
		e.logger.Info("open position",
			"symbol", p.Symbol,
			"strategy", p.Strategy,
			"quantity", p.Quantity,
			"entry_price", p.EntryPrice,
			"stop_loss", p.StopLoss)
	}
}
