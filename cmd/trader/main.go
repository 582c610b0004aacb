// Paper Trader — an automated paper-trading orchestrator that routes
// screener candidates to strategy engines and tracks how each strategy
// actually performs.
//
// Architecture:
//
//	main.go             — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go    — orchestrator: wires screener → router → engines → ledger, owns all goroutines
//	classify/           — derives a stock profile (ETF, penny, large cap...) from market data
//	router/router.go    — scores the three engines against the profile, modulated by tracked results
//	validate/           — entry checks against the screener recommendation (band, stop, freshness)
//	strategy/           — RSI mean-reversion, momentum breakout, Bollinger mean-reversion engines
//	executor/           — runs one candidate through the pipeline; monitors open positions for exits
//	risk/manager.go     — entry gates plus daily-loss, loss-streak, win-rate, and drawdown breakers
//	ledger/             — Postgres cash/positions/orders behind a single writer goroutine
//	tracker/            — per-strategy trade log and metrics; feeds confidence back into the router
//	marketdata/         — tiered quote source: HTTP API → gzip bar cache → fallback API
//
// How it learns:
//
//	Every routing decision and every closed trade is recorded. The router
//	asks the tracker how a strategy has done for that class of stock over
//	the last 30 days and scales its confidence accordingly, so capital
//	drifts toward the engines that have been earning it.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"paper-trader/internal/config"
	"paper-trader/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("TRADER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("paper trader started",
		"starting_cash", cfg.Execution.StartingCash,
		"max_positions", cfg.Execution.MaxPositions,
		"screener", cfg.Screener.Path,
		"monitor_interval", cfg.Monitor.Interval,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
