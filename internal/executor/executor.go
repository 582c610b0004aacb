// Package executor sequences router → validator → engine → ledger for
// each candidate and re-evaluates every open position on monitor ticks.
//
// Each step of candidate processing can end the pipeline with a
// structured Outcome instead of an error: a skipped candidate is a
// normal result, not a failure. The executor is the only component that
// submits ledger mutations, and it hands them to the ledger's single
// writer, so candidate workers may run in parallel while commits stay
// serialized.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"paper-trader/internal/config"
	"paper-trader/internal/marketdata"
	"paper-trader/internal/risk"
	"paper-trader/internal/screener"
	"paper-trader/internal/strategy"
	"paper-trader/internal/validate"
	"paper-trader/pkg/types"
)

// minHistory is the floor on trailing closes before any candidate is
// considered, regardless of what the routed engine needs.
const minHistory = 20

// Classifier builds the stock profile the router keys off.
type Classifier interface {
	Classify(ctx context.Context, symbol string) (types.StockProfile, error)
}

// Router assigns a strategy to a profile and logs the decision.
type Router interface {
	Route(ctx context.Context, profile types.StockProfile) types.RoutingDecision
}

// Ledger is the slice of the persistent ledger the executor uses: reads
// for the risk gates and the portfolio view, submits for mutations.
type Ledger interface {
	Account(ctx context.Context) (types.Account, error)
	OpenPositions(ctx context.Context) ([]types.Position, error)
	OrdersToday(ctx context.Context, now time.Time) (int, error)
	StrategyAllocation(ctx context.Context) (map[string]float64, error)
	SubmitBuy(ctx context.Context, sig types.TradeSignal, strategy string) error
	SubmitSell(ctx context.Context, pos types.Position, price float64, reason string) error
	SubmitStopUpdate(ctx context.Context, pos types.Position) error
}

// Tracker is the trade-lifecycle surface of the performance tracker.
type Tracker interface {
	LogTradeEntry(ctx context.Context, rec types.TradeRecord) error
	LogTradeExit(ctx context.Context, tradeID uuid.UUID, exitPrice float64, exitReason string) error
	OpenTradeID(ctx context.Context, symbol, strategy string) (uuid.UUID, bool, error)
}

// Deps collects the executor's collaborators.
type Deps struct {
	Classifier Classifier
	Router     Router
	Source     marketdata.Source
	Book       *screener.Book
	Validator  *validate.Validator
	Engines    map[string]strategy.Engine
	Ledger     Ledger
	Tracker    Tracker
	Risk       *risk.Manager
}

type Executor struct {
	cfg             config.ExecutionConfig
	screenerEnabled bool
	deps            Deps
	logger          *slog.Logger
}

func New(cfg config.ExecutionConfig, screenerEnabled bool, deps Deps, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:             cfg,
		screenerEnabled: screenerEnabled,
		deps:            deps,
		logger:          logger.With("component", "executor"),
	}
}

func outcome(symbol string, step types.Step, reason string) types.Outcome {
	return types.Outcome{Symbol: symbol, Step: step, Reason: reason}
}

// ProcessCandidate runs one symbol through the full entry pipeline. Every
// early return is a skip with the step and reason recorded; only a
// committed BUY reaches StepEntered.
func (x *Executor) ProcessCandidate(ctx context.Context, symbol string) types.Outcome {
	profile, err := x.deps.Classifier.Classify(ctx, symbol)
	if err != nil {
		x.logger.Warn("classification failed", "symbol", symbol, "error", err)
		return outcome(symbol, types.StepData, err.Error())
	}

	decision := x.deps.Router.Route(ctx, profile)
	engine, ok := x.deps.Engines[decision.Strategy]
	if !ok {
		return outcome(symbol, types.StepRoute, fmt.Sprintf("no engine for strategy %q", decision.Strategy))
	}

	snap, err := x.deps.Source.Fetch(ctx, symbol)
	if err != nil {
		x.logger.Warn("market data unavailable", "symbol", symbol, "error", err)
		return outcome(symbol, types.StepData, err.Error())
	}
	if len(snap.Closes) < minHistory {
		return outcome(symbol, types.StepData,
			fmt.Sprintf("only %d closes, need %d", len(snap.Closes), minHistory))
	}
	if snap.CurrentPrice <= 0 {
		return outcome(symbol, types.StepData, "no current price")
	}

	var rec types.Recommendation
	if x.screenerEnabled {
		rec, ok = x.deps.Book.Lookup(symbol)
		if !ok {
			return outcome(symbol, types.StepRecommendation, "no recommendation for symbol")
		}

		proposedStop, _ := x.deps.Validator.RecommendedStop(symbol, snap.CurrentPrice, rec)
		if res := x.deps.Validator.Validate(symbol, snap.CurrentPrice, proposedStop, rec); !res.Valid {
			reason := res.Reason
			// A price just under the band is a defer, not a reject; tell the
			// caller which range to come back for.
			if advice := x.deps.Validator.WaitForBetterEntry(symbol, snap.CurrentPrice, rec); advice.ShouldWait {
				reason = fmt.Sprintf("%s; waiting for %.2f-%.2f", advice.Reason, advice.RangeLow, advice.RangeHigh)
			}
			return outcome(symbol, types.StepValidate, reason)
		}
	}

	pf, positions, err := x.portfolio(ctx)
	if err != nil {
		return outcome(symbol, types.StepData, err.Error())
	}

	now := time.Now().UTC()
	x.deps.Risk.ObserveEquity(now, entryEquity(pf.Cash, positions))

	sig := engine.GenerateSignal(symbol, snap, pf)
	switch sig.Action {
	case types.ActionHold:
		return outcome(symbol, types.StepHold, sig.Reason)
	case types.ActionBuy:
	default:
		return outcome(symbol, types.StepSignal, fmt.Sprintf("unexpected %s signal from %s", sig.Action, engine.Name()))
	}
	if sig.Quantity <= 0 || sig.StopLoss <= 0 {
		return outcome(symbol, types.StepSignal,
			fmt.Sprintf("invalid buy: quantity %d, stop %.2f", sig.Quantity, sig.StopLoss))
	}

	verdict, err := x.checkGates(ctx, symbol, decision.Strategy, sig, pf, positions, now)
	if err != nil {
		return outcome(symbol, types.StepData, err.Error())
	}
	if !verdict.OK {
		x.logger.Info("buy rejected by risk gate",
			"symbol", symbol,
			"gate", verdict.Gate,
			"reason", verdict.Reason)
		return outcome(symbol, types.StepRisk, fmt.Sprintf("%s: %s", verdict.Gate, verdict.Reason))
	}

	if err := x.deps.Ledger.SubmitBuy(ctx, sig, decision.Strategy); err != nil {
		x.logger.Warn("buy commit failed", "symbol", symbol, "error", err)
		return outcome(symbol, types.StepCommit, err.Error())
	}

	entry := types.TradeRecord{
		TradeID:           uuid.New(),
		Symbol:            symbol,
		Strategy:          decision.Strategy,
		Classification:    decision.Classification,
		EntryTime:         now,
		EntryPrice:        sig.Price,
		Quantity:          sig.Quantity,
		RoutingConfidence: decision.Confidence,
	}
	if err := x.deps.Tracker.LogTradeEntry(ctx, entry); err != nil {
		// The position is live either way; the tracker row catches up on
		// the exit path at worst.
		x.logger.Warn("trade entry not tracked", "symbol", symbol, "trade_id", entry.TradeID, "error", err)
	}

	return outcome(symbol, types.StepEntered,
		fmt.Sprintf("%d shares at %.2f: %s", sig.Quantity, sig.Price, sig.Reason))
}

// MonitorPositions re-evaluates every open position once: fetch a quote,
// ask the owning engine (or the drawdown breaker) for an exit, and commit
// any SELL through the writer. Per-position failures are reported in the
// outcomes and do not stop the sweep.
func (x *Executor) MonitorPositions(ctx context.Context) []types.Outcome {
	positions, err := x.deps.Ledger.OpenPositions(ctx)
	if err != nil {
		x.logger.Warn("cannot list open positions", "error", err)
		return []types.Outcome{outcome("", types.StepData, err.Error())}
	}
	if len(positions) == 0 {
		return nil
	}

	acct, err := x.deps.Ledger.Account(ctx)
	if err != nil {
		x.logger.Warn("cannot read account", "error", err)
		return []types.Outcome{outcome("", types.StepData, err.Error())}
	}

	now := time.Now().UTC()
	equity := acct.Cash
	outcomes := make([]types.Outcome, 0, len(positions))

	for _, pos := range positions {
		if ctx.Err() != nil {
			break
		}

		snap, err := x.deps.Source.Fetch(ctx, pos.Symbol)
		if err != nil || snap.CurrentPrice <= 0 {
			// Mark at entry so one dead feed does not look like a crash.
			equity += float64(pos.Quantity) * pos.EntryPrice
			x.logger.Warn("monitor fetch failed", "symbol", pos.Symbol, "error", err)
			outcomes = append(outcomes, outcome(pos.Symbol, types.StepData, "quote unavailable"))
			continue
		}
		price := snap.CurrentPrice
		equity += float64(pos.Quantity) * price

		outcomes = append(outcomes, x.monitorOne(ctx, pos, snap, now))
	}

	x.deps.Risk.ObserveEquity(now, equity)
	return outcomes
}

// monitorOne decides and executes the exit (or hold) for one position.
func (x *Executor) monitorOne(ctx context.Context, pos types.Position, snap types.Snapshot, now time.Time) types.Outcome {
	price := snap.CurrentPrice

	engine, ok := x.deps.Engines[pos.Strategy]
	if !ok {
		x.logger.Error("position owned by unknown strategy", "symbol", pos.Symbol, "strategy", pos.Strategy)
		return outcome(pos.Symbol, types.StepSignal, fmt.Sprintf("no engine for strategy %q", pos.Strategy))
	}

	var sig types.TradeSignal
	if reason, force := x.deps.Risk.ForceSellReason(pos, price); force {
		sig = types.TradeSignal{
			Action:   types.ActionSell,
			Symbol:   pos.Symbol,
			Quantity: pos.Quantity,
			Price:    price,
			Reason:   reason,
		}
	} else {
		prevStop, prevMax := pos.StopLoss, pos.MaxSeen
		sig = engine.MonitorPosition(&pos, snap, now)
		if sig.Action == types.ActionHold && (pos.StopLoss != prevStop || pos.MaxSeen != prevMax) {
			if err := x.deps.Ledger.SubmitStopUpdate(ctx, pos); err != nil {
				x.logger.Warn("trailing stop not persisted", "symbol", pos.Symbol, "error", err)
			}
		}
	}

	if sig.Action != types.ActionSell {
		return outcome(pos.Symbol, types.StepHold, sig.Reason)
	}

	if err := x.deps.Ledger.SubmitSell(ctx, pos, price, sig.Reason); err != nil {
		x.logger.Error("sell commit failed", "symbol", pos.Symbol, "error", err)
		return outcome(pos.Symbol, types.StepCommit, err.Error())
	}

	x.closeTrade(ctx, pos, price, sig.Reason)
	x.deps.Risk.RecordClose(pos.Strategy, price > pos.EntryPrice, now)

	x.logger.Info("position exited",
		"symbol", pos.Symbol,
		"strategy", pos.Strategy,
		"entry", pos.EntryPrice,
		"exit", price,
		"reason", sig.Reason)
	return outcome(pos.Symbol, types.StepExited, sig.Reason)
}

// closeTrade finds the open trade record behind a sold position and
// closes it. Both tracker calls are idempotent, so a partial failure here
// is recoverable by a later retry rather than fatal.
func (x *Executor) closeTrade(ctx context.Context, pos types.Position, price float64, reason string) {
	tradeID, found, err := x.deps.Tracker.OpenTradeID(ctx, pos.Symbol, pos.Strategy)
	if err != nil {
		x.logger.Warn("open trade lookup failed", "symbol", pos.Symbol, "error", err)
		return
	}
	if !found {
		x.logger.Warn("sold position had no open trade record", "symbol", pos.Symbol, "strategy", pos.Strategy)
		return
	}
	if err := x.deps.Tracker.LogTradeExit(ctx, tradeID, price, reason); err != nil {
		x.logger.Warn("trade exit not tracked", "symbol", pos.Symbol, "trade_id", tradeID, "error", err)
	}
}

// RunMonitoringLoop sweeps open positions at a fixed interval until the
// context is cancelled. Ticks run on this goroutine, so a slow sweep
// cannot overlap the next one; ticks that fire meanwhile are dropped.
func (x *Executor) RunMonitoringLoop(ctx context.Context, interval time.Duration) {
	x.logger.Info("monitor loop started", "interval", interval)

	x.runTick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			x.logger.Info("monitor loop stopped")
			return
		case <-ticker.C:
			x.runTick(ctx)
		}
	}
}

func (x *Executor) runTick(ctx context.Context) {
	outcomes := x.MonitorPositions(ctx)

	var exits, holds, failures int
	for _, o := range outcomes {
		switch o.Step {
		case types.StepExited:
			exits++
		case types.StepHold:
			holds++
		default:
			failures++
		}
	}
	if len(outcomes) > 0 {
		x.logger.Info("monitor tick complete",
			"positions", len(outcomes),
			"exits", exits,
			"holds", holds,
			"failures", failures)
	}
}

// portfolio builds the engines' read-only view from the ledger.
func (x *Executor) portfolio(ctx context.Context) (strategy.Portfolio, []types.Position, error) {
	acct, err := x.deps.Ledger.Account(ctx)
	if err != nil {
		return strategy.Portfolio{}, nil, fmt.Errorf("reading account: %w", err)
	}
	positions, err := x.deps.Ledger.OpenPositions(ctx)
	if err != nil {
		return strategy.Portfolio{}, nil, fmt.Errorf("reading positions: %w", err)
	}

	pf := strategy.Portfolio{
		Cash:      acct.Cash,
		Positions: make(map[string]types.Position, len(positions)),
	}
	for _, p := range positions {
		pf.Positions[p.Symbol] = p
	}
	return pf, positions, nil
}

// checkGates gathers the remaining ledger state and runs the risk gates
// for a proposed BUY.
func (x *Executor) checkGates(ctx context.Context, symbol, strategyName string, sig types.TradeSignal,
	pf strategy.Portfolio, positions []types.Position, now time.Time) (risk.Verdict, error) {

	ordersToday, err := x.deps.Ledger.OrdersToday(ctx, now)
	if err != nil {
		return risk.Verdict{}, fmt.Errorf("counting today's orders: %w", err)
	}
	alloc, err := x.deps.Ledger.StrategyAllocation(ctx)
	if err != nil {
		return risk.Verdict{}, fmt.Errorf("reading strategy allocation: %w", err)
	}

	_, hasPosition := pf.Positions[symbol]
	return x.deps.Risk.CheckBuy(risk.GateInput{
		Strategy:           strategyName,
		Symbol:             symbol,
		Cost:               sig.Price * float64(sig.Quantity),
		Cash:               pf.Cash,
		Equity:             entryEquity(pf.Cash, positions),
		OpenPositions:      len(positions),
		HasPosition:        hasPosition,
		StrategyAllocation: alloc[strategyName],
		OrdersToday:        ordersToday,
		Now:                now,
	}), nil
}

// entryEquity values the portfolio at entry prices: cash plus open cost
// basis. The monitor's mark-to-market equity feeds the daily-loss breaker
// separately.
func entryEquity(cash float64, positions []types.Position) float64 {
	equity := cash
	for _, p := range positions {
		equity += float64(p.Quantity) * p.EntryPrice
	}
	return equity
}
