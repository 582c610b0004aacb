// Package risk enforces the executor's entry gates and circuit breakers.
//
// The manager sits between a BUY signal and the ledger. Gates are
// stateless checks against the current portfolio (cash, duplicate
// position, position count, per-strategy allocation, daily trade cap);
// breakers are stateful rules fed by equity observations and closed
// trades:
//
//   - Daily loss:          equity down more than DailyLoss from the day's
//     anchor disables BUYs until the next UTC day
//   - Consecutive losses:  ConsecutiveLosses losing closes in a row pause
//     BUYs for LossPause
//   - Strategy win rate:   a strategy below MinWinRate over its last
//     WinRateWindow closes is disabled until manually re-enabled
//   - Position drawdown:   a position more than MaxPositionDrawdown under
//     water is force-sold on the next monitor tick
//
// Tripped breakers expire lazily: the state is checked (and cleared when
// its window has passed) on the way through BuysAllowed, so no background
// goroutine is needed.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paper-trader/internal/config"
	"paper-trader/pkg/types"
)

// Gate names, stable for outcome records and logs.
const (
	GateBreaker     = "breaker"
	GateCash        = "cash"
	GateDuplicate   = "duplicate_position"
	GatePositions   = "max_positions"
	GateAllocation  = "strategy_allocation"
	GateDailyTrades = "max_daily_trades"
)

// GateInput is everything CheckBuy needs about the proposed entry and the
// portfolio it would join. The executor gathers it from the ledger so the
// manager itself never touches the database.
type GateInput struct {
	Strategy           string
	Symbol             string
	Cost               float64 // quantity × price
	Cash               float64
	Equity             float64 // cash + open positions at entry value
	OpenPositions      int
	HasPosition        bool // any strategy already holds this symbol
	StrategyAllocation float64
	OrdersToday        int
	Now                time.Time
}

// Verdict is one gate evaluation's result.
type Verdict struct {
	OK     bool
	Gate   string
	Reason string
}

func pass() Verdict                      { return Verdict{OK: true} }
func reject(gate, reason string) Verdict { return Verdict{Gate: gate, Reason: reason} }

// Manager holds all breaker state behind one mutex.
type Manager struct {
	cfg    config.ExecutionConfig
	logger *slog.Logger

	mu sync.Mutex

	// Daily-loss breaker: equity anchored at the first observation of each
	// UTC day.
	anchorDay    time.Time
	anchorEquity float64
	haltedDay    time.Time // BUYs off for this UTC day when set

	// Consecutive-loss breaker.
	lossStreak int
	pauseUntil time.Time

	// Win-rate breaker: recent close outcomes per strategy, newest last.
	recent   map[string][]bool
	disabled map[string]string // strategy -> reason; cleared only by EnableStrategy
}

func NewManager(cfg config.ExecutionConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.With("component", "risk"),
		recent:   make(map[string][]bool),
		disabled: make(map[string]string),
	}
}

// CheckBuy runs every gate in order and returns the first rejection.
func (m *Manager) CheckBuy(in GateInput) Verdict {
	if ok, reason := m.BuysAllowed(in.Now); !ok {
		return reject(GateBreaker, reason)
	}
	if ok, reason := m.StrategyEnabled(in.Strategy); !ok {
		return reject(GateBreaker, reason)
	}
	if in.Cost > in.Cash {
		return reject(GateCash, fmt.Sprintf("cost %.2f exceeds cash %.2f", in.Cost, in.Cash))
	}
	if in.HasPosition {
		return reject(GateDuplicate, fmt.Sprintf("position already open for %s", in.Symbol))
	}
	if in.OpenPositions >= m.cfg.MaxPositions {
		return reject(GatePositions, fmt.Sprintf("%d positions open, limit %d", in.OpenPositions, m.cfg.MaxPositions))
	}
	if limit := in.Equity * m.cfg.MaxStrategyAllocation; in.StrategyAllocation+in.Cost > limit {
		return reject(GateAllocation, fmt.Sprintf("%s would hold %.2f, cap %.2f",
			in.Strategy, in.StrategyAllocation+in.Cost, limit))
	}
	if in.OrdersToday >= m.cfg.MaxDailyTrades {
		return reject(GateDailyTrades, fmt.Sprintf("%d orders today, limit %d", in.OrdersToday, m.cfg.MaxDailyTrades))
	}
	return pass()
}

// ObserveEquity feeds the daily-loss breaker. The first observation of a
// UTC day anchors that day's starting equity; later observations trip the
// breaker when the decline exceeds the configured fraction.
func (m *Manager) ObserveEquity(now time.Time, equity float64) {
	day := now.UTC().Truncate(24 * time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !day.Equal(m.anchorDay) {
		m.anchorDay = day
		m.anchorEquity = equity
		return
	}
	if m.anchorEquity <= 0 || day.Equal(m.haltedDay) {
		return
	}

	loss := (m.anchorEquity - equity) / m.anchorEquity
	if loss > m.cfg.Circuit.DailyLoss {
		m.haltedDay = day
		m.logger.Error("CIRCUIT BREAKER: daily loss",
			"loss_pct", loss*100,
			"limit_pct", m.cfg.Circuit.DailyLoss*100,
			"anchor_equity", m.anchorEquity,
			"equity", equity)
	}
}

// RecordClose feeds the consecutive-loss and win-rate breakers with one
// closed trade's outcome.
func (m *Manager) RecordClose(strategy string, profitable bool, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if profitable {
		m.lossStreak = 0
	} else {
		m.lossStreak++
		if m.lossStreak >= m.cfg.Circuit.ConsecutiveLosses {
			m.pauseUntil = now.Add(m.cfg.Circuit.LossPause)
			m.lossStreak = 0
			m.logger.Error("CIRCUIT BREAKER: consecutive losses",
				"losses", m.cfg.Circuit.ConsecutiveLosses,
				"paused_until", m.pauseUntil)
		}
	}

	window := m.recent[strategy]
	window = append(window, profitable)
	if len(window) > m.cfg.Circuit.WinRateWindow {
		window = window[len(window)-m.cfg.Circuit.WinRateWindow:]
	}
	m.recent[strategy] = window

	if len(window) < m.cfg.Circuit.WinRateWindow {
		return
	}
	wins := 0
	for _, won := range window {
		if won {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(window))
	if winRate < m.cfg.Circuit.MinWinRate {
		if _, already := m.disabled[strategy]; !already {
			m.disabled[strategy] = fmt.Sprintf("win rate %.0f%% over last %d trades, minimum %.0f%%",
				winRate*100, len(window), m.cfg.Circuit.MinWinRate*100)
			m.logger.Error("CIRCUIT BREAKER: strategy disabled",
				"strategy", strategy,
				"win_rate", winRate,
				"window", len(window))
		}
	}
}

// BuysAllowed reports whether any BUY may proceed right now. Expired
// pauses and halts from a previous day are cleared on the way through.
func (m *Manager) BuysAllowed(now time.Time) (bool, string) {
	day := now.UTC().Truncate(24 * time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.haltedDay.IsZero() {
		if day.Equal(m.haltedDay) {
			return false, "daily loss limit reached, buys halted until next trading day"
		}
		m.haltedDay = time.Time{}
		m.logger.Info("daily loss halt expired")
	}
	if !m.pauseUntil.IsZero() {
		if now.Before(m.pauseUntil) {
			return false, fmt.Sprintf("consecutive losses, buys paused until %s",
				m.pauseUntil.Format(time.RFC3339))
		}
		m.pauseUntil = time.Time{}
		m.logger.Info("loss pause expired")
	}
	return true, ""
}

// StrategyEnabled reports whether the win-rate breaker has taken a
// strategy out of rotation.
func (m *Manager) StrategyEnabled(strategy string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reason, off := m.disabled[strategy]; off {
		return false, fmt.Sprintf("%s disabled: %s", strategy, reason)
	}
	return true, ""
}

// EnableStrategy is the manual re-enable for a win-rate-disabled strategy.
// The outcome window restarts empty so one bad stretch is not re-counted.
func (m *Manager) EnableStrategy(strategy string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, off := m.disabled[strategy]; !off {
		return
	}
	delete(m.disabled, strategy)
	delete(m.recent, strategy)
	m.logger.Info("strategy re-enabled", "strategy", strategy)
}

// ForceSellReason reports whether a position is so far under water that
// the monitor must sell it regardless of the engine's signal.
func (m *Manager) ForceSellReason(pos types.Position, currentPrice float64) (string, bool) {
	if pos.EntryPrice <= 0 || currentPrice <= 0 {
		return "", false
	}
	drawdown := (pos.EntryPrice - currentPrice) / pos.EntryPrice
	if drawdown > m.cfg.Circuit.MaxPositionDrawdown {
		return fmt.Sprintf("drawdown %.1f%% exceeds %.0f%% limit",
			drawdown*100, m.cfg.Circuit.MaxPositionDrawdown*100), true
	}
	return "", false
}
