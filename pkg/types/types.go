// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the trader: stock profiles,
// screener recommendations, routing decisions, trade signals, and the
// persisted ledger entities. It has no dependencies on internal packages,
// so it can be imported by any layer.
package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// -------------------------------------------------------------------------
// Core enums
// -------------------------------------------------------------------------

// Side represents the direction of an executed order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Action is what a strategy engine wants done right now. Unlike Side it
// includes HOLD, which never reaches the ledger.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Confidence is the screener's categorical conviction level.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Rank orders confidence levels: LOW < MEDIUM < HIGH. Unknown levels rank
// below LOW so they never satisfy a minimum-confidence check.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether c meets or exceeds min.
func (c Confidence) AtLeast(min Confidence) bool {
	return c.Rank() >= min.Rank()
}

// ConfidenceFromScore maps a numeric screener score (1-10 scale) to a
// categorical level: 8 and above is HIGH, 5-7 is MEDIUM, the rest LOW.
func ConfidenceFromScore(score float64) Confidence {
	switch {
	case score >= 8:
		return ConfidenceHigh
	case score >= 5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Classification is the stock-tier label assigned by the classifier.
type Classification string

const (
	ClassPennyStock Classification = "penny_stock"
	ClassSmallCap   Classification = "small_cap"
	ClassMidCap     Classification = "mid_cap"
	ClassLargeCap   Classification = "large_cap"
	ClassETF        Classification = "etf"
	ClassUnknown    Classification = "unknown"
)

// Strategy engine keys. Config and the router refer to engines by these
// names; the registry in internal/strategy maps them to concrete types.
const (
	StrategyRSIMeanReversion       = "rsi_mean_reversion"
	StrategyMomentumBreakout       = "momentum_breakout"
	StrategyBollingerMeanReversion = "bollinger_mean_reversion"
)

// -------------------------------------------------------------------------
// Market data
// -------------------------------------------------------------------------

// Snapshot is one market-data fetch result for a symbol: trailing daily
// closes and volumes plus the live quote. Closes and Volumes are ordered
// oldest first and aligned index for index.
type Snapshot struct {
	Symbol        string
	Closes        []float64
	Volumes       []float64
	CurrentPrice  float64
	CurrentVolume float64
	Source        string // which tier served the data: "primary", "cache", "fallback"
	FetchedAt     time.Time
}

// StockProfile describes a symbol at classification time. Derived on demand
// from market data; never persisted.
type StockProfile struct {
	Symbol               string
	Price                float64
	VolatilityAnnualized float64 // stdev of daily log returns scaled by sqrt(252); 0 if too little history
	MarketCap            float64 // 0 = unknown
	Sector               string  // "UNKNOWN" when unavailable
	IsETF                bool
	AvgVolume            float64
	Classification       Classification
}

// -------------------------------------------------------------------------
// Screener
// -------------------------------------------------------------------------

// Recommendation is the canonical form of one screener entry. The parser
// normalizes the upstream record's many key spellings into this shape.
// Invariants: EntryLow <= EntryHigh, Target > EntryHigh, Stop < EntryLow.
type Recommendation struct {
	Symbol     string
	EntryLow   float64
	EntryHigh  float64
	Target     float64
	Stop       float64
	Confidence Confidence
	IssuedAt   time.Time
}

// Age returns how old the recommendation is as of now. Stale entries are
// accepted as input but fail the validator's freshness check.
func (r Recommendation) Age(now time.Time) time.Duration {
	return now.Sub(r.IssuedAt)
}

// -------------------------------------------------------------------------
// Routing
// -------------------------------------------------------------------------

// ScoredStrategy pairs a strategy key with its routing score, used for the
// alternatives list on a RoutingDecision.
type ScoredStrategy struct {
	Strategy string
	Score    float64
}

// RoutingDecision is the router's output, persisted for every call.
type RoutingDecision struct {
	DecisionID     uuid.UUID
	Symbol         string
	Strategy       string
	Classification Classification
	Confidence     float64 // final score in [0,1] after feedback modulation
	Reason         string
	Alternatives   []ScoredStrategy // remaining strategies, best score first
	IssuedAt       time.Time
}

// -------------------------------------------------------------------------
// Signals
// -------------------------------------------------------------------------

// TradeSignal is what an engine emits for a symbol: enter, exit, or do
// nothing. A BUY with Quantity 0 or StopLoss 0 is invalid and the executor
// rejects it.
type TradeSignal struct {
	Action       Action
	Symbol       string
	Quantity     int64
	Price        float64
	StopLoss     float64
	ProfitTarget float64
	Confidence   float64
	Reason       string
	Indicators   map[string]float64 // values that drove the decision, e.g. "rsi": 28.4
}

// -------------------------------------------------------------------------
// Ledger entities
// -------------------------------------------------------------------------

// Account is the singleton cash row. Cash changes only through order
// commits inside the ledger writer; there is no other mutation path.
type Account struct {
	Cash        float64
	LastUpdated time.Time
}

// Position is an open long holding managed by exactly one strategy.
// MaxSeen carries the highest price observed since entry and anchors the
// momentum engine's trailing stop.
type Position struct {
	Symbol       string
	Strategy     string
	Quantity     int64
	EntryPrice   float64
	EntryTime    time.Time
	StopLoss     float64
	ProfitTarget float64
	MaxSeen      float64
	LastUpdated  time.Time
}

// Order is one row of the append-only fill log. Orders never mutate after
// insertion.
type Order struct {
	ID        int64
	Symbol    string
	Side      Side
	Quantity  int64
	Price     float64
	Timestamp time.Time
	Strategy  string
	Reason    string
}

// -------------------------------------------------------------------------
// Performance tracking
// -------------------------------------------------------------------------

// TradeRecord pairs an entry event with its eventual exit for one logical
// trade. Exit-side fields are nil until the trade closes.
type TradeRecord struct {
	TradeID           uuid.UUID
	Symbol            string
	Strategy          string
	Classification    Classification
	EntryTime         time.Time
	EntryPrice        float64
	Quantity          int64
	RoutingConfidence float64

	ExitTime      *time.Time
	ExitPrice     *float64
	ExitReason    *string
	PnL           *float64
	PnLPct        *float64
	HoldDays      *float64
	WasProfitable *bool
}

// Closed reports whether the trade has an exit event.
func (t TradeRecord) Closed() bool {
	return t.ExitTime != nil
}

// StrategyMetric is the rolling aggregate for one (strategy, stock class)
// pair over a period. Uniqueness is on the full four-part key.
type StrategyMetric struct {
	Strategy    string
	StockType   Classification
	PeriodStart time.Time
	PeriodEnd   time.Time

	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	WinRate            float64
	AvgProfitPct       float64
	AvgWinnerPct       float64
	AvgLoserPct        float64
	TotalReturnPct     float64
	MaxDrawdownPct     float64
	AvgHoldDays        float64
	Sharpe             float64
	ConfidenceAccuracy float64
	UpdatedAt          time.Time
}

// -------------------------------------------------------------------------
// Outcomes
// -------------------------------------------------------------------------

// Step labels where in the candidate pipeline an outcome was decided.
type Step string

const (
	StepRoute          Step = "route"
	StepData           Step = "data"
	StepRecommendation Step = "recommendation"
	StepValidate       Step = "validate"
	StepSignal         Step = "signal"
	StepRisk           Step = "risk"
	StepCommit         Step = "commit"
	StepEntered        Step = "entered"
	StepExited         Step = "exited"
	StepHold           Step = "hold"
)

// Outcome is the structured result of processing one candidate or one
// monitored position. Skips and failures are outcomes, not exceptions.
type Outcome struct {
	Symbol string
	Step   Step
	Reason string
}

// Sentinel errors matched with errors.Is across component boundaries.
var (
	// ErrDataUnavailable means every market-data tier failed or returned
	// too little history to act on.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrNoRecommendation means the screener book has no current entry for
	// the symbol.
	ErrNoRecommendation = errors.New("no recommendation for symbol")
)
