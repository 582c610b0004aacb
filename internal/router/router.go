// Package router assigns a strategy engine to each candidate based on
// its stock profile, modulated by how the strategy has actually been
// performing for that class of stock.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"paper-trader/internal/config"
	"paper-trader/pkg/types"
)

// lowVolThreshold marks a large cap calm enough for mean reversion.
const lowVolThreshold = 0.25

// disableThreshold drops a strategy from selection when feedback pushes
// its multiplier this low.
const disableThreshold = 0.30

// defaultScore is the fallback when no profile rule fires.
const defaultScore = 0.50

// Feedback is the slice of the performance tracker the router consults.
// The router never sees the executor or the full tracker surface.
type Feedback interface {
	AdjustedConfidence(ctx context.Context, strategy string, class types.Classification) float64
	LogRouting(ctx context.Context, decision types.RoutingDecision) error
}

// rule is one row of the scoring table. Rows are ordered so that for any
// single strategy the first matching row carries its highest score, which
// makes it both the score and the primary rationale.
type rule struct {
	strategy string
	score    float64
	reason   string
	match    func(p types.StockProfile) bool
}

type Router struct {
	cfg     config.RoutingConfig
	fb      Feedback
	logger  *slog.Logger
	rules   []rule
	sectors map[string]struct{}
}

func New(cfg config.RoutingConfig, fb Feedback, logger *slog.Logger) *Router {
	r := &Router{
		cfg:     cfg,
		fb:      fb,
		logger:  logger.With("component", "router"),
		sectors: make(map[string]struct{}, len(cfg.MomentumSectors)),
	}
	for _, s := range cfg.MomentumSectors {
		r.sectors[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	r.rules = []rule{
		{
			strategy: types.StrategyRSIMeanReversion,
			score:    0.95,
			reason:   "ETFs mean-revert reliably",
			match:    func(p types.StockProfile) bool { return p.IsETF },
		},
		{
			strategy: types.StrategyMomentumBreakout,
			score:    0.90,
			reason:   "penny stocks move on momentum",
			match:    func(p types.StockProfile) bool { return p.Classification == types.ClassPennyStock },
		},
		{
			strategy: types.StrategyMomentumBreakout,
			score:    0.85,
			reason:   fmt.Sprintf("annualized volatility above %.2f", cfg.HighVolThreshold),
			match:    func(p types.StockProfile) bool { return p.VolatilityAnnualized > cfg.HighVolThreshold },
		},
		{
			strategy: types.StrategyRSIMeanReversion,
			score:    0.85,
			reason:   "calm large cap suits mean reversion",
			match: func(p types.StockProfile) bool {
				return p.Classification == types.ClassLargeCap && p.VolatilityAnnualized < lowVolThreshold
			},
		},
		{
			strategy: types.StrategyMomentumBreakout,
			score:    0.80,
			reason:   "sector rides momentum",
			match: func(p types.StockProfile) bool {
				_, ok := r.sectors[strings.ToLower(p.Sector)]
				return ok
			},
		},
	}
	return r
}

// Route scores every strategy against the profile and picks the best
// after feedback modulation. Selection is deterministic given the profile
// and feedback values. The decision is logged through the tracker before
// it is returned.
func (r *Router) Route(ctx context.Context, profile types.StockProfile) types.RoutingDecision {
	scores := map[string]float64{
		types.StrategyRSIMeanReversion:       0,
		types.StrategyMomentumBreakout:       0,
		types.StrategyBollingerMeanReversion: 0,
	}
	reasons := map[string]string{}

	matched := false
	for _, rl := range r.rules {
		if !rl.match(profile) {
			continue
		}
		matched = true
		if rl.score > scores[rl.strategy] {
			scores[rl.strategy] = rl.score
		}
		if _, ok := reasons[rl.strategy]; !ok {
			reasons[rl.strategy] = rl.reason
		}
	}
	if !matched {
		scores[types.StrategyRSIMeanReversion] = defaultScore
		reasons[types.StrategyRSIMeanReversion] = "no specific signal, defaulting to mean reversion"
	}

	// Feedback modulation. Strategies the tracker has soured on score
	// lower; one pushed under the disable threshold is excluded outright.
	for name, score := range scores {
		if score == 0 {
			continue
		}
		mult := r.fb.AdjustedConfidence(ctx, name, profile.Classification)
		if mult < disableThreshold {
			r.logger.Info("strategy disabled by feedback",
				"symbol", profile.Symbol,
				"strategy", name,
				"classification", profile.Classification,
				"multiplier", mult)
			scores[name] = 0
			delete(reasons, name)
			continue
		}
		adjusted := score * mult
		if adjusted > 1 {
			adjusted = 1
		}
		scores[name] = adjusted
	}

	winner, confidence := r.pick(scores)
	reason := reasons[winner]
	if reason == "" {
		reason = "no specific signal, defaulting to mean reversion"
	}

	decision := types.RoutingDecision{
		DecisionID:     uuid.New(),
		Symbol:         profile.Symbol,
		Strategy:       winner,
		Classification: profile.Classification,
		Confidence:     confidence,
		Reason:         reason,
		Alternatives:   alternatives(scores, winner),
		IssuedAt:       time.Now().UTC(),
	}

	if err := r.fb.LogRouting(ctx, decision); err != nil {
		r.logger.Warn("routing decision not persisted",
			"symbol", profile.Symbol,
			"decision_id", decision.DecisionID,
			"error", err)
	}

	r.logger.Info("routed candidate",
		"symbol", profile.Symbol,
		"classification", profile.Classification,
		"strategy", winner,
		"confidence", confidence,
		"reason", reason)
	return decision
}

// pick returns the best-scoring strategy, falling back to mean reversion
// when feedback has excluded everything.
func (r *Router) pick(scores map[string]float64) (string, float64) {
	order := []string{
		types.StrategyRSIMeanReversion,
		types.StrategyMomentumBreakout,
		types.StrategyBollingerMeanReversion,
	}

	winner, best := "", 0.0
	for _, name := range order {
		if scores[name] > best {
			winner, best = name, scores[name]
		}
	}
	if winner == "" {
		return types.StrategyRSIMeanReversion, defaultScore
	}
	return winner, best
}

// alternatives lists the non-selected strategies, best score first, names
// breaking ties so the order is stable.
func alternatives(scores map[string]float64, winner string) []types.ScoredStrategy {
	out := make([]types.ScoredStrategy, 0, len(scores)-1)
	for name, score := range scores {
		if name == winner {
			continue
		}
		out = append(out, types.ScoredStrategy{Strategy: name, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}
