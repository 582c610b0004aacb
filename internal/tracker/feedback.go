package tracker

import (
	"context"
	"time"

	"paper-trader/pkg/types"
)

// Feedback multipliers are clamped to this range before the router sees
// them; a strategy can be dampened but never silenced by feedback alone.
const (
	multiplierFloor = 0.50
	multiplierCeil  = 1.15
)

// minFeedbackTrades is how many closed trades a (strategy, classification)
// pair needs in the window before its history moves the multiplier off 1.0.
const minFeedbackTrades = 3

const feedbackStatsSQL = `
	SELECT COUNT(*),
	       COUNT(*) FILTER (WHERE was_profitable),
	       COALESCE(AVG(pnl_pct), 0)
	FROM trade_tracking
	WHERE strategy = $1 AND classification = $2 AND exit_time >= $3`

// AdjustedConfidence returns the multiplier the router applies to its raw
// score for one (strategy, classification) pair, derived from the last 30
// days of closed trades. Thin history and query failures both return the
// neutral 1.0; the router must keep working when the tracker cannot
// answer.
func (t *Tracker) AdjustedConfidence(ctx context.Context, strategy string, class types.Classification) float64 {
	cutoff := time.Now().UTC().Add(-aggregateWindow)

	var (
		total   int
		winners int
		avgPct  float64
	)
	err := t.pool.QueryRow(ctx, feedbackStatsSQL, strategy, string(class), cutoff).
		Scan(&total, &winners, &avgPct)
	if err != nil {
		t.logger.Warn("feedback query failed, using neutral multiplier",
			"strategy", strategy,
			"classification", class,
			"error", err)
		return 1.0
	}
	if total < minFeedbackTrades {
		return 1.0
	}

	winRate := float64(winners) / float64(total)
	mult := 1.0
	switch {
	case winRate > 0.80:
		mult = 1.10
	case winRate > 0.70:
		mult = 1.05
	case winRate < 0.40:
		mult = 0.70
	case winRate < 0.50:
		mult = 0.85
	}

	if avgPct > 0.05 {
		mult *= 1.05
	} else if avgPct < 0 {
		mult *= 0.90
	}

	if mult < multiplierFloor {
		mult = multiplierFloor
	}
	if mult > multiplierCeil {
		mult = multiplierCeil
	}
	return mult
}
