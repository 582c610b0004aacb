// Package validate answers "is this a valid entry right now?" for a
// candidate that the router has already assigned a strategy.
//
// Four checks run independently and all of them are reported back, so a
// skipped candidate's routing log shows every reason it was skipped, not
// just the first. Failure of any one check fails the entry.
package validate

import (
	"fmt"
	"log/slog"
	"time"

	"paper-trader/internal/config"
	"paper-trader/pkg/types"
)

// Check names, stable for logs and outcome records.
const (
	CheckPriceRange = "price_range"
	CheckStopBuffer = "stop_buffer"
	CheckConfidence = "confidence"
	CheckFreshness  = "freshness"
)

// Check is one validation criterion's verdict.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Result is the full validation verdict. Reason carries the first failed
// check when Valid is false.
type Result struct {
	Valid  bool
	Reason string
	Checks []Check
}

// WaitAdvice distinguishes "price is slightly below the band, try again
// later" from a hard reject. RangeLow and RangeHigh echo the entry band
// the price should come back to.
type WaitAdvice struct {
	ShouldWait bool
	Reason     string
	RangeLow   float64
	RangeHigh  float64
}

type Validator struct {
	cfg           config.ValidatorConfig
	minStopBuffer float64
	logger        *slog.Logger
}

// New builds a Validator. minStopBuffer is the routing-level minimum gap
// between price and stop, as a fraction of price.
func New(cfg config.ValidatorConfig, minStopBuffer float64, logger *slog.Logger) *Validator {
	return &Validator{
		cfg:           cfg,
		minStopBuffer: minStopBuffer,
		logger:        logger.With("component", "validator"),
	}
}

// Validate runs all four entry checks against the recommendation.
func (v *Validator) Validate(symbol string, currentPrice, proposedStop float64, rec types.Recommendation) Result {
	checks := make([]Check, 0, 4)

	inBand := currentPrice >= rec.EntryLow && currentPrice <= rec.EntryHigh
	checks = append(checks, Check{
		Name:   CheckPriceRange,
		Passed: inBand,
		Detail: fmt.Sprintf("price %.2f vs band [%.2f, %.2f]", currentPrice, rec.EntryLow, rec.EntryHigh),
	})

	buffer := 0.0
	if currentPrice > 0 {
		buffer = (currentPrice - proposedStop) / currentPrice
	}
	checks = append(checks, Check{
		Name:   CheckStopBuffer,
		Passed: buffer >= v.minStopBuffer,
		Detail: fmt.Sprintf("stop %.2f gives %.2f%% buffer, need %.2f%%", proposedStop, buffer*100, v.minStopBuffer*100),
	})

	checks = append(checks, Check{
		Name:   CheckConfidence,
		Passed: rec.Confidence.AtLeast(v.cfg.MinConfidence),
		Detail: fmt.Sprintf("confidence %s vs minimum %s", rec.Confidence, v.cfg.MinConfidence),
	})

	age := time.Since(rec.IssuedAt)
	checks = append(checks, Check{
		Name:   CheckFreshness,
		Passed: age <= v.cfg.MaxDataAge,
		Detail: fmt.Sprintf("recommendation age %s, limit %s", age.Round(time.Minute), v.cfg.MaxDataAge),
	})

	result := Result{Valid: true, Checks: checks}
	for _, c := range checks {
		if !c.Passed {
			result.Valid = false
			result.Reason = fmt.Sprintf("%s: %s", c.Name, c.Detail)
			break
		}
	}

	v.logger.Debug("entry validation",
		"symbol", symbol,
		"valid", result.Valid,
		"reason", result.Reason)
	return result
}

// RecommendedStop returns a stop for an entry at entryPrice. The
// recommendation's stop is used as-is when it leaves at least the minimum
// buffer; otherwise the stop is widened to exactly the buffer and the
// second return reports the adjustment.
func (v *Validator) RecommendedStop(symbol string, entryPrice float64, rec types.Recommendation) (float64, bool) {
	if entryPrice <= 0 {
		return 0, false
	}
	if rec.Stop > 0 && (entryPrice-rec.Stop)/entryPrice >= v.minStopBuffer {
		return rec.Stop, false
	}

	adjusted := entryPrice * (1 - v.minStopBuffer)
	v.logger.Debug("widening recommended stop",
		"symbol", symbol,
		"recommended", rec.Stop,
		"adjusted", adjusted)
	return adjusted, true
}

// WaitForBetterEntry advises deferring when the price sits below the
// entry band by less than the configured tolerance. Prices inside or
// above the band, or too far below it, do not wait.
func (v *Validator) WaitForBetterEntry(symbol string, currentPrice float64, rec types.Recommendation) WaitAdvice {
	advice := WaitAdvice{RangeLow: rec.EntryLow, RangeHigh: rec.EntryHigh}

	if rec.EntryLow <= 0 || currentPrice >= rec.EntryLow {
		advice.Reason = "price at or above entry band"
		return advice
	}

	gap := (rec.EntryLow - currentPrice) / rec.EntryLow
	if gap < v.cfg.EntryTolerance {
		advice.ShouldWait = true
		advice.Reason = fmt.Sprintf("price %.2f is %.1f%% below entry band", currentPrice, gap*100)
		return advice
	}

	advice.Reason = fmt.Sprintf("price %.2f is %.1f%% below entry band, beyond tolerance", currentPrice, gap*100)
	return advice
}
