// Package screener ingests the external screening pipeline's output and
// turns it into trade candidates.
//
// The upstream file is JSON with loosely standardized keys: different
// screener versions spell the same field differently and express entry
// ranges as "low-high" strings, "$low-$high" strings, bare numbers, or
// separate low/high fields. The parser normalizes all of them into the
// canonical types.Recommendation; nothing downstream ever sees raw JSON.
package screener

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"paper-trader/pkg/types"
)

// ParseRecommendation normalizes one raw screener entry. issuedAt is the
// issuance time from the enclosing file (outer timestamp or file mtime).
func ParseRecommendation(raw map[string]any, issuedAt time.Time) (types.Recommendation, error) {
	sym, ok := stringField(raw, "symbol", "ticker")
	if !ok {
		return types.Recommendation{}, fmt.Errorf("entry has no symbol")
	}
	symbol := strings.ToUpper(strings.TrimSpace(sym))
	if symbol == "" {
		return types.Recommendation{}, fmt.Errorf("entry has an empty symbol")
	}

	low, high, err := entryRange(raw)
	if err != nil {
		return types.Recommendation{}, fmt.Errorf("%s: %w", symbol, err)
	}

	target, ok := priceField(raw, "target_price", "target")
	if !ok {
		return types.Recommendation{}, fmt.Errorf("%s: missing target", symbol)
	}

	stop, ok := priceField(raw, "stop_loss", "stop", "Stop_loss")
	if !ok {
		return types.Recommendation{}, fmt.Errorf("%s: missing stop", symbol)
	}

	conf, err := confidenceField(raw)
	if err != nil {
		return types.Recommendation{}, fmt.Errorf("%s: %w", symbol, err)
	}

	rec := types.Recommendation{
		Symbol:     symbol,
		EntryLow:   low,
		EntryHigh:  high,
		Target:     target,
		Stop:       stop,
		Confidence: conf,
		IssuedAt:   issuedAt,
	}

	switch {
	case rec.EntryLow > rec.EntryHigh:
		return types.Recommendation{}, fmt.Errorf("%s: entry_low %.2f above entry_high %.2f", symbol, rec.EntryLow, rec.EntryHigh)
	case rec.Target <= rec.EntryHigh:
		return types.Recommendation{}, fmt.Errorf("%s: target %.2f not above entry_high %.2f", symbol, rec.Target, rec.EntryHigh)
	case rec.Stop >= rec.EntryLow:
		return types.Recommendation{}, fmt.Errorf("%s: stop %.2f not below entry_low %.2f", symbol, rec.Stop, rec.EntryLow)
	}

	return rec, nil
}

// entryRange extracts the entry band. Accepts range keys holding a
// "low-high" string or a single number, or separate entry_low/entry_high
// numeric fields. A single price collapses to low = high.
func entryRange(raw map[string]any) (low, high float64, err error) {
	if v, ok := firstKey(raw, "entry_price_range", "entry_range", "entry"); ok {
		switch val := v.(type) {
		case string:
			return parseRangeString(val)
		default:
			price, ok := toPrice(v)
			if !ok {
				return 0, 0, fmt.Errorf("unparseable entry %v", v)
			}
			return price, price, nil
		}
	}

	l, okLow := priceField(raw, "entry_low")
	h, okHigh := priceField(raw, "entry_high")
	if okLow && okHigh {
		return l, h, nil
	}
	return 0, 0, fmt.Errorf("missing entry range")
}

// parseRangeString splits "low-high" (with optional $ prefixes and
// whitespace) into two prices. A bare price becomes low = high.
func parseRangeString(s string) (low, high float64, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	low, ok := toPrice(parts[0])
	if !ok {
		return 0, 0, fmt.Errorf("unparseable entry range %q", s)
	}
	if len(parts) == 1 {
		return low, low, nil
	}
	high, ok = toPrice(parts[1])
	if !ok {
		return 0, 0, fmt.Errorf("unparseable entry range %q", s)
	}
	return low, high, nil
}

// confidenceField reads the confidence level: a categorical string or a
// numeric 1-10 score under either accepted key.
func confidenceField(raw map[string]any) (types.Confidence, error) {
	v, ok := firstKey(raw, "confidence", "confidence_score")
	if !ok {
		return "", fmt.Errorf("missing confidence")
	}

	switch val := v.(type) {
	case string:
		level := types.Confidence(strings.ToUpper(strings.TrimSpace(val)))
		if level.Rank() > 0 {
			return level, nil
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return "", fmt.Errorf("unparseable confidence %q", val)
		}
		return types.ConfidenceFromScore(score), nil
	default:
		score, ok := toPrice(v)
		if !ok {
			return "", fmt.Errorf("unparseable confidence %v", v)
		}
		return types.ConfidenceFromScore(score), nil
	}
}

// firstKey returns the value under the first present key.
func firstKey(raw map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(raw map[string]any, keys ...string) (string, bool) {
	v, ok := firstKey(raw, keys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func priceField(raw map[string]any, keys ...string) (float64, bool) {
	v, ok := firstKey(raw, keys...)
	if !ok {
		return 0, false
	}
	return toPrice(v)
}

// toPrice converts JSON values to a price: numbers pass through, strings
// are parsed after stripping a currency prefix and thousands separators.
func toPrice(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		s := strings.TrimSpace(val)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
