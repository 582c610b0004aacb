package validate

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"paper-trader/internal/config"
	"paper-trader/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *Validator {
	cfg := config.ValidatorConfig{
		MinConfidence:  types.ConfidenceMedium,
		MaxDataAge:     24 * time.Hour,
		EntryTolerance: 0.05,
	}
	return New(cfg, 0.05, testLogger())
}

func freshRec() types.Recommendation {
	return types.Recommendation{
		Symbol:     "SPY",
		EntryLow:   540.00,
		EntryHigh:  550.00,
		Target:     558.00,
		Stop:       510.00,
		Confidence: types.ConfidenceHigh,
		IssuedAt:   time.Now().Add(-2 * time.Hour),
	}
}

func TestValidateAllChecksPass(t *testing.T) {
	t.Parallel()

	v := testValidator()
	res := v.Validate("SPY", 545.00, 510.00, freshRec())

	if !res.Valid {
		t.Fatalf("Validate() invalid, reason %q", res.Reason)
	}
	if res.Reason != "" {
		t.Errorf("Reason = %q, want empty on success", res.Reason)
	}
	if len(res.Checks) != 4 {
		t.Errorf("len(Checks) = %d, want 4", len(res.Checks))
	}
	for _, c := range res.Checks {
		if !c.Passed {
			t.Errorf("check %s failed: %s", c.Name, c.Detail)
		}
	}
}

func TestValidatePriceBandBoundaries(t *testing.T) {
	t.Parallel()

	v := testValidator()

	// The band is inclusive on both ends.
	if res := v.Validate("SPY", 540.00, 510.00, freshRec()); !res.Valid {
		t.Errorf("price exactly at entry_low rejected: %s", res.Reason)
	}
	if res := v.Validate("SPY", 550.00, 510.00, freshRec()); !res.Valid {
		t.Errorf("price exactly at entry_high rejected: %s", res.Reason)
	}

	res := v.Validate("SPY", 539.99, 510.00, freshRec())
	if res.Valid {
		t.Fatal("price below band accepted")
	}
	if !strings.HasPrefix(res.Reason, CheckPriceRange) {
		t.Errorf("Reason = %q, want %s failure", res.Reason, CheckPriceRange)
	}
	if len(res.Checks) != 4 {
		t.Errorf("len(Checks) = %d, want all checks reported on failure", len(res.Checks))
	}
}

func TestValidateStopBufferBoundary(t *testing.T) {
	t.Parallel()

	v := testValidator()
	rec := freshRec()
	rec.EntryLow, rec.EntryHigh = 95.00, 105.00

	// (100 - 95) / 100 is exactly the 5% minimum: accepted.
	if res := v.Validate("X", 100.00, 95.00, rec); !res.Valid {
		t.Errorf("exact 5%% buffer rejected: %s", res.Reason)
	}

	// (100 - 95.01) / 100 is 4.99%: rejected.
	res := v.Validate("X", 100.00, 95.01, rec)
	if res.Valid {
		t.Fatal("4.99% buffer accepted")
	}
	if !strings.HasPrefix(res.Reason, CheckStopBuffer) {
		t.Errorf("Reason = %q, want %s failure", res.Reason, CheckStopBuffer)
	}
}

func TestValidateConfidenceFloor(t *testing.T) {
	t.Parallel()

	v := testValidator()

	rec := freshRec()
	rec.Confidence = types.ConfidenceLow
	res := v.Validate("SPY", 545.00, 510.00, rec)
	if res.Valid {
		t.Fatal("LOW confidence accepted with MEDIUM floor")
	}
	if !strings.HasPrefix(res.Reason, CheckConfidence) {
		t.Errorf("Reason = %q, want %s failure", res.Reason, CheckConfidence)
	}

	rec.Confidence = types.ConfidenceMedium
	if res := v.Validate("SPY", 545.00, 510.00, rec); !res.Valid {
		t.Errorf("MEDIUM confidence rejected at MEDIUM floor: %s", res.Reason)
	}
}

func TestValidateFreshness(t *testing.T) {
	t.Parallel()

	v := testValidator()

	rec := freshRec()
	rec.IssuedAt = time.Now().Add(-26 * time.Hour)
	res := v.Validate("SPY", 545.00, 510.00, rec)
	if res.Valid {
		t.Fatal("26h-old recommendation accepted")
	}
	if !strings.HasPrefix(res.Reason, CheckFreshness) {
		t.Errorf("Reason = %q, want %s failure", res.Reason, CheckFreshness)
	}
}

func TestRecommendedStop(t *testing.T) {
	t.Parallel()

	v := testValidator()

	// Stop with ample room passes through untouched.
	rec := freshRec()
	stop, adjusted := v.RecommendedStop("SPY", 545.00, rec)
	if adjusted || stop != 510.00 {
		t.Errorf("RecommendedStop = %v, %v; want 510.00 unadjusted", stop, adjusted)
	}

	// Stop inside the buffer gets widened to exactly the buffer.
	rec.Stop = 543.00
	stop, adjusted = v.RecommendedStop("SPY", 545.00, rec)
	want := 545.00 * 0.95
	if !adjusted || stop != want {
		t.Errorf("RecommendedStop = %v, %v; want %v adjusted", stop, adjusted, want)
	}

	// A missing stop is synthesized from the buffer.
	rec.Stop = 0
	stop, adjusted = v.RecommendedStop("SPY", 545.00, rec)
	if !adjusted || stop != want {
		t.Errorf("RecommendedStop with no stop = %v, %v; want %v adjusted", stop, adjusted, want)
	}
}

func TestWaitForBetterEntry(t *testing.T) {
	t.Parallel()

	v := testValidator()
	rec := types.Recommendation{
		Symbol:     "ABTC",
		EntryLow:   2.00,
		EntryHigh:  2.05,
		Target:     2.25,
		Stop:       1.90,
		Confidence: types.ConfidenceHigh,
		IssuedAt:   time.Now().Add(-2 * time.Hour),
	}

	// 1.91 sits 4.5% below the band: close enough to wait for.
	advice := v.WaitForBetterEntry("ABTC", 1.91, rec)
	if !advice.ShouldWait {
		t.Fatalf("WaitForBetterEntry(1.91) = %+v, want wait", advice)
	}
	if advice.RangeLow != 2.00 || advice.RangeHigh != 2.05 {
		t.Errorf("target range = [%v, %v], want [2.00, 2.05]", advice.RangeLow, advice.RangeHigh)
	}

	// 1.80 is 10% below: out of reach.
	if advice := v.WaitForBetterEntry("ABTC", 1.80, rec); advice.ShouldWait {
		t.Errorf("WaitForBetterEntry(1.80) = %+v, want no wait", advice)
	}

	// In-band prices never wait.
	if advice := v.WaitForBetterEntry("ABTC", 2.02, rec); advice.ShouldWait {
		t.Errorf("WaitForBetterEntry(2.02) = %+v, want no wait", advice)
	}
}
