package screener

import (
	"testing"
	"time"

	"paper-trader/pkg/types"
)

func rec(symbol string, issuedAt time.Time, target float64) types.Recommendation {
	return types.Recommendation{
		Symbol:     symbol,
		EntryLow:   2.00,
		EntryHigh:  2.05,
		Target:     target,
		Stop:       1.85,
		Confidence: types.ConfidenceHigh,
		IssuedAt:   issuedAt,
	}
}

func TestBookUpdateAndLookup(t *testing.T) {
	t.Parallel()

	b := NewBook()
	b.Update([]types.Recommendation{
		rec("ABTC", issued, 2.40),
		rec("PLUG", issued, 1.80),
	})

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	got, ok := b.Lookup("ABTC")
	if !ok || got.Target != 2.40 {
		t.Errorf("Lookup(ABTC) = %+v, %v; want target 2.40", got, ok)
	}
	if _, ok := b.Lookup("NVDA"); ok {
		t.Error("Lookup(NVDA) found an entry that was never added")
	}
}

func TestBookNewerRecommendationWins(t *testing.T) {
	t.Parallel()

	b := NewBook()
	b.Update([]types.Recommendation{rec("ABTC", issued, 2.40)})

	// A stale file re-read must not clobber the fresher entry.
	b.Update([]types.Recommendation{rec("ABTC", issued.Add(-time.Hour), 9.99)})
	got, _ := b.Lookup("ABTC")
	if got.Target != 2.40 {
		t.Errorf("after stale update Target = %v, want 2.40", got.Target)
	}

	b.Update([]types.Recommendation{rec("ABTC", issued.Add(time.Hour), 2.60)})
	got, _ = b.Lookup("ABTC")
	if got.Target != 2.60 {
		t.Errorf("after fresh update Target = %v, want 2.60", got.Target)
	}
}

func TestBookStaleness(t *testing.T) {
	t.Parallel()

	b := NewBook()
	if !b.IsStale(time.Hour) {
		t.Error("empty book reported fresh")
	}

	b.Update([]types.Recommendation{rec("ABTC", issued, 2.40)})
	if b.IsStale(time.Hour) {
		t.Error("freshly updated book reported stale")
	}
	if b.LastUpdated().IsZero() {
		t.Error("LastUpdated() is zero after an update")
	}
}

func TestBookSymbols(t *testing.T) {
	t.Parallel()

	b := NewBook()
	b.Update([]types.Recommendation{
		rec("ABTC", issued, 2.40),
		rec("PLUG", issued, 1.80),
	})

	syms := b.Symbols()
	if len(syms) != 2 {
		t.Fatalf("Symbols() = %v, want 2 entries", syms)
	}
	found := map[string]bool{}
	for _, s := range syms {
		found[s] = true
	}
	if !found["ABTC"] || !found["PLUG"] {
		t.Errorf("Symbols() = %v, want ABTC and PLUG", syms)
	}
}
