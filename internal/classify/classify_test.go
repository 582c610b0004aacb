package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"paper-trader/internal/config"
	"paper-trader/internal/indicators"
	"paper-trader/internal/marketdata"
	"paper-trader/pkg/types"
)

type stubSource struct {
	snap types.Snapshot
	err  error
}

func (s stubSource) Fetch(ctx context.Context, symbol string) (types.Snapshot, error) {
	return s.snap, s.err
}

type stubDetails struct {
	det marketdata.Details
	err error
}

func (s stubDetails) Details(ctx context.Context, symbol string) (marketdata.Details, error) {
	return s.det, s.err
}

func testRoutingConfig() config.RoutingConfig {
	return config.RoutingConfig{
		PennyThreshold:    5.0,
		HighVolThreshold:  0.30,
		LargeCapThreshold: 100e9,
		MinStopBuffer:     0.05,
		ETFSymbols:        []string{"SPY", "QQQ", "IWM", "DIA"},
		MomentumSectors:   []string{"semiconductors"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func flatSnap(symbol string, price float64, bars int) types.Snapshot {
	closes := make([]float64, bars)
	volumes := make([]float64, bars)
	for i := range closes {
		closes[i] = price
		volumes[i] = 1e6
	}
	return types.Snapshot{
		Symbol:        symbol,
		Closes:        closes,
		Volumes:       volumes,
		CurrentPrice:  price,
		CurrentVolume: 1e6,
		Source:        marketdata.TierPrimary,
	}
}

func TestClassifyTiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		symbol    string
		price     float64
		marketCap float64
		want      types.Classification
	}{
		{"etf overrides everything", "SPY", 545, 500e9, types.ClassETF},
		{"penny stock by price", "ABTC", 1.91, 50e6, types.ClassPennyStock},
		{"large cap", "NVDA", 900, 3.2e12, types.ClassLargeCap},
		{"mid cap", "MU", 95, 50e9, types.ClassMidCap},
		{"small cap", "PLUG", 12, 2e9, types.ClassSmallCap},
		{"unknown without market cap", "XYZ", 50, 0, types.ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := New(testRoutingConfig(),
				stubSource{snap: flatSnap(tt.symbol, tt.price, 30)},
				stubDetails{det: marketdata.Details{MarketCap: tt.marketCap, Sector: "tech"}},
				testLogger())

			profile, err := c.Classify(context.Background(), tt.symbol)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if profile.Classification != tt.want {
				t.Errorf("Classification = %q, want %q", profile.Classification, tt.want)
			}
		})
	}
}

func TestClassifyVolatilityMatchesIndicator(t *testing.T) {
	t.Parallel()

	closes := []float64{100, 102, 99, 103, 101, 104, 100, 105, 102, 106}
	volumes := make([]float64, len(closes))
	for i := range volumes {
		volumes[i] = 1e6
	}
	snap := types.Snapshot{Symbol: "XYZ", Closes: closes, Volumes: volumes, CurrentPrice: 106}

	c := New(testRoutingConfig(), stubSource{snap: snap}, nil, testLogger())
	profile, err := c.Classify(context.Background(), "XYZ")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	want := indicators.AnnualizedVolatility(closes)
	if profile.VolatilityAnnualized != want {
		t.Errorf("VolatilityAnnualized = %v, want %v", profile.VolatilityAnnualized, want)
	}
	if want <= 0 {
		t.Fatal("test series should produce positive volatility")
	}
}

func TestClassifyShortHistoryZeroVolatility(t *testing.T) {
	t.Parallel()

	// Four returns sit below the floor, so volatility must be zero.
	snap := types.Snapshot{
		Symbol:       "XYZ",
		Closes:       []float64{100, 101, 100, 102, 101},
		Volumes:      []float64{1, 1, 1, 1, 1},
		CurrentPrice: 101,
	}
	c := New(testRoutingConfig(), stubSource{snap: snap}, nil, testLogger())

	profile, err := c.Classify(context.Background(), "XYZ")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if profile.VolatilityAnnualized != 0 {
		t.Errorf("VolatilityAnnualized = %v, want 0", profile.VolatilityAnnualized)
	}
}

func TestClassifyDetailsFailureDegrades(t *testing.T) {
	t.Parallel()

	c := New(testRoutingConfig(),
		stubSource{snap: flatSnap("MU", 95, 30)},
		stubDetails{err: errors.New("metadata api down")},
		testLogger())

	profile, err := c.Classify(context.Background(), "MU")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if profile.Sector != "UNKNOWN" {
		t.Errorf("Sector = %q, want UNKNOWN", profile.Sector)
	}
	if profile.MarketCap != 0 {
		t.Errorf("MarketCap = %v, want 0", profile.MarketCap)
	}
	if profile.Classification != types.ClassUnknown {
		t.Errorf("Classification = %q, want unknown", profile.Classification)
	}
}

func TestClassifyFetchErrorPropagates(t *testing.T) {
	t.Parallel()

	c := New(testRoutingConfig(), stubSource{err: errors.New("all tiers down")}, nil, testLogger())
	if _, err := c.Classify(context.Background(), "SPY"); err == nil {
		t.Error("Classify swallowed a market-data failure")
	}
}

func TestClassifyNormalizesSymbol(t *testing.T) {
	t.Parallel()

	c := New(testRoutingConfig(), stubSource{snap: flatSnap("SPY", 545, 30)}, nil, testLogger())
	profile, err := c.Classify(context.Background(), " spy ")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if profile.Symbol != "SPY" {
		t.Errorf("Symbol = %q, want SPY", profile.Symbol)
	}
	if !profile.IsETF {
		t.Error("lowercased ETF symbol not matched against the ETF set")
	}

	if _, err := c.Classify(context.Background(), ""); err == nil {
		t.Error("empty symbol accepted")
	}
}

func TestClassifyMissingQuoteFallsBackToLastClose(t *testing.T) {
	t.Parallel()

	snap := flatSnap("MU", 95, 30)
	snap.CurrentPrice = 0

	c := New(testRoutingConfig(), stubSource{snap: snap}, nil, testLogger())
	profile, err := c.Classify(context.Background(), "MU")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if profile.Price != 95 {
		t.Errorf("Price = %v, want last close 95", profile.Price)
	}
}
