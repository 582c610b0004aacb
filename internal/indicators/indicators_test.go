package indicators

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestMeanAndSMA(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4, 5}
	if got := Mean(values); got != 3 {
		t.Errorf("Mean = %v, want 3", got)
	}
	if got := SMA(values, 2); got != 4.5 {
		t.Errorf("SMA(2) = %v, want 4.5", got)
	}
	if got := SMA(values, 6); got != 0 {
		t.Errorf("SMA with short input = %v, want 0", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
}

func TestStdDevPopulation(t *testing.T) {
	t.Parallel()

	// Classic example: mean 5, population stdev exactly 2.
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := StdDevPopulation(values); !almostEqual(got, 2, 1e-12) {
		t.Errorf("StdDevPopulation = %v, want 2", got)
	}
}

func TestStdDevSample(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4}
	// Variance with n-1 denominator: (2.25+0.25+0.25+2.25)/3.
	want := math.Sqrt(5.0 / 3.0)
	if got := StdDevSample(values); !almostEqual(got, want, 1e-12) {
		t.Errorf("StdDevSample = %v, want %v", got, want)
	}
	if got := StdDevSample([]float64{7}); got != 0 {
		t.Errorf("StdDevSample with one value = %v, want 0", got)
	}
}

func TestRSIExtremes(t *testing.T) {
	t.Parallel()

	up := make([]float64, 16)
	down := make([]float64, 16)
	flat := make([]float64, 16)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
		flat[i] = 100
	}

	if got := RSI(up, 14); got != 100 {
		t.Errorf("RSI all gains = %v, want 100", got)
	}
	if got := RSI(down, 14); got != 0 {
		t.Errorf("RSI all losses = %v, want 0", got)
	}
	if got := RSI(flat, 14); got != 50 {
		t.Errorf("RSI flat = %v, want 50", got)
	}
	if got := RSI(up[:10], 14); got != 50 {
		t.Errorf("RSI with insufficient closes = %v, want neutral 50", got)
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	t.Parallel()

	// Period 2 keeps the arithmetic checkable by hand. Seed over the first
	// two deltas (+1, -0.5): avgGain 0.5, avgLoss 0.25. Third delta +1
	// smooths to avgGain 0.75, avgLoss 0.125, RS 6, RSI 100-100/7.
	closes := []float64{10, 11, 10.5, 11.5}
	want := 100 - 100.0/7.0
	if got := RSI(closes, 2); !almostEqual(got, want, 1e-9) {
		t.Errorf("RSI = %v, want %v", got, want)
	}
}

func TestBollinger(t *testing.T) {
	t.Parallel()

	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	middle, upper, lower := Bollinger(closes, 8, 2)
	if !almostEqual(middle, 5, 1e-12) {
		t.Errorf("middle = %v, want 5", middle)
	}
	if !almostEqual(upper, 9, 1e-12) {
		t.Errorf("upper = %v, want 9", upper)
	}
	if !almostEqual(lower, 1, 1e-12) {
		t.Errorf("lower = %v, want 1", lower)
	}

	if m, u, l := Bollinger(closes[:3], 8, 2); m != 0 || u != 0 || l != 0 {
		t.Errorf("Bollinger with short input = %v/%v/%v, want zeros", m, u, l)
	}
}

func TestResistanceExcludesCurrentBar(t *testing.T) {
	t.Parallel()

	// The last close is the session high; resistance must come from the
	// bars before it or a breakout could never exceed it.
	closes := []float64{90, 92, 95, 93, 94, 95.5}
	if got := Resistance(closes, 5); got != 95 {
		t.Errorf("Resistance = %v, want 95", got)
	}

	// Window larger than history: use whatever precedes the current bar.
	if got := Resistance(closes, 50); got != 95 {
		t.Errorf("Resistance wide window = %v, want 95", got)
	}

	if got := Resistance([]float64{100}, 5); got != 0 {
		t.Errorf("Resistance single bar = %v, want 0", got)
	}
}

func TestAvgVolumePrior(t *testing.T) {
	t.Parallel()

	volumes := []float64{100, 200, 300, 900}
	if got := AvgVolumePrior(volumes, 3); got != 200 {
		t.Errorf("AvgVolumePrior = %v, want 200", got)
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	t.Parallel()

	// Five closes give only four returns: below the floor.
	short := []float64{100, 101, 102, 103, 104}
	if got := AnnualizedVolatility(short); got != 0 {
		t.Errorf("volatility with 4 returns = %v, want 0", got)
	}

	// Six closes give five returns: at the floor, must be computed.
	enough := []float64{100, 102, 99, 103, 101, 104}
	if got := AnnualizedVolatility(enough); got <= 0 {
		t.Errorf("volatility with 5 returns = %v, want > 0", got)
	}

	// Constant prices have zero volatility regardless of history length.
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 50
	}
	if got := AnnualizedVolatility(flat); got != 0 {
		t.Errorf("volatility of flat series = %v, want 0", got)
	}
}
