// Package indicators implements the technical indicators the strategy
// engines run on daily bars. All functions are pure, operate on plain
// float64 slices ordered oldest first, and return zero values when the
// input is too short; callers gate on required history before acting.
package indicators

import "math"

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SMA returns the simple moving average over the trailing period values,
// including the most recent one. Returns 0 when fewer than period values
// are available.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	return Mean(values[len(values)-period:])
}

// StdDevPopulation returns the population standard deviation of values.
func StdDevPopulation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// StdDevSample returns the sample standard deviation (n-1 denominator) of
// values, or 0 when fewer than two values are available.
func StdDevSample(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// RSI returns the Wilder relative strength index over the given period.
// The first period deltas seed the average gain/loss with a simple mean;
// the remaining deltas apply Wilder smoothing. Returns the neutral 50 when
// there are not enough closes to compute a single seeded value.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var gain, loss float64
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Bollinger returns the middle, upper, and lower bands over the trailing
// period closes. The middle band is the SMA; the bands sit mult population
// standard deviations away from it.
func Bollinger(closes []float64, period int, mult float64) (middle, upper, lower float64) {
	if period <= 0 || len(closes) < period {
		return 0, 0, 0
	}
	window := closes[len(closes)-period:]
	middle = Mean(window)
	sd := StdDevPopulation(window)
	upper = middle + mult*sd
	lower = middle - mult*sd
	return middle, upper, lower
}

// Resistance returns the highest close within the trailing window,
// excluding the most recent bar, so a fresh breakout above prior highs is
// visible. Returns 0 when only the current bar exists.
func Resistance(closes []float64, window int) float64 {
	prior := priorWindow(closes, window)
	if len(prior) == 0 {
		return 0
	}
	high := prior[0]
	for _, c := range prior[1:] {
		if c > high {
			high = c
		}
	}
	return high
}

// AvgVolumePrior returns the mean volume within the trailing window,
// excluding the most recent bar. The current bar's volume is compared
// against this baseline for spike detection.
func AvgVolumePrior(volumes []float64, window int) float64 {
	return Mean(priorWindow(volumes, window))
}

// priorWindow slices the trailing window values excluding the last one.
func priorWindow(values []float64, window int) []float64 {
	if window <= 0 || len(values) < 2 {
		return nil
	}
	start := len(values) - window
	if start < 0 {
		start = 0
	}
	return values[start : len(values)-1]
}

// AnnualizedVolatility returns the sample standard deviation of daily log
// returns over the trailing 30 closes, scaled by sqrt(252). Fewer than 5
// usable returns yields 0.
func AnnualizedVolatility(closes []float64) float64 {
	if len(closes) > 30 {
		closes = closes[len(closes)-30:]
	}
	returns := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 5 {
		return 0
	}
	return StdDevSample(returns) * math.Sqrt(252)
}
