// Package indicator provides stateless statistical and technical functions
// over price/volume series. The market data cache owns the rolling windows;
// every function here is a pure computation over a slice.
//
// Minimum-sample fallbacks are part of the contract: strategies rely on the
// neutral defaults (0, or 50 for RSI) to suppress trading before enough
// history has accumulated.
package indicator

import "math"

const (
	// lookback is the standard window for momentum, z-score, trend and
	// breakout level calculations.
	lookback = 20

	// riskFreeRate is the fixed annual risk-free rate used by the
	// Sharpe/Sortino ratios.
	riskFreeRate = 0.02

	// periodsPerYear annualizes per-period return statistics.
	periodsPerYear = 252
)

// Returns computes simple returns between consecutive prices. A zero price
// yields a zero return for that step rather than a division fault.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev is the population standard deviation.
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func minMax(xs []float64) (min, max float64) {
	min, max = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}
