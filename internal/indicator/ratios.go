package indicator

import (
	"math"
	"sort"
)

// minVaRSamples is the minimum loss-series length for an empirical VaR.
const minVaRSamples = 30

// ValueAtRisk returns the empirical loss percentile at the given confidence
// level over a series of losses. The index is floor(n * (1-confidence))
// into the ascending-sorted series. Requires at least 30 samples; returns
// 0 otherwise.
func ValueAtRisk(losses []float64, confidence float64) float64 {
	n := len(losses)
	if n < minVaRSamples {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, losses)
	sort.Float64s(sorted)

	idx := int(math.Floor(float64(n) * (1 - confidence)))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Sharpe is the annualized Sharpe ratio of a per-period return series
// against the fixed risk-free rate. Returns 0 on fewer than 2 samples or
// zero return deviation.
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stdev(returns)
	if sd == 0 {
		return 0
	}
	excess := mean(returns) - riskFreeRate/periodsPerYear
	return excess / sd * math.Sqrt(periodsPerYear)
}

// Sortino is the annualized Sortino ratio: excess return over downside
// deviation only. Returns 0 on fewer than 2 samples or zero downside
// deviation.
func Sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	downside := 0
	for _, r := range returns {
		if r < 0 {
			sum += r * r
			downside++
		}
	}
	if downside == 0 {
		return 0
	}
	dd := math.Sqrt(sum / float64(len(returns)))
	if dd == 0 {
		return 0
	}
	excess := mean(returns) - riskFreeRate/periodsPerYear
	return excess / dd * math.Sqrt(periodsPerYear)
}

// Calmar is the annualized return divided by the maximum drawdown of the
// compounded return series. Returns 0 on fewer than 2 samples or when no
// drawdown occurred.
func Calmar(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	if maxDD == 0 {
		return 0
	}
	annualized := mean(returns) * periodsPerYear
	return annualized / maxDD
}
