package indicator

import "math"

// ZScore standardizes the latest price against the rolling 20-sample mean
// and standard deviation. Requires at least 20 samples; returns 0 otherwise
// or when the window has zero deviation.
func ZScore(prices []float64) float64 {
	n := len(prices)
	if n < lookback {
		return 0
	}
	window := prices[n-lookback:]
	m := mean(window)
	sd := stdev(window)
	if sd == 0 {
		return 0
	}
	return (prices[n-1] - m) / sd
}

// Volatility is the standard deviation of simple returns over the full
// window. Requires at least 20 samples; returns 0 otherwise.
func Volatility(prices []float64) float64 {
	if len(prices) < lookback {
		return 0
	}
	return stdev(Returns(prices))
}

// Correlation computes the Pearson correlation of simple returns between
// two equal-length price series. Mismatched lengths or a zero denominator
// yield 0.
func Correlation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 3 {
		return 0
	}
	ra := Returns(a)
	rb := Returns(b)

	ma := mean(ra)
	mb := mean(rb)
	var cov, va, vb float64
	for i := range ra {
		da := ra[i] - ma
		db := rb[i] - mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}
