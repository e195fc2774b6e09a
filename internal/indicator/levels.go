package indicator

// BreakoutLevels derives breakout trigger prices from the last-20 range:
// upper = 20-sample high +2%, lower = 20-sample low -2%. Requires at least
// 20 samples; returns (0, 0) otherwise.
func BreakoutLevels(prices []float64) (upper, lower float64) {
	n := len(prices)
	if n < lookback {
		return 0, 0
	}
	min, max := minMax(prices[n-lookback:])
	return max * 1.02, min * 0.98
}

// Support is the 20-sample low with a 1% buffer below. Requires at least
// 20 samples; returns 0 otherwise.
func Support(prices []float64) float64 {
	n := len(prices)
	if n < lookback {
		return 0
	}
	min, _ := minMax(prices[n-lookback:])
	return min * 0.99
}

// Resistance is the 20-sample high with a 1% buffer above. Requires at
// least 20 samples; returns 0 otherwise.
func Resistance(prices []float64) float64 {
	n := len(prices)
	if n < lookback {
		return 0
	}
	_, max := minMax(prices[n-lookback:])
	return max * 1.01
}
