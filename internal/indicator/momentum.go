package indicator

// Momentum returns the relative change between the mean of the last 10
// prices and the mean of the 10 prices before them. Requires at least 20
// samples; returns 0 otherwise.
func Momentum(prices []float64) float64 {
	n := len(prices)
	if n < lookback {
		return 0
	}
	recent := mean(prices[n-10:])
	prior := mean(prices[n-20 : n-10])
	if prior == 0 {
		return 0
	}
	return (recent - prior) / prior
}

// VolumeTrend scores rising volume in [0,1]: the fraction of the last 10
// intervals in which volume increased. Requires at least 11 samples;
// returns 0 otherwise.
func VolumeTrend(volumes []float64) float64 {
	n := len(volumes)
	if n < 11 {
		return 0
	}
	rising := 0
	for i := n - 10; i < n; i++ {
		if volumes[i] > volumes[i-1] {
			rising++
		}
	}
	return float64(rising) / 10
}

// Trend returns the sign (-1, 0, +1) of the linear-regression slope over
// the last 20 prices. Requires at least 20 samples; returns 0 otherwise.
func Trend(prices []float64) int {
	n := len(prices)
	if n < lookback {
		return 0
	}
	window := prices[n-lookback:]

	// Least-squares slope with x = 0..19.
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range window {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	m := float64(lookback)
	denom := m*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (m*sumXY - sumX*sumY) / denom
	switch {
	case slope > 0:
		return 1
	case slope < 0:
		return -1
	default:
		return 0
	}
}
