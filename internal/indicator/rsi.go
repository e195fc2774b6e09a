package indicator

// DefaultRSIPeriod is the conventional 14-period RSI window.
const DefaultRSIPeriod = 14

// RSI computes the Relative Strength Index over the last `period` price
// changes. Requires at least period+1 samples; returns the neutral 50
// otherwise. When no losses occurred in the window the result is 100.
func RSI(prices []float64, period int) float64 {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	n := len(prices)
	if n < period+1 {
		return 50
	}

	var gains, losses float64
	for i := n - period; i < n; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
