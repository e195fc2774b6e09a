package indicator

import (
	"math"
	"testing"
)

func TestValueAtRisk_BelowMinimum(t *testing.T) {
	losses := make([]float64, 29)
	for i := range losses {
		losses[i] = float64(i)
	}
	if got := ValueAtRisk(losses, 0.95); got != 0 {
		t.Errorf("expected 0 below 30 samples, got %.4f", got)
	}
}

func TestValueAtRisk_PercentileIndex(t *testing.T) {
	// 31 losses, confidence 0.95: index = floor(31*0.05) = 1, i.e. the
	// second-smallest loss in ascending order.
	losses := make([]float64, 31)
	for i := range losses {
		losses[i] = float64(31 - i) // descending 31..1
	}
	if got := ValueAtRisk(losses, 0.95); got != 2 {
		t.Errorf("expected second-smallest loss 2, got %.4f", got)
	}
}

func TestValueAtRisk_DoesNotMutateInput(t *testing.T) {
	losses := make([]float64, 30)
	for i := range losses {
		losses[i] = float64(30 - i)
	}
	ValueAtRisk(losses, 0.95)
	if losses[0] != 30 {
		t.Error("input slice was sorted in place")
	}
}

func TestSharpe(t *testing.T) {
	if got := Sharpe([]float64{0.01}); got != 0 {
		t.Errorf("expected 0 on a single sample, got %.4f", got)
	}
	if got := Sharpe([]float64{0.01, 0.01, 0.01}); got != 0 {
		t.Errorf("expected 0 on zero deviation, got %.4f", got)
	}

	returns := []float64{0.01, -0.005, 0.02, 0.003, -0.001, 0.008}
	got := Sharpe(returns)
	if got <= 0 {
		t.Errorf("expected positive sharpe for net-positive returns, got %.4f", got)
	}
}

func TestSortino(t *testing.T) {
	if got := Sortino([]float64{0.01}); got != 0 {
		t.Errorf("expected 0 on a single sample, got %.4f", got)
	}
	// No negative returns: downside deviation undefined -> 0.
	if got := Sortino([]float64{0.01, 0.02, 0.01}); got != 0 {
		t.Errorf("expected 0 without downside returns, got %.4f", got)
	}

	returns := []float64{0.02, -0.01, 0.015, -0.002, 0.01}
	if got := Sortino(returns); got <= 0 {
		t.Errorf("expected positive sortino, got %.4f", got)
	}
}

func TestCalmar(t *testing.T) {
	if got := Calmar([]float64{0.01}); got != 0 {
		t.Errorf("expected 0 on a single sample, got %.4f", got)
	}
	// Monotonically rising equity has zero drawdown -> 0.
	if got := Calmar([]float64{0.01, 0.02, 0.015}); got != 0 {
		t.Errorf("expected 0 with no drawdown, got %.4f", got)
	}

	returns := []float64{0.05, -0.03, 0.04, -0.01, 0.02}
	got := Calmar(returns)
	if got <= 0 || math.IsInf(got, 0) {
		t.Errorf("expected finite positive calmar, got %.4f", got)
	}
}
