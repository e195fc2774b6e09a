package risk

import (
	"fmt"

	"portfolio-riskv1/internal/indicator"
	"portfolio-riskv1/internal/model"
)

// CheckOrder is the pre-trade gate. It is invoked by the ledger inside its
// critical section with the portfolio state already computed, so it must
// not call back into the ledger; it reads only the market data cache, the
// immutable limits, and the engine's stopped flag.
//
// Five checks run independently; a trade is blocked only by a CRITICAL
// finding. Position size and leverage can escalate to CRITICAL;
// concentration, correlation, and liquidity are advisory.
func (e *Engine) CheckOrder(asset string, side model.Side, size, entryPrice float64,
	pf model.Portfolio, open []model.Position) []model.Finding {

	if e.stopped.Load() {
		return []model.Finding{{
			Type:     "halted",
			Severity: model.SeverityCritical,
			Message:  "risk engine is stopped, no new positions",
		}}
	}

	notional := size * entryPrice
	findings := make([]model.Finding, 0, 5)

	// Position size vs portfolio.
	if pf.TotalValue > 0 {
		frac := notional / pf.TotalValue
		if frac > e.params.MaxPositionSize {
			findings = append(findings, model.Finding{
				Type:     "position_size",
				Severity: model.SeverityCritical,
				Value:    frac,
				Limit:    e.params.MaxPositionSize,
				Message:  fmt.Sprintf("notional %.2f is %.1f%% of portfolio, limit %.1f%%", notional, frac*100, e.params.MaxPositionSize*100),
			})
		}
	}

	// Same-asset concentration, including the proposed notional.
	if pf.TotalValue > 0 {
		existing := 0.0
		for _, p := range open {
			if p.Asset == asset {
				existing += p.Size * e.markPrice(p)
			}
		}
		frac := (existing + notional) / pf.TotalValue
		if frac > e.params.MaxConcentration {
			findings = append(findings, model.Finding{
				Type:     "concentration",
				Severity: model.SeverityHigh,
				Value:    frac,
				Limit:    e.params.MaxConcentration,
				Message:  fmt.Sprintf("%s would hold %.1f%% of portfolio, limit %.1f%%", asset, frac*100, e.params.MaxConcentration*100),
			})
		}
	}

	// Cross-asset return correlation against every held asset.
	candidate := e.cache.Prices(asset)
	for _, p := range open {
		if p.Asset == asset {
			continue
		}
		corr := alignedCorrelation(candidate, e.cache.Prices(p.Asset))
		if corr > e.params.CorrelationLimit {
			findings = append(findings, model.Finding{
				Type:     "correlation",
				Severity: model.SeverityMedium,
				Value:    corr,
				Limit:    e.params.CorrelationLimit,
				Message:  fmt.Sprintf("%s/%s return correlation %.2f exceeds %.2f", asset, p.Asset, corr, e.params.CorrelationLimit),
			})
		}
	}

	// Liquidity: proposed notional vs recently traded value.
	if snap, err := e.cache.GetSnapshot(asset); err == nil {
		if traded := snap.Volume * snap.Price; traded > 0 {
			score := notional / traded
			if score > e.params.LiquidityThreshold {
				findings = append(findings, model.Finding{
					Type:     "liquidity",
					Severity: model.SeverityMedium,
					Value:    score,
					Limit:    e.params.LiquidityThreshold,
					Message:  fmt.Sprintf("notional is %.1f%% of traded value, limit %.1f%%", score*100, e.params.LiquidityThreshold*100),
				})
			}
		}
	}

	// Leverage after the proposed open. Free equity at or below zero is
	// treated as unbounded leverage.
	projected := pf.MarginUsed + notional
	freeEquity := pf.TotalValue - projected
	if pf.TotalValue > 0 {
		if freeEquity <= 0 {
			findings = append(findings, model.Finding{
				Type:     "leverage",
				Severity: model.SeverityCritical,
				Value:    0,
				Limit:    e.params.MaxLeverage,
				Message:  "no free equity remaining for this notional",
			})
		} else if lev := pf.TotalValue / freeEquity; lev > e.params.MaxLeverage {
			findings = append(findings, model.Finding{
				Type:     "leverage",
				Severity: model.SeverityCritical,
				Value:    lev,
				Limit:    e.params.MaxLeverage,
				Message:  fmt.Sprintf("leverage %.2f exceeds limit %.2f", lev, e.params.MaxLeverage),
			})
		}
	}

	return findings
}

// markPrice returns the current price for a position's asset, falling back
// to its entry price when market data is missing.
func (e *Engine) markPrice(p model.Position) float64 {
	if snap, err := e.cache.GetSnapshot(p.Asset); err == nil {
		return snap.Price
	}
	return p.EntryPrice
}

// alignedCorrelation truncates both series to their common length before
// computing return correlation, since histories fill at different rates.
func alignedCorrelation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	return indicator.Correlation(a[len(a)-n:], b[len(b)-n:])
}
