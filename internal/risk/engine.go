// Package risk implements the risk assessment engine: a pre-trade gate
// for the ledger, a continuous scorer that derives portfolio risk metrics
// on an interval and after every trade, and the irreversible emergency
// stop.
package risk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"portfolio-riskv1/internal/indicator"
	"portfolio-riskv1/internal/ledger"
	"portfolio-riskv1/internal/marketdata/cache"
	"portfolio-riskv1/internal/model"
	"portfolio-riskv1/internal/notification"
)

const (
	// varConfidence is the confidence level for portfolio VaR.
	varConfidence = 0.95

	// recommendThreshold trips an advisory once a metric reaches this
	// fraction of its configured limit.
	recommendThreshold = 0.8

	// valuationWindow bounds the valuation return history behind VaR.
	valuationWindow = 1000
)

// Engine is the risk assessment engine. It reads the ledger and market
// data cache, never the other way around: the ledger sees the engine only
// through its PreTradeGate and Observer interfaces.
type Engine struct {
	params model.RiskParams
	cache  *cache.Cache
	ledger *ledger.Ledger
	alerts notification.Notifier

	interval time.Duration

	mu         sync.Mutex
	state      model.RiskState
	dailyPnL   float64
	day        string // yyyy-mm-dd of the daily P&L window
	valuations []float64

	stopped  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc

	// OnAssessment is an optional hook invoked with each new RiskState
	// outside the engine lock (metrics, live-state publication).
	OnAssessment func(state model.RiskState)
}

// Config holds engine construction parameters.
type Config struct {
	Params   model.RiskParams
	Interval time.Duration // assessment interval, default 30s
}

// New creates a risk engine bound to the ledger and cache.
func New(c *cache.Cache, l *ledger.Ledger, alerts notification.Notifier, cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Engine{
		params:   cfg.Params,
		cache:    c,
		ledger:   l,
		alerts:   alerts,
		interval: cfg.Interval,
		day:      time.Now().UTC().Format("2006-01-02"),
	}
}

// Params returns the configured limits.
func (e *Engine) Params() model.RiskParams {
	return e.params
}

// Stopped reports whether the engine has reached its terminal state.
func (e *Engine) Stopped() bool {
	return e.stopped.Load()
}

// ── Ledger observer ──

// PositionOpened triggers a reassessment after each accepted open.
func (e *Engine) PositionOpened(p model.Position) {
	e.PerformRiskAssessment()
}

// PositionClosed records realized P&L into the daily window and triggers
// a reassessment.
func (e *Engine) PositionClosed(p model.Position) {
	e.mu.Lock()
	e.rolloverLocked()
	e.dailyPnL += p.PnL
	e.mu.Unlock()
	e.PerformRiskAssessment()
}

// rolloverLocked resets the daily P&L window on date change.
func (e *Engine) rolloverLocked() {
	today := time.Now().UTC().Format("2006-01-02")
	if today != e.day {
		log.Printf("[risk] daily P&L rollover %s -> %s (was %.4f)", e.day, today, e.dailyPnL)
		e.day = today
		e.dailyPnL = 0
	}
}

// ── Continuous assessment ──

// PerformRiskAssessment recomputes the full RiskState and dispatches any
// advisory or breach alerts. Returns the new state. A stopped engine
// returns the last computed state unchanged.
func (e *Engine) PerformRiskAssessment() model.RiskState {
	if e.stopped.Load() {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.state
	}

	// Gather ledger and market state before taking the engine lock.
	pf, open := e.ledger.PortfolioState()
	drawdown := e.ledger.Drawdown()

	e.mu.Lock()
	e.rolloverLocked()
	e.valuations = append(e.valuations, pf.TotalValue)
	if len(e.valuations) > valuationWindow {
		e.valuations = e.valuations[len(e.valuations)-valuationWindow:]
	}
	portfolioVaR := e.portfolioVaRLocked()
	dailyPnL := e.dailyPnL

	state := model.RiskState{
		CurrentDrawdown:   drawdown,
		DailyPnL:          dailyPnL,
		PortfolioVaR:      portfolioVaR,
		ConcentrationRisk: e.concentrationMap(pf, open),
		CorrelationRisk:   e.correlationMap(open),
		LiquidityRisk:     e.liquidityMap(open),
		AssessedAt:        time.Now().UTC(),
	}

	dailyLossFrac := 0.0
	if pf.TotalValue > 0 && dailyPnL < 0 {
		dailyLossFrac = -dailyPnL / pf.TotalValue
	}
	state.RiskScore = Score(drawdown, dailyLossFrac, portfolioVaR, maxValue(state.ConcentrationRisk))
	state.Level = LevelFor(state.RiskScore)
	state.Breaches = e.breaches(state, dailyLossFrac)

	e.state = state
	e.mu.Unlock()

	// Side effects outside the lock.
	e.dispatchAdvisories(state, dailyLossFrac)
	if e.OnAssessment != nil {
		e.OnAssessment(state)
	}
	return state
}

// portfolioVaRLocked computes empirical VaR over the valuation loss
// series: each negative valuation return contributes a positive loss.
func (e *Engine) portfolioVaRLocked() float64 {
	returns := indicator.Returns(e.valuations)
	losses := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			losses = append(losses, -r)
		}
	}
	return indicator.ValueAtRisk(losses, varConfidence)
}

func (e *Engine) concentrationMap(pf model.Portfolio, open []model.Position) map[string]float64 {
	out := make(map[string]float64, len(open))
	if pf.TotalValue <= 0 {
		return out
	}
	for _, p := range open {
		out[p.Asset] = p.Size * e.markPrice(p) / pf.TotalValue
	}
	return out
}

func (e *Engine) correlationMap(open []model.Position) map[string]float64 {
	out := make(map[string]float64)
	for i := 0; i < len(open); i++ {
		for j := i + 1; j < len(open); j++ {
			a, b := open[i].Asset, open[j].Asset
			out[model.PairKey(a, b)] = alignedCorrelation(e.cache.Prices(a), e.cache.Prices(b))
		}
	}
	return out
}

func (e *Engine) liquidityMap(open []model.Position) map[string]float64 {
	out := make(map[string]float64, len(open))
	for _, p := range open {
		snap, err := e.cache.GetSnapshot(p.Asset)
		if err != nil {
			continue
		}
		if traded := snap.Volume * snap.Price; traded > 0 {
			out[p.Asset] = p.Notional() / traded
		}
	}
	return out
}

// breaches lists every metric currently past its configured limit.
func (e *Engine) breaches(state model.RiskState, dailyLossFrac float64) []model.Finding {
	var out []model.Finding
	if state.CurrentDrawdown > e.params.MaxDrawdown {
		out = append(out, model.Finding{
			Type: "drawdown", Severity: model.SeverityCritical,
			Value: state.CurrentDrawdown, Limit: e.params.MaxDrawdown,
			Message: fmt.Sprintf("drawdown %.2f%% exceeds %.2f%%", state.CurrentDrawdown*100, e.params.MaxDrawdown*100),
		})
	}
	if dailyLossFrac > e.params.MaxDailyLoss {
		out = append(out, model.Finding{
			Type: "daily_loss", Severity: model.SeverityCritical,
			Value: dailyLossFrac, Limit: e.params.MaxDailyLoss,
			Message: fmt.Sprintf("daily loss %.2f%% exceeds %.2f%%", dailyLossFrac*100, e.params.MaxDailyLoss*100),
		})
	}
	if state.PortfolioVaR > e.params.VaRLimit {
		out = append(out, model.Finding{
			Type: "var", Severity: model.SeverityHigh,
			Value: state.PortfolioVaR, Limit: e.params.VaRLimit,
			Message: fmt.Sprintf("portfolio VaR %.2f%% exceeds %.2f%%", state.PortfolioVaR*100, e.params.VaRLimit*100),
		})
	}
	for asset, frac := range state.ConcentrationRisk {
		if frac > e.params.MaxConcentration {
			out = append(out, model.Finding{
				Type: "concentration", Severity: model.SeverityHigh,
				Value: frac, Limit: e.params.MaxConcentration,
				Message: fmt.Sprintf("%s holds %.1f%% of portfolio", asset, frac*100),
			})
		}
	}
	for pair, corr := range state.CorrelationRisk {
		if corr > e.params.CorrelationLimit {
			out = append(out, model.Finding{
				Type: "correlation", Severity: model.SeverityMedium,
				Value: corr, Limit: e.params.CorrelationLimit,
				Message: fmt.Sprintf("%s correlation %.2f exceeds %.2f", pair, corr, e.params.CorrelationLimit),
			})
		}
	}
	for asset, score := range state.LiquidityRisk {
		if score > e.params.LiquidityThreshold {
			out = append(out, model.Finding{
				Type: "liquidity", Severity: model.SeverityMedium,
				Value: score, Limit: e.params.LiquidityThreshold,
				Message: fmt.Sprintf("%s notional strains traded volume (%.1f%%)", asset, score*100),
			})
		}
	}
	return out
}

// dispatchAdvisories sends breach alerts and approach-warnings once a
// metric reaches 80% of its limit.
func (e *Engine) dispatchAdvisories(state model.RiskState, dailyLossFrac float64) {
	if e.alerts == nil {
		return
	}
	ctx := context.Background()
	for _, b := range state.Breaches {
		level := notification.LevelWarning
		if b.Severity == model.SeverityCritical {
			level = notification.LevelCritical
		}
		e.send(ctx, notification.Alert{
			Level:   level,
			Title:   "Risk limit breach: " + b.Type,
			Message: b.Message,
			Context: map[string]string{"value": fmt.Sprintf("%.4f", b.Value), "limit": fmt.Sprintf("%.4f", b.Limit)},
		})
	}

	type approach struct {
		name         string
		value, limit float64
	}
	checks := []approach{
		{"drawdown", state.CurrentDrawdown, e.params.MaxDrawdown},
		{"daily_loss", dailyLossFrac, e.params.MaxDailyLoss},
		{"var", state.PortfolioVaR, e.params.VaRLimit},
		{"concentration", maxValue(state.ConcentrationRisk), e.params.MaxConcentration},
	}
	for _, c := range checks {
		if c.limit <= 0 || c.value > c.limit {
			continue // breaches already alerted above
		}
		if c.value >= c.limit*recommendThreshold {
			e.send(ctx, notification.Alert{
				Level:   notification.LevelWarning,
				Title:   "Approaching risk limit: " + c.name,
				Message: fmt.Sprintf("%s at %.1f%% of its limit, consider reducing exposure", c.name, c.value/c.limit*100),
				Context: map[string]string{"value": fmt.Sprintf("%.4f", c.value), "limit": fmt.Sprintf("%.4f", c.limit)},
			})
		}
	}
}

func (e *Engine) send(ctx context.Context, a notification.Alert) {
	if err := e.alerts.Send(ctx, a); err != nil {
		log.Printf("[risk] alert delivery failed: %v", err)
	}
}

// CheckRiskLimits returns the current limit breaches, recomputing the
// assessment first.
func (e *Engine) CheckRiskLimits() []model.Finding {
	return e.PerformRiskAssessment().Breaches
}

// State returns the last computed risk state.
func (e *Engine) State() model.RiskState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ── Monitoring loop & emergency stop ──

// Run executes the periodic assessment until ctx is cancelled or the
// engine is stopped. Any in-flight assessment completes before Run
// returns.
func (e *Engine) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	log.Printf("[risk] assessment every %v", e.interval)

	for {
		select {
		case <-runCtx.Done():
			log.Printf("[risk] monitoring loop stopped")
			return
		case <-ticker.C:
			e.PerformRiskAssessment()
		}
	}
}

// EmergencyStop force-closes every open position (best-effort), halts the
// monitoring loop, and moves the engine to its terminal Stopped state.
// There is no way back to Active; subsequent calls are no-ops.
func (e *Engine) EmergencyStop(reason string) {
	e.stopOnce.Do(func() {
		log.Printf("[risk] EMERGENCY STOP: %s", reason)
		e.stopped.Store(true)

		closed := e.ledger.ForceCloseAll("emergency stop: " + reason)

		e.mu.Lock()
		cancel := e.cancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		if e.alerts != nil {
			e.send(context.Background(), notification.Alert{
				Level:   notification.LevelCritical,
				Title:   "Emergency stop",
				Message: fmt.Sprintf("forced liquidation of %d positions: %s", len(closed), reason),
				Context: map[string]string{"reason": reason, "closed": fmt.Sprintf("%d", len(closed))},
			})
		}
	})
}

// ── Scoring ──

// Score aggregates the weighted risk score in [0, 100]:
// drawdown up to 40, daily loss up to 30, VaR up to 20, concentration up
// to 10.
func Score(drawdown, dailyLossFrac, varFrac, maxConcentration float64) float64 {
	score := clamp(drawdown*200, 40) +
		clamp(dailyLossFrac*300, 30) +
		clamp(varFrac*200, 20) +
		clamp(maxConcentration*40, 10)
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// LevelFor maps a risk score to its bucket.
func LevelFor(score float64) model.RiskLevel {
	switch {
	case score < 20:
		return model.RiskVeryLow
	case score < 40:
		return model.RiskLow
	case score < 60:
		return model.RiskMedium
	case score < 80:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

func maxValue(m map[string]float64) float64 {
	var max float64
	for _, v := range m {
		if v > max {
			max = v
		}
	}
	return max
}
