// Package ledger owns positions and portfolio valuation. It executes
// opens and closes under fee and slippage accounting, tracks margin and
// the running valuation peak, and emits position lifecycle notifications.
//
// All state mutations are linearized behind one mutex; observer and alert
// dispatch happens after the lock is released, using results computed
// inside the critical section.
package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"portfolio-riskv1/internal/indicator"
	"portfolio-riskv1/internal/marketdata/cache"
	"portfolio-riskv1/internal/model"
	"portfolio-riskv1/internal/notification"
)

const (
	// feeRate is charged on notional at entry and on exit value at close.
	feeRate = 0.001

	// stopLossPct / takeProfitPct fix the exit levels at open time.
	// There is no trailing adjustment afterwards.
	stopLossPct   = 0.02
	takeProfitPct = 0.04
)

var (
	// ErrNoPosition is returned when closing an asset with no open position.
	ErrNoPosition = fmt.Errorf("no open position for asset")

	// ErrPositionExists rejects a second open on the same asset. Close the
	// existing position first.
	ErrPositionExists = fmt.Errorf("open position already exists for asset")

	// ErrInsufficientFunds rejects an open whose notional exceeds cash.
	ErrInsufficientFunds = fmt.Errorf("insufficient funds for notional")

	// ErrRiskBlocked rejects an open on a CRITICAL pre-trade finding.
	ErrRiskBlocked = fmt.Errorf("open blocked by risk gate")
)

// PreTradeGate evaluates a proposed open against risk limits. It receives
// the portfolio state computed inside the ledger's critical section and
// must not call back into the ledger.
type PreTradeGate interface {
	CheckOrder(asset string, side model.Side, size, entryPrice float64,
		pf model.Portfolio, open []model.Position) []model.Finding
}

// Observer receives position lifecycle events. Observers are invoked
// after the ledger lock is released.
type Observer interface {
	PositionOpened(p model.Position)
	PositionClosed(p model.Position)
}

// Config holds ledger construction parameters.
type Config struct {
	InitialCash   float64
	MaxDrawdown   float64       // sweep alerts CRITICAL past this fraction
	SweepInterval time.Duration // maintenance tick, default 60s
}

// Ledger is the position and portfolio state machine.
type Ledger struct {
	mu     sync.Mutex
	cache  *cache.Cache
	gate   PreTradeGate          // optional until wired
	alerts notification.Notifier // optional

	positions map[string]*model.Position
	closed    []model.Position

	cash       float64
	marginUsed float64
	peakValue  float64

	stats        model.PerformanceStats
	tradeReturns []float64 // per-trade pnl/notional, feeds the Sharpe ratio
	seq          int64

	observers []Observer

	maxDrawdown   float64
	sweepInterval time.Duration
}

// New creates a ledger funded with cfg.InitialCash.
func New(c *cache.Cache, cfg Config) *Ledger {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 60 * time.Second
	}
	return &Ledger{
		cache:         c,
		positions:     make(map[string]*model.Position),
		cash:          cfg.InitialCash,
		peakValue:     cfg.InitialCash,
		maxDrawdown:   cfg.MaxDrawdown,
		sweepInterval: cfg.SweepInterval,
	}
}

// SetGate wires the risk engine's pre-trade gate.
func (l *Ledger) SetGate(gate PreTradeGate) {
	l.gate = gate
}

// SetAlerts wires the alert sink.
func (l *Ledger) SetAlerts(n notification.Notifier) {
	l.alerts = n
}

// Subscribe registers a lifecycle observer. Not safe to call once trading
// has started.
func (l *Ledger) Subscribe(o Observer) {
	l.observers = append(l.observers, o)
}

// events collects side effects computed under the lock for dispatch after.
type events struct {
	opened *model.Position
	closed []model.Position
	alerts []notification.Alert
}

func (l *Ledger) dispatch(ev events) {
	if ev.opened != nil {
		for _, o := range l.observers {
			o.PositionOpened(*ev.opened)
		}
	}
	for _, p := range ev.closed {
		for _, o := range l.observers {
			o.PositionClosed(p)
		}
	}
	if l.alerts != nil {
		for _, a := range ev.alerts {
			if err := l.alerts.Send(context.Background(), a); err != nil {
				log.Printf("[ledger] alert delivery failed: %v", err)
			}
		}
	}
}

// OpenPosition opens a position for the asset. Entry crosses the spread:
// longs fill at ask, shorts at bid. A 0.1% fee on notional is deducted
// immediately. Returns the accepted position, or an error when market data
// is missing, a position already exists, funds are insufficient, or the
// risk gate reports a CRITICAL finding.
func (l *Ledger) OpenPosition(asset string, side model.Side, size float64) (*model.Position, error) {
	if size <= 0 {
		return nil, fmt.Errorf("position size must be positive, got %v", size)
	}
	snap, err := l.cache.GetSnapshot(asset)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", asset, err)
	}

	entry := snap.Ask
	if side == model.SideShort {
		entry = snap.Bid
	}
	notional := size * entry
	fee := notional * feeRate

	l.mu.Lock()
	ev, pos, err := l.openLocked(asset, side, size, entry, notional, fee)
	l.mu.Unlock()

	l.dispatch(ev)
	return pos, err
}

func (l *Ledger) openLocked(asset string, side model.Side, size, entry, notional, fee float64) (events, *model.Position, error) {
	var ev events

	if _, exists := l.positions[asset]; exists {
		return ev, nil, fmt.Errorf("open %s: %w", asset, ErrPositionExists)
	}

	if notional > l.cash {
		ev.alerts = append(ev.alerts, notification.Alert{
			Level:   notification.LevelWarning,
			Title:   "Open rejected: insufficient funds",
			Message: fmt.Sprintf("%s %s notional %.2f exceeds cash %.2f", side, asset, notional, l.cash),
			Context: map[string]string{"asset": asset, "notional": fmt.Sprintf("%.2f", notional)},
		})
		return ev, nil, fmt.Errorf("open %s: %w", asset, ErrInsufficientFunds)
	}

	if l.gate != nil {
		pf := l.portfolioLocked()
		findings := l.gate.CheckOrder(asset, side, size, entry, pf, l.openPositionsLocked())
		for _, f := range findings {
			if f.Severity == model.SeverityCritical {
				ev.alerts = append(ev.alerts, notification.Alert{
					Level:   notification.LevelCritical,
					Title:   "Open rejected: " + f.Type,
					Message: f.Message,
					Context: map[string]string{
						"asset": asset,
						"value": fmt.Sprintf("%.4f", f.Value),
						"limit": fmt.Sprintf("%.4f", f.Limit),
					},
				})
				return ev, nil, fmt.Errorf("open %s: %s: %w", asset, f.Type, ErrRiskBlocked)
			}
		}
	}

	l.seq++
	stop := entry * (1 - stopLossPct)
	take := entry * (1 + takeProfitPct)
	if side == model.SideShort {
		stop = entry * (1 + stopLossPct)
		take = entry * (1 - takeProfitPct)
	}

	pos := &model.Position{
		ID:         fmt.Sprintf("POS-%d", l.seq),
		Asset:      asset,
		Side:       side,
		Size:       size,
		EntryPrice: entry,
		EntryTime:  time.Now().UTC(),
		StopLoss:   stop,
		TakeProfit: take,
		Status:     model.StatusOpen,
		Fees:       fee,
	}
	l.positions[asset] = pos
	l.cash -= notional + fee
	l.marginUsed += notional
	l.updatePeakLocked()

	log.Printf("[ledger] opened %s %s %s size=%v entry=%.4f stop=%.4f take=%.4f fee=%.4f",
		pos.ID, side, asset, size, entry, stop, take, fee)

	opened := *pos
	ev.opened = &opened
	return ev, &opened, nil
}

// ClosePosition closes the open position for the asset at market: longs
// exit at bid, shorts at ask. Returns ErrNoPosition when nothing is open.
func (l *Ledger) ClosePosition(asset string) (*model.Position, error) {
	l.mu.Lock()
	closed, err := l.closeLocked(asset, "manual close")
	l.mu.Unlock()

	if err != nil {
		return nil, err
	}
	l.dispatch(events{closed: []model.Position{*closed}})
	return closed, nil
}

// closeLocked executes a close for the asset. When market data is missing
// the position is flattened at its entry price so forced liquidation can
// always complete.
func (l *Ledger) closeLocked(asset, reason string) (*model.Position, error) {
	pos, ok := l.positions[asset]
	if !ok {
		return nil, fmt.Errorf("close %s: %w", asset, ErrNoPosition)
	}

	exit := pos.EntryPrice
	if snap, err := l.cache.GetSnapshot(asset); err == nil {
		if pos.Side == model.SideLong {
			exit = snap.Bid
		} else {
			exit = snap.Ask
		}
	} else {
		log.Printf("[ledger] close %s: no market data, flattening at entry price", asset)
	}

	exitValue := pos.Size * exit
	exitFee := exitValue * feeRate

	var pnl float64
	if pos.Side == model.SideLong {
		pnl = (exit-pos.EntryPrice)*pos.Size - exitFee
	} else {
		pnl = (pos.EntryPrice-exit)*pos.Size - exitFee
	}

	entryNotional := pos.Notional()
	l.cash += exitValue - exitFee
	l.marginUsed -= entryNotional

	pos.Status = model.StatusClosed
	pos.ExitPrice = exit
	pos.ExitTime = time.Now().UTC()
	pos.PnL = pnl
	pos.Fees += exitFee

	delete(l.positions, asset)
	l.closed = append(l.closed, *pos)
	l.recordTradeLocked(pnl, entryNotional)
	l.updatePeakLocked()

	log.Printf("[ledger] closed %s %s %s exit=%.4f pnl=%.4f (%s)",
		pos.ID, pos.Side, asset, exit, pnl, reason)

	closed := *pos
	return &closed, nil
}

func (l *Ledger) recordTradeLocked(pnl, notional float64) {
	l.stats.TotalTrades++
	if pnl > 0 {
		l.stats.WinningTrades++
	} else {
		l.stats.LosingTrades++
	}
	l.stats.TotalPnL += pnl
	l.stats.WinRate = float64(l.stats.WinningTrades) / float64(l.stats.TotalTrades)
	if notional > 0 {
		l.tradeReturns = append(l.tradeReturns, pnl/notional)
	}
	l.stats.SharpeRatio = indicator.Sharpe(l.tradeReturns)
}

// ShouldClose reports whether the asset's current price breaches the open
// position's stop-loss or take-profit. False when no position or no market
// data exists.
func (l *Ledger) ShouldClose(asset string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shouldCloseLocked(asset)
}

func (l *Ledger) shouldCloseLocked(asset string) bool {
	pos, ok := l.positions[asset]
	if !ok {
		return false
	}
	snap, err := l.cache.GetSnapshot(asset)
	if err != nil {
		return false
	}
	price := snap.Price
	if pos.Side == model.SideLong {
		return price <= pos.StopLoss || price >= pos.TakeProfit
	}
	return price >= pos.StopLoss || price <= pos.TakeProfit
}

// CheckClose is invoked by the market data cache after each snapshot
// update for the asset. It closes the position when a stop or take-profit
// level has been breached.
func (l *Ledger) CheckClose(asset string) {
	l.mu.Lock()
	var ev events
	if l.shouldCloseLocked(asset) {
		if closed, err := l.closeLocked(asset, "stop/take-profit hit"); err == nil {
			ev.closed = append(ev.closed, *closed)
			ev.alerts = append(ev.alerts, closeAlert(*closed))
		}
	}
	l.mu.Unlock()
	l.dispatch(ev)
}

func closeAlert(p model.Position) notification.Alert {
	level := notification.LevelInfo
	if p.PnL < 0 {
		level = notification.LevelWarning
	}
	return notification.Alert{
		Level:   level,
		Title:   "Position closed",
		Message: fmt.Sprintf("%s %s %s closed at %.4f, pnl %.4f", p.ID, p.Side, p.Asset, p.ExitPrice, p.PnL),
		Context: map[string]string{"asset": p.Asset, "pnl": fmt.Sprintf("%.4f", p.PnL)},
	}
}

// Valuation returns cash plus the marked value of all open positions.
func (l *Ledger) Valuation() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.valuationLocked()
}

func (l *Ledger) valuationLocked() float64 {
	total := l.cash
	for asset, pos := range l.positions {
		price := pos.EntryPrice
		if snap, err := l.cache.GetSnapshot(asset); err == nil {
			price = snap.Price
		}
		total += pos.Size * price
	}
	return total
}

func (l *Ledger) updatePeakLocked() {
	if v := l.valuationLocked(); v > l.peakValue {
		l.peakValue = v
	}
}

// Drawdown returns the fractional decline of valuation from its running
// peak, in [0, 1].
func (l *Ledger) Drawdown() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drawdownLocked()
}

func (l *Ledger) drawdownLocked() float64 {
	if l.peakValue <= 0 {
		return 0
	}
	dd := (l.peakValue - l.valuationLocked()) / l.peakValue
	if dd < 0 {
		return 0
	}
	return dd
}

// Sweep is the periodic maintenance tick: it closes any position whose
// stop or take-profit is breached, refreshes the valuation peak, and
// reports CRITICAL when drawdown exceeds the configured maximum. The
// sweep never liquidates on drawdown by itself; only the risk engine's
// emergency stop does that.
func (l *Ledger) Sweep() {
	l.mu.Lock()
	var ev events
	for asset := range l.positions {
		if !l.shouldCloseLocked(asset) {
			continue
		}
		if closed, err := l.closeLocked(asset, "maintenance sweep"); err == nil {
			ev.closed = append(ev.closed, *closed)
			ev.alerts = append(ev.alerts, closeAlert(*closed))
		}
	}
	l.updatePeakLocked()
	dd := l.drawdownLocked()
	if l.maxDrawdown > 0 && dd > l.maxDrawdown {
		ev.alerts = append(ev.alerts, notification.Alert{
			Level:   notification.LevelCritical,
			Title:   "Drawdown limit exceeded",
			Message: fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", dd*100, l.maxDrawdown*100),
			Context: map[string]string{"drawdown": fmt.Sprintf("%.4f", dd)},
		})
	}
	l.mu.Unlock()
	l.dispatch(ev)
}

// Run executes the maintenance sweep on the configured interval until ctx
// is cancelled.
func (l *Ledger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	log.Printf("[ledger] maintenance sweep every %v", l.sweepInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// ForceCloseAll closes every open position at market, bypassing stop and
// take-profit checks. Per-asset failures are logged and do not halt the
// remaining closures. Used by the risk engine's emergency stop.
func (l *Ledger) ForceCloseAll(reason string) []model.Position {
	l.mu.Lock()
	assets := make([]string, 0, len(l.positions))
	for asset := range l.positions {
		assets = append(assets, asset)
	}
	var ev events
	for _, asset := range assets {
		closed, err := l.closeLocked(asset, reason)
		if err != nil {
			log.Printf("[ledger] force close %s failed: %v", asset, err)
			continue
		}
		ev.closed = append(ev.closed, *closed)
	}
	l.mu.Unlock()
	l.dispatch(ev)
	return ev.closed
}

// ── Read-only views ──

// PortfolioState returns the portfolio snapshot and a copy of all open
// positions, consistent under one lock acquisition.
func (l *Ledger) PortfolioState() (model.Portfolio, []model.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.portfolioLocked(), l.openPositionsLocked()
}

func (l *Ledger) portfolioLocked() model.Portfolio {
	return model.Portfolio{
		Cash:       l.cash,
		MarginUsed: l.marginUsed,
		TotalValue: l.valuationLocked(),
		PeakValue:  l.peakValue,
	}
}

func (l *Ledger) openPositionsLocked() []model.Position {
	out := make([]model.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	return out
}

// OpenPositions returns a copy of all open positions.
func (l *Ledger) OpenPositions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openPositionsLocked()
}

// Position returns the open position for an asset, if any.
func (l *Ledger) Position(asset string) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[asset]; ok {
		return *p, true
	}
	return model.Position{}, false
}

// ClosedPositions returns a copy of the trade history.
func (l *Ledger) ClosedPositions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// Stats returns the closed-trade performance summary.
func (l *Ledger) Stats() model.PerformanceStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
