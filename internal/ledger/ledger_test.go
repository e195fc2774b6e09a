package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"portfolio-riskv1/internal/marketdata/cache"
	"portfolio-riskv1/internal/model"
)

func quote(asset string, bid, ask float64) model.MarketSnapshot {
	return model.MarketSnapshot{
		Asset:     asset,
		Price:     (bid + ask) / 2,
		Bid:       bid,
		Ask:       ask,
		Volume:    10000,
		Timestamp: time.Now().UTC(),
	}
}

func newTestLedger(t *testing.T, initialCash float64) (*Ledger, *cache.Cache) {
	t.Helper()
	c := cache.New()
	l := New(c, Config{InitialCash: initialCash, MaxDrawdown: 0.15})
	return l, c
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestOpenPosition_CashAndMargin(t *testing.T) {
	l, c := newTestLedger(t, 100000)
	c.UpdateSnapshot(quote("BTC", 99.5, 100.5))

	pos, err := l.OpenPosition("BTC", model.SideLong, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.EntryPrice != 100.5 {
		t.Errorf("expected long entry at ask 100.5, got %.4f", pos.EntryPrice)
	}
	pf, open := l.PortfolioState()
	if !almostEqual(pf.Cash, 89939.95) {
		t.Errorf("expected cash 89939.95, got %.4f", pf.Cash)
	}
	if !almostEqual(pf.MarginUsed, 10050) {
		t.Errorf("expected margin 10050, got %.4f", pf.MarginUsed)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(open))
	}
	if pos.StopLoss >= pos.EntryPrice || pos.TakeProfit <= pos.EntryPrice {
		t.Errorf("long stop/take on wrong side of entry: stop=%.4f take=%.4f", pos.StopLoss, pos.TakeProfit)
	}
}

func TestClosePosition_PnLAndCash(t *testing.T) {
	l, c := newTestLedger(t, 100000)
	c.UpdateSnapshot(quote("BTC", 99.5, 100.5))

	if _, err := l.OpenPosition("BTC", model.SideLong, 100); err != nil {
		t.Fatalf("open: %v", err)
	}
	closed, err := l.ClosePosition("BTC")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// exitValue=9950, exitFee=9.95, pnl=(9950-10050)-9.95=-109.95
	if !almostEqual(closed.PnL, -109.95) {
		t.Errorf("expected pnl -109.95, got %.4f", closed.PnL)
	}
	pf, open := l.PortfolioState()
	if !almostEqual(pf.Cash, 99880.00) {
		t.Errorf("expected cash 99880.00, got %.4f", pf.Cash)
	}
	if !almostEqual(pf.MarginUsed, 0) {
		t.Errorf("expected zero margin, got %.4f", pf.MarginUsed)
	}
	if len(open) != 0 {
		t.Errorf("expected no open positions, got %d", len(open))
	}
	if closed.Status != model.StatusClosed {
		t.Errorf("expected status CLOSED, got %s", closed.Status)
	}
}

func TestShortPosition_EntryAndPnL(t *testing.T) {
	l, c := newTestLedger(t, 100000)
	c.UpdateSnapshot(quote("ETH", 99.5, 100.5))

	pos, err := l.OpenPosition("ETH", model.SideShort, 10)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if pos.EntryPrice != 99.5 {
		t.Errorf("expected short entry at bid 99.5, got %.4f", pos.EntryPrice)
	}
	if pos.StopLoss <= pos.EntryPrice || pos.TakeProfit >= pos.EntryPrice {
		t.Errorf("short stop/take on wrong side of entry: stop=%.4f take=%.4f", pos.StopLoss, pos.TakeProfit)
	}

	// Price falls: short exits at ask 95.5 for a profit.
	c.UpdateSnapshot(quote("ETH", 94.5, 95.5))
	closed, err := l.ClosePosition("ETH")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	want := (99.5-95.5)*10 - 95.5*10*0.001
	if !almostEqual(closed.PnL, want) {
		t.Errorf("expected pnl %.4f, got %.4f", want, closed.PnL)
	}
}

func TestOpenPosition_Rejections(t *testing.T) {
	l, c := newTestLedger(t, 1000)
	c.UpdateSnapshot(quote("BTC", 99.5, 100.5))

	// Notional 100*100.5 > cash 1000.
	if _, err := l.OpenPosition("BTC", model.SideLong, 100); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	if _, err := l.OpenPosition("BTC", model.SideLong, 1); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := l.OpenPosition("BTC", model.SideLong, 1); !errors.Is(err, ErrPositionExists) {
		t.Errorf("expected ErrPositionExists, got %v", err)
	}

	if _, err := l.OpenPosition("DOGE", model.SideLong, 1); !errors.Is(err, cache.ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot for unknown asset, got %v", err)
	}

	if _, err := l.OpenPosition("BTC", model.SideLong, -5); err == nil {
		t.Error("expected error for non-positive size")
	}
}

func TestClosePosition_NotFound(t *testing.T) {
	l, _ := newTestLedger(t, 1000)
	if _, err := l.ClosePosition("BTC"); !errors.Is(err, ErrNoPosition) {
		t.Errorf("expected ErrNoPosition, got %v", err)
	}
}

type blockingGate struct{}

func (blockingGate) CheckOrder(asset string, side model.Side, size, entryPrice float64,
	pf model.Portfolio, open []model.Position) []model.Finding {
	return []model.Finding{{
		Type:     "leverage",
		Severity: model.SeverityCritical,
		Value:    10,
		Limit:    5,
		Message:  "leverage 10.0 exceeds limit 5.0",
	}}
}

func TestOpenPosition_BlockedByGate(t *testing.T) {
	l, c := newTestLedger(t, 100000)
	c.UpdateSnapshot(quote("BTC", 99.5, 100.5))
	l.SetGate(blockingGate{})

	if _, err := l.OpenPosition("BTC", model.SideLong, 1); !errors.Is(err, ErrRiskBlocked) {
		t.Errorf("expected ErrRiskBlocked, got %v", err)
	}
	pf, _ := l.PortfolioState()
	if pf.Cash != 100000 {
		t.Errorf("rejected open must not change cash, got %.4f", pf.Cash)
	}
}

func TestShouldClose(t *testing.T) {
	l, c := newTestLedger(t, 100000)
	c.SetCloseChecker(nil2{}) // inert checker so updates don't auto-close
	c.UpdateSnapshot(quote("BTC", 99.5, 100.5))

	pos, err := l.OpenPosition("BTC", model.SideLong, 10)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if l.ShouldClose("BTC") {
		t.Error("fresh position should not trigger close")
	}

	// Drop below stop loss.
	stop := pos.StopLoss
	c.UpdateSnapshot(quote("BTC", stop-1, stop-0.5))
	if !l.ShouldClose("BTC") {
		t.Error("expected close trigger below stop loss")
	}

	// Recover, then rally past take profit.
	c.UpdateSnapshot(quote("BTC", 99.5, 100.5))
	take := pos.TakeProfit
	c.UpdateSnapshot(quote("BTC", take+0.5, take+1))
	if !l.ShouldClose("BTC") {
		t.Error("expected close trigger above take profit")
	}
}

type nil2 struct{}

func (nil2) CheckClose(asset string) {}

func TestCheckClose_ClosesOnStopBreach(t *testing.T) {
	l, c := newTestLedger(t, 100000)
	c.SetCloseChecker(l)
	c.UpdateSnapshot(quote("BTC", 99.5, 100.5))

	pos, err := l.OpenPosition("BTC", model.SideLong, 10)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Feed a price through the stop loss: the cache-triggered check must
	// close the position.
	c.UpdateSnapshot(quote("BTC", pos.StopLoss-1, pos.StopLoss-0.5))

	if _, open := l.Position("BTC"); open {
		t.Fatal("expected position closed after stop breach")
	}
	closed := l.ClosedPositions()
	if len(closed) != 1 || closed[0].PnL >= 0 {
		t.Errorf("expected one losing closed trade, got %+v", closed)
	}
}

func TestForceCloseAll(t *testing.T) {
	l, c := newTestLedger(t, 100000)
	for _, asset := range []string{"BTC", "ETH", "SOL"} {
		c.UpdateSnapshot(quote(asset, 99.5, 100.5))
		if _, err := l.OpenPosition(asset, model.SideLong, 1); err != nil {
			t.Fatalf("open %s: %v", asset, err)
		}
	}

	closed := l.ForceCloseAll("emergency stop")
	if len(closed) != 3 {
		t.Fatalf("expected 3 forced closes, got %d", len(closed))
	}
	if open := l.OpenPositions(); len(open) != 0 {
		t.Errorf("expected zero open positions, got %d", len(open))
	}
	pf, _ := l.PortfolioState()
	if !almostEqual(pf.MarginUsed, 0) {
		t.Errorf("expected zero margin after liquidation, got %.4f", pf.MarginUsed)
	}
}

func TestCashConservation_DisjointAssets(t *testing.T) {
	l, c := newTestLedger(t, 100000)
	assets := []string{"BTC", "ETH", "SOL", "AVAX"}
	for _, a := range assets {
		c.UpdateSnapshot(quote(a, 50, 51))
	}

	expected := 100000.0
	for _, a := range assets {
		if _, err := l.OpenPosition(a, model.SideLong, 10); err != nil {
			t.Fatalf("open %s: %v", a, err)
		}
		notional := 10 * 51.0
		expected -= notional + notional*0.001
	}
	for _, a := range assets {
		if _, err := l.ClosePosition(a); err != nil {
			t.Fatalf("close %s: %v", a, err)
		}
		exitValue := 10 * 50.0
		expected += exitValue - exitValue*0.001
	}

	pf, _ := l.PortfolioState()
	if !almostEqual(pf.Cash, expected) {
		t.Errorf("cash conservation violated: expected %.6f, got %.6f", expected, pf.Cash)
	}
}

func TestStats(t *testing.T) {
	l, c := newTestLedger(t, 100000)
	c.SetCloseChecker(nil2{})
	c.UpdateSnapshot(quote("BTC", 99.5, 100.5))

	// Losing round trip (spread + fees).
	l.OpenPosition("BTC", model.SideLong, 10)
	l.ClosePosition("BTC")

	// Winning round trip.
	l.OpenPosition("BTC", model.SideLong, 10)
	c.UpdateSnapshot(quote("BTC", 109.5, 110.5))
	l.ClosePosition("BTC")

	stats := l.Stats()
	if stats.TotalTrades != 2 || stats.WinningTrades != 1 || stats.LosingTrades != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if !almostEqual(stats.WinRate, 0.5) {
		t.Errorf("expected win rate 0.5, got %.4f", stats.WinRate)
	}
}

func TestDrawdown(t *testing.T) {
	l, c := newTestLedger(t, 100000)
	c.SetCloseChecker(nil2{})
	c.UpdateSnapshot(quote("BTC", 99.5, 100.5))

	if dd := l.Drawdown(); dd != 0 {
		t.Errorf("expected zero drawdown on fresh ledger, got %.4f", dd)
	}

	l.OpenPosition("BTC", model.SideLong, 100)
	// Market halves: valuation falls well below the initial peak.
	c.UpdateSnapshot(quote("BTC", 49.5, 50.5))
	dd := l.Drawdown()
	if dd <= 0 || dd >= 1 {
		t.Errorf("expected drawdown in (0,1), got %.4f", dd)
	}
}
