package strategy

import (
	"errors"
	"testing"
	"time"

	"portfolio-riskv1/internal/marketdata/cache"
	"portfolio-riskv1/internal/model"
)

// stubPositions is a fixed PositionSource for evaluator tests.
type stubPositions struct {
	pos    model.Position
	hasPos bool
}

func (s stubPositions) Position(asset string) (model.Position, bool) {
	return s.pos, s.hasPos
}

func feed(c *cache.Cache, asset string, prices, volumes []float64) {
	for i, p := range prices {
		vol := 1000.0
		if volumes != nil {
			vol = volumes[i]
		}
		c.UpdateSnapshot(model.MarketSnapshot{
			Asset:     asset,
			Price:     p,
			Bid:       p - 0.005,
			Ask:       p + 0.005,
			Volume:    vol,
			Timestamp: time.Now().UTC(),
		})
	}
}

// Notional 1000 per entry: at price 100 that is 10 units, 5 for a scalp.
func newEvaluator(c *cache.Cache, pos stubPositions) *Evaluator {
	return NewEvaluator(c, pos, 1000)
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{
		"momentum":       Momentum,
		"mean_reversion": MeanReversion,
		"breakout":       Breakout,
		"scalping":       Scalping,
		"SWING":          Swing,
	} {
		got, err := ParseKind(name)
		if err != nil {
			t.Errorf("ParseKind(%q): unexpected error %v", name, err)
		}
		if got != want {
			t.Errorf("ParseKind(%q): expected %v, got %v", name, want, got)
		}
	}
	if _, err := ParseKind("martingale"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestEvaluate_UnknownStrategy(t *testing.T) {
	c := cache.New()
	feed(c, "BTC", []float64{100}, nil)
	e := newEvaluator(c, stubPositions{})

	order, err := e.Evaluate("BTC", "martingale", ActionBuy)
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
	if order != nil {
		t.Errorf("expected no order, got %+v", order)
	}
}

func TestEvaluate_MissingMarketData(t *testing.T) {
	c := cache.New()
	e := newEvaluator(c, stubPositions{})

	if _, err := e.Evaluate("BTC", "momentum", ActionBuy); !errors.Is(err, cache.ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestMomentum_NoOrderBelowTwentySamples(t *testing.T) {
	c := cache.New()
	prices := make([]float64, 19)
	for i := range prices {
		prices[i] = 100 + float64(i)*10 // steep rise, but too little history
	}
	feed(c, "BTC", prices, nil)
	e := newEvaluator(c, stubPositions{})

	order, err := e.Evaluate("BTC", "momentum", ActionBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Errorf("expected no order below 20 samples, got %+v", order)
	}
}

func TestMomentum_LongEntry(t *testing.T) {
	c := cache.New()
	prices := make([]float64, 20)
	volumes := make([]float64, 20)
	for i := range prices {
		if i < 10 {
			prices[i] = 100
		} else {
			prices[i] = 180 // momentum = 0.8
		}
		volumes[i] = 1000 + float64(i)*50 // strictly rising volume
	}
	feed(c, "BTC", prices, volumes)
	e := newEvaluator(c, stubPositions{})

	order, err := e.Evaluate("BTC", "momentum", ActionBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil {
		t.Fatal("expected a long momentum order")
	}
	if order.Side != model.SideLong || order.Close {
		t.Errorf("unexpected order: %+v", order)
	}
	if want := 1000.0 / 180.0; order.Size != want {
		t.Errorf("expected size %v at price 180, got %v", want, order.Size)
	}
}

func TestMeanReversion_LongEntryAndExit(t *testing.T) {
	c := cache.New()
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100
	}
	prices[19] = 80 // deep below the mean: z << -2, RSI 0
	feed(c, "BTC", prices, nil)
	e := newEvaluator(c, stubPositions{})

	order, err := e.Evaluate("BTC", "mean_reversion", ActionBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil || order.Side != model.SideLong {
		t.Fatalf("expected long mean-reversion entry, got %+v", order)
	}

	// With a position open and price back at the mean, propose closing.
	flat := cache.New()
	feed(flat, "BTC", []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100,
		100, 100, 100, 100, 100, 100, 100, 100, 100, 100}, nil)
	holding := newEvaluator(flat, stubPositions{
		pos:    model.Position{Asset: "BTC", Side: model.SideLong, EntryPrice: 80, Size: 10},
		hasPos: true,
	})
	exit, err := holding.Evaluate("BTC", "mean_reversion", ActionBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exit == nil || !exit.Close {
		t.Errorf("expected close proposal near the mean, got %+v", exit)
	}
}

func TestBreakout_LongEntry(t *testing.T) {
	c := cache.New()
	prices := make([]float64, 21)
	for i := 0; i < 20; i++ {
		prices[i] = 100
	}
	prices[20] = 110 // well above 100*1.02
	feed(c, "BTC", prices, nil)
	e := newEvaluator(c, stubPositions{})

	order, err := e.Evaluate("BTC", "breakout", ActionBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil || order.Side != model.SideLong {
		t.Errorf("expected long breakout entry, got %+v", order)
	}

	// No breakout at the mean.
	calm := cache.New()
	feed(calm, "BTC", prices[:20], nil)
	e2 := newEvaluator(calm, stubPositions{})
	if order, _ := e2.Evaluate("BTC", "breakout", ActionBuy); order != nil {
		t.Errorf("expected no order without breakout, got %+v", order)
	}
}

func TestScalping_EntryAndExit(t *testing.T) {
	c := cache.New()
	// Tight market: spread 0.01 < 2 ticks.
	c.UpdateSnapshot(model.MarketSnapshot{
		Asset: "BTC", Price: 100, Bid: 99.995, Ask: 100.005, Volume: 1000,
		Timestamp: time.Now().UTC(),
	})
	e := newEvaluator(c, stubPositions{})

	order, err := e.Evaluate("BTC", "scalping", ActionBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil || order.Side != model.SideLong {
		t.Fatalf("expected long scalp entry, got %+v", order)
	}
	if order.Size != 5 {
		t.Errorf("expected half size 5, got %v", order.Size)
	}

	// Wide spread: no entry.
	wide := cache.New()
	wide.UpdateSnapshot(model.MarketSnapshot{
		Asset: "BTC", Price: 100, Bid: 99.9, Ask: 100.1, Volume: 1000,
		Timestamp: time.Now().UTC(),
	})
	e2 := newEvaluator(wide, stubPositions{})
	if order, _ := e2.Evaluate("BTC", "scalping", ActionBuy); order != nil {
		t.Errorf("expected no order on wide spread, got %+v", order)
	}

	// Holding a scalp that moved 0.6%: close it.
	moved := cache.New()
	moved.UpdateSnapshot(model.MarketSnapshot{
		Asset: "BTC", Price: 100.6, Bid: 100.595, Ask: 100.605, Volume: 1000,
		Timestamp: time.Now().UTC(),
	})
	holding := newEvaluator(moved, stubPositions{
		pos:    model.Position{Asset: "BTC", Side: model.SideLong, EntryPrice: 100, Size: 5},
		hasPos: true,
	})
	exit, err := holding.Evaluate("BTC", "scalping", ActionSell)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exit == nil || !exit.Close {
		t.Errorf("expected scalp exit after 0.6%% move, got %+v", exit)
	}
}

func TestSwing_LongEntry(t *testing.T) {
	c := cache.New()
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 + float64(i) // steady uptrend
	}
	feed(c, "BTC", prices, nil)
	e := newEvaluator(c, stubPositions{})

	order, err := e.Evaluate("BTC", "swing", ActionBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil || order.Side != model.SideLong {
		t.Errorf("expected long swing entry, got %+v", order)
	}

	// SELL against an uptrend: nothing to do.
	if order, _ := e.Evaluate("BTC", "swing", ActionSell); order != nil {
		t.Errorf("expected no order against the trend, got %+v", order)
	}
}
