package strategy

import (
	"fmt"

	"portfolio-riskv1/internal/indicator"
	"portfolio-riskv1/internal/marketdata/cache"
	"portfolio-riskv1/internal/model"
)

// Entry/exit thresholds. The indicator neutral defaults (0, or 50 for
// RSI) keep every entry condition false until enough history exists.
const (
	momentumEntry    = 0.7
	volumeTrendEntry = 0.6
	zScoreEntry      = 2.0
	zScoreExit       = 0.5
	rsiOversold      = 30
	rsiOverbought    = 70

	// tickSize approximates one price tick for the scalping spread test.
	tickSize = 0.01

	// scalpExitPct closes a scalp once price moves 0.5% either way from
	// entry.
	scalpExitPct = 0.005
)

// PositionSource exposes the ledger's open position lookup.
type PositionSource interface {
	Position(asset string) (model.Position, bool)
}

// Evaluator evaluates strategy signals against current market state.
type Evaluator struct {
	cache        *cache.Cache
	positions    PositionSource
	baseNotional float64
}

// NewEvaluator creates an evaluator. baseNotional is the target notional
// per entry, converted to units at the current price; scalping uses half.
func NewEvaluator(c *cache.Cache, positions PositionSource, baseNotional float64) *Evaluator {
	return &Evaluator{cache: c, positions: positions, baseNotional: baseNotional}
}

// Evaluate maps (asset, strategy name, signal) to a proposed order.
// Returns (nil, nil) when the strategy has nothing to do, and an error
// for unknown strategies or missing market data; neither mutates state.
func (e *Evaluator) Evaluate(asset, name string, signal Action) (*model.Order, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	snap, err := e.cache.GetSnapshot(asset)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s on %s: %w", kind, asset, err)
	}

	if snap.Price <= 0 {
		return nil, fmt.Errorf("evaluate %s on %s: non-positive price %v", kind, asset, snap.Price)
	}

	prices := e.cache.Prices(asset)
	pos, hasPos := e.positions.Position(asset)
	size := e.baseNotional / snap.Price

	switch kind {
	case Momentum:
		return e.momentum(asset, signal, size, prices, hasPos), nil
	case MeanReversion:
		return e.meanReversion(asset, signal, size, prices, pos, hasPos), nil
	case Breakout:
		return e.breakout(asset, signal, size, snap, prices, hasPos), nil
	case Scalping:
		return e.scalping(asset, signal, size, snap, pos, hasPos), nil
	case Swing:
		return e.swing(asset, signal, size, snap, prices, hasPos), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

func (e *Evaluator) open(asset string, kind Kind, side model.Side, size float64, reason string) *model.Order {
	return &model.Order{
		Asset:    asset,
		Side:     side,
		Size:     size,
		Strategy: kind.String(),
		Reason:   reason,
	}
}

func (e *Evaluator) close(asset string, kind Kind, reason string) *model.Order {
	return &model.Order{
		Asset:    asset,
		Strategy: kind.String(),
		Reason:   reason,
		Close:    true,
	}
}

func (e *Evaluator) momentum(asset string, signal Action, size float64, prices []float64, hasPos bool) *model.Order {
	if hasPos {
		return nil
	}
	mom := indicator.Momentum(prices)
	volTrend := indicator.VolumeTrend(e.cache.Volumes(asset))

	if signal == ActionBuy && mom > momentumEntry && volTrend > volumeTrendEntry {
		return e.open(asset, Momentum, model.SideLong, size,
			fmt.Sprintf("momentum %.2f with volume trend %.2f", mom, volTrend))
	}
	if signal == ActionSell && mom < -momentumEntry && volTrend > volumeTrendEntry {
		return e.open(asset, Momentum, model.SideShort, size,
			fmt.Sprintf("momentum %.2f with volume trend %.2f", mom, volTrend))
	}
	return nil
}

func (e *Evaluator) meanReversion(asset string, signal Action, size float64, prices []float64, pos model.Position, hasPos bool) *model.Order {
	z := indicator.ZScore(prices)

	// Exit rule first: reversion considered complete near the mean.
	if hasPos {
		if z > -zScoreExit && z < zScoreExit {
			return e.close(asset, MeanReversion, fmt.Sprintf("z-score %.2f reverted to mean", z))
		}
		return nil
	}

	rsi := indicator.RSI(prices, indicator.DefaultRSIPeriod)
	if signal == ActionBuy && z < -zScoreEntry && rsi < rsiOversold {
		return e.open(asset, MeanReversion, model.SideLong, size,
			fmt.Sprintf("oversold: z=%.2f rsi=%.1f", z, rsi))
	}
	if signal == ActionSell && z > zScoreEntry && rsi > rsiOverbought {
		return e.open(asset, MeanReversion, model.SideShort, size,
			fmt.Sprintf("overbought: z=%.2f rsi=%.1f", z, rsi))
	}
	return nil
}

func (e *Evaluator) breakout(asset string, signal Action, size float64, snap model.MarketSnapshot, prices []float64, hasPos bool) *model.Order {
	if hasPos {
		return nil
	}
	// Levels come from the window before the current tick; the latest
	// point would otherwise always contain the breakout itself.
	hist := prices
	if len(hist) > 0 {
		hist = hist[:len(hist)-1]
	}
	upper, lower := indicator.BreakoutLevels(hist)
	if upper == 0 && lower == 0 {
		return nil
	}
	if signal == ActionBuy && snap.Price > upper {
		return e.open(asset, Breakout, model.SideLong, size,
			fmt.Sprintf("price %.4f above breakout %.4f", snap.Price, upper))
	}
	if signal == ActionSell && snap.Price < lower {
		return e.open(asset, Breakout, model.SideShort, size,
			fmt.Sprintf("price %.4f below breakout %.4f", snap.Price, lower))
	}
	return nil
}

func (e *Evaluator) scalping(asset string, signal Action, size float64, snap model.MarketSnapshot, pos model.Position, hasPos bool) *model.Order {
	// Exit on any 0.5% move from entry, favorable or adverse.
	if hasPos {
		if pos.EntryPrice > 0 {
			move := (snap.Price - pos.EntryPrice) / pos.EntryPrice
			if move >= scalpExitPct || move <= -scalpExitPct {
				return e.close(asset, Scalping, fmt.Sprintf("scalp exit at %.2f%% move", move*100))
			}
		}
		return nil
	}

	// Only scalp tight markets.
	if snap.Spread() >= 2*tickSize {
		return nil
	}
	half := size / 2
	if signal == ActionBuy {
		return e.open(asset, Scalping, model.SideLong, half,
			fmt.Sprintf("tight spread %.4f", snap.Spread()))
	}
	if signal == ActionSell {
		return e.open(asset, Scalping, model.SideShort, half,
			fmt.Sprintf("tight spread %.4f", snap.Spread()))
	}
	return nil
}

func (e *Evaluator) swing(asset string, signal Action, size float64, snap model.MarketSnapshot, prices []float64, hasPos bool) *model.Order {
	if hasPos {
		return nil
	}
	trend := indicator.Trend(prices)
	if signal == ActionBuy && trend > 0 {
		if support := indicator.Support(prices); support > 0 && snap.Price > support {
			return e.open(asset, Swing, model.SideLong, size,
				fmt.Sprintf("uptrend above support %.4f", support))
		}
	}
	if signal == ActionSell && trend < 0 {
		if resistance := indicator.Resistance(prices); resistance > 0 && snap.Price < resistance {
			return e.open(asset, Swing, model.SideShort, size,
				fmt.Sprintf("downtrend below resistance %.4f", resistance))
		}
	}
	return nil
}
