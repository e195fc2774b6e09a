// Package cache holds the latest market snapshot and a bounded rolling
// price history per asset. It is the single source of market data for the
// strategy evaluator and the risk engine.
package cache

import (
	"fmt"
	"log"
	"sync"

	"portfolio-riskv1/internal/model"
	"portfolio-riskv1/internal/ringbuf"
)

// HistoryCapacity is the per-asset rolling window size. Oldest points are
// evicted FIFO past this capacity.
const HistoryCapacity = 1000

// ErrNoSnapshot is returned when no market data exists for an asset.
var ErrNoSnapshot = fmt.Errorf("no market data for asset")

// CloseChecker is invoked after each snapshot update so the ledger can
// test the updated asset against stop-loss/take-profit levels. It is
// called outside the cache lock.
type CloseChecker interface {
	CheckClose(asset string)
}

// Cache stores per-asset market state.
type Cache struct {
	mu      sync.RWMutex
	latest  map[string]model.MarketSnapshot
	history map[string]*ringbuf.Ring

	checker CloseChecker // optional

	// OnUpdate is an optional hook called with each accepted snapshot
	// after the lock is released (metrics, live-state publication).
	OnUpdate func(snap model.MarketSnapshot)
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		latest:  make(map[string]model.MarketSnapshot),
		history: make(map[string]*ringbuf.Ring),
	}
}

// SetCloseChecker wires the ledger's close check. Must be called before
// updates begin flowing.
func (c *Cache) SetCloseChecker(checker CloseChecker) {
	c.checker = checker
}

// UpdateSnapshot stores the latest snapshot for an asset, appends it to the
// rolling history, and triggers the ledger's close check for that asset.
func (c *Cache) UpdateSnapshot(snap model.MarketSnapshot) {
	if snap.Asset == "" {
		log.Printf("[cache] dropping snapshot with empty asset")
		return
	}

	c.mu.Lock()
	c.latest[snap.Asset] = snap
	ring, ok := c.history[snap.Asset]
	if !ok {
		ring = ringbuf.New(HistoryCapacity)
		c.history[snap.Asset] = ring
	}
	ring.Push(model.PricePoint{
		Price:     snap.Price,
		Volume:    snap.Volume,
		Timestamp: snap.Timestamp,
	})
	c.mu.Unlock()

	// Side effects run outside the lock: the checker takes the ledger
	// lock and the hook may do I/O.
	if c.checker != nil {
		c.checker.CheckClose(snap.Asset)
	}
	if c.OnUpdate != nil {
		c.OnUpdate(snap)
	}
}

// GetSnapshot returns the latest snapshot for an asset.
func (c *Cache) GetSnapshot(asset string) (model.MarketSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.latest[asset]
	if !ok {
		return model.MarketSnapshot{}, fmt.Errorf("%w: %s", ErrNoSnapshot, asset)
	}
	return snap, nil
}

// GetHistory returns a copy of the rolling history for an asset, ordered
// oldest to newest.
func (c *Cache) GetHistory(asset string) ([]model.PricePoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ring, ok := c.history[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, asset)
	}
	return ring.Points(), nil
}

// Prices returns the price series for an asset. Missing assets yield nil,
// which every indicator treats as insufficient data.
func (c *Cache) Prices(asset string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ring, ok := c.history[asset]
	if !ok {
		return nil
	}
	return ring.Prices()
}

// Volumes returns the volume series for an asset, or nil when absent.
func (c *Cache) Volumes(asset string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ring, ok := c.history[asset]
	if !ok {
		return nil
	}
	return ring.Volumes()
}

// Assets returns all assets with at least one snapshot.
func (c *Cache) Assets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.latest))
	for asset := range c.latest {
		out = append(out, asset)
	}
	return out
}
