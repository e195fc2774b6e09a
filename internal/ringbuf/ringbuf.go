// Package ringbuf provides a fixed-capacity FIFO ring of price points,
// used as the per-asset rolling history behind the market data cache.
// When full, the oldest point is evicted to make room for the newest.
package ringbuf

import "portfolio-riskv1/internal/model"

// Ring is a bounded FIFO buffer of PricePoint values. Not safe for
// concurrent use; the owning cache serializes access.
type Ring struct {
	buf   []model.PricePoint
	start int // index of the oldest element
	count int
}

// New creates a ring with the given capacity. Minimum capacity is 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]model.PricePoint, capacity)}
}

// Push appends a point, evicting the oldest when the ring is full.
func (r *Ring) Push(p model.PricePoint) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = p
		r.count++
		return
	}
	// Full: overwrite the oldest slot and advance the start.
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the current number of points.
func (r *Ring) Len() int {
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Last returns the most recent point. ok is false when the ring is empty.
func (r *Ring) Last() (model.PricePoint, bool) {
	if r.count == 0 {
		return model.PricePoint{}, false
	}
	return r.buf[(r.start+r.count-1)%len(r.buf)], true
}

// Points returns a copy of all points, ordered oldest to newest.
func (r *Ring) Points() []model.PricePoint {
	out := make([]model.PricePoint, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Prices returns the price series, ordered oldest to newest.
func (r *Ring) Prices() []float64 {
	out := make([]float64, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)].Price
	}
	return out
}

// Volumes returns the volume series, ordered oldest to newest.
func (r *Ring) Volumes() []float64 {
	out := make([]float64, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)].Volume
	}
	return out
}
