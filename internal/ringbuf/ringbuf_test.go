package ringbuf

import (
	"testing"
	"time"

	"portfolio-riskv1/internal/model"
)

func point(price float64) model.PricePoint {
	return model.PricePoint{Price: price, Volume: 100, Timestamp: time.Now().UTC()}
}

func TestRing_PushAndOrder(t *testing.T) {
	r := New(5)
	for i := 1; i <= 3; i++ {
		r.Push(point(float64(i)))
	}
	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	prices := r.Prices()
	for i, want := range []float64{1, 2, 3} {
		if prices[i] != want {
			t.Errorf("prices[%d]: expected %.0f, got %.0f", i, want, prices[i])
		}
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := New(3)
	for i := 1; i <= 5; i++ {
		r.Push(point(float64(i)))
	}
	if r.Len() != 3 {
		t.Fatalf("expected len 3 after overflow, got %d", r.Len())
	}
	prices := r.Prices()
	for i, want := range []float64{3, 4, 5} {
		if prices[i] != want {
			t.Errorf("prices[%d]: expected %.0f, got %.0f", i, want, prices[i])
		}
	}
	last, ok := r.Last()
	if !ok || last.Price != 5 {
		t.Errorf("expected last price 5, got %+v ok=%v", last, ok)
	}
}

func TestRing_Empty(t *testing.T) {
	r := New(4)
	if _, ok := r.Last(); ok {
		t.Error("expected ok=false on empty ring")
	}
	if got := len(r.Points()); got != 0 {
		t.Errorf("expected 0 points, got %d", got)
	}
}

func TestRing_MinCapacity(t *testing.T) {
	r := New(0)
	if r.Cap() != 1 {
		t.Fatalf("expected capacity clamped to 1, got %d", r.Cap())
	}
	r.Push(point(1))
	r.Push(point(2))
	if last, _ := r.Last(); last.Price != 2 {
		t.Errorf("expected last price 2, got %.0f", last.Price)
	}
}
