package redis

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Hour)
	failing := func() error { return errors.New("down") }

	for i := 0; i < 3; i++ {
		if err := cb.Execute(failing); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", cb.CurrentState())
	}

	// Open breaker rejects without calling fn.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while breaker is open")
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond)
	cb.Execute(func() error { return errors.New("down") })
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open, got %v", cb.CurrentState())
	}

	time.Sleep(5 * time.Millisecond)

	// Successful probe closes the breaker.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed after successful probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond)
	cb.Execute(func() error { return errors.New("down") })
	time.Sleep(5 * time.Millisecond)

	cb.Execute(func() error { return errors.New("still down") })
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected reopened after failed probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	var transitions []string
	cb.OnStateChange = func(from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}
	cb.Execute(func() error { return errors.New("down") })
	if len(transitions) != 1 || transitions[0] != "closed>open" {
		t.Errorf("unexpected transitions: %v", transitions)
	}
}
