package feed

import (
	"testing"
	"time"

	"portfolio-riskv1/internal/strategy"
)

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := New(Config{URL: "http://localhost:9001/ws"}); err == nil {
		t.Fatal("expected error for non-ws scheme")
	}
	if _, err := New(Config{URL: "ws://localhost:9001/ws"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseSnapshot(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	snap, err := parseSnapshot(message{
		Type: "tick", Asset: "BTC-USD",
		Price: 100, Bid: 99.5, Ask: 100.5, Volume: 1200, Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Asset != "BTC-USD" || snap.Bid != 99.5 || snap.Ask != 100.5 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !snap.Timestamp.Equal(ts) {
		t.Fatalf("timestamp not preserved: %v", snap.Timestamp)
	}
}

func TestParseSnapshot_DegenerateQuotes(t *testing.T) {
	// Missing or crossed quotes collapse to the last price.
	cases := []message{
		{Asset: "ETH-USD", Price: 50},
		{Asset: "ETH-USD", Price: 50, Bid: 51, Ask: 49},
		{Asset: "ETH-USD", Price: 50, Bid: -1, Ask: 50.5},
	}
	for i, msg := range cases {
		snap, err := parseSnapshot(msg)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		if snap.Bid != 50 || snap.Ask != 50 {
			t.Fatalf("case %d: quotes not collapsed: bid=%v ask=%v", i, snap.Bid, snap.Ask)
		}
	}
}

func TestParseSnapshot_Rejects(t *testing.T) {
	if _, err := parseSnapshot(message{Price: 100}); err == nil {
		t.Fatal("expected error for missing asset")
	}
	if _, err := parseSnapshot(message{Asset: "BTC-USD", Price: 0}); err == nil {
		t.Fatal("expected error for non-positive price")
	}
}

func TestParseSignal(t *testing.T) {
	sig, err := parseSignal(message{Asset: "BTC-USD", Strategy: "momentum", Action: "buy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Action != strategy.ActionBuy || sig.Strategy != "momentum" {
		t.Fatalf("unexpected signal: %+v", sig)
	}

	if _, err := parseSignal(message{Asset: "BTC-USD", Strategy: "momentum", Action: "hold"}); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if _, err := parseSignal(message{Asset: "BTC-USD", Action: "BUY"}); err == nil {
		t.Fatal("expected error for missing strategy")
	}
}
