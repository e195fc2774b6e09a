// cmd/feedsim — Demo WebSocket feed server.
// Broadcasts simulated market snapshots and occasional strategy signals
// for running cmd/engine without real market connectivity.
//
// Message JSON shape matches the engine's feed wire format:
//
//	{"type":"tick","asset":"BTC-USD","price":43210.5,"bid":43209.0,"ask":43212.0,"volume":1250,"timestamp":"..."}
//	{"type":"signal","asset":"BTC-USD","strategy":"momentum","action":"BUY"}
//
// Config (env vars):
//
//	FEEDSIM_ADDR         — listen address (default: ":9001")
//	FEEDSIM_ASSETS       — comma-separated ASSET:PRICE pairs (default: "BTC-USD:43000,ETH-USD:2500,SOL-USD:95")
//	FEEDSIM_INTERVAL_MS  — broadcast interval milliseconds (default: "250")
//	FEEDSIM_SIGNAL_EVERY — emit one random signal every N ticks, 0 disables (default: "40")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wireMsg is the broadcast envelope for both ticks and signals.
type wireMsg struct {
	Type string `json:"type"`

	Asset     string    `json:"asset"`
	Price     float64   `json:"price,omitempty"`
	Bid       float64   `json:"bid,omitempty"`
	Ask       float64   `json:"ask,omitempty"`
	Volume    float64   `json:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	Strategy string `json:"strategy,omitempty"`
	Action   string `json:"action,omitempty"`
}

// instrument holds per-asset simulation state.
type instrument struct {
	Asset string
	Price float64
}

var strategies = []string{"momentum", "mean_reversion", "breakout", "scalping", "swing"}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop message
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends message JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Feed generator ──────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	newPrice := price * (1 + pct)
	if newPrice < 0.01 {
		newPrice = 0.01
	}
	return newPrice
}

func runGenerator(h *hub, instruments []instrument, intervalMs, signalEvery int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	tickCount := 0
	for range ticker.C {
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			price := instruments[i].Price

			// Spread of ~0.02% around the mid.
			halfSpread := price * 0.0001
			msg := wireMsg{
				Type:      "tick",
				Asset:     instruments[i].Asset,
				Price:     price,
				Bid:       price - halfSpread,
				Ask:       price + halfSpread,
				Volume:    float64(rand.Intn(5000) + 100),
				Timestamp: time.Now().UTC(),
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}

		tickCount++
		if signalEvery > 0 && tickCount%signalEvery == 0 {
			inst := instruments[rand.Intn(len(instruments))]
			action := "BUY"
			if rand.Intn(2) == 0 {
				action = "SELL"
			}
			sig := wireMsg{
				Type:     "signal",
				Asset:    inst.Asset,
				Strategy: strategies[rand.Intn(len(strategies))],
				Action:   action,
			}
			b, err := json.Marshal(sig)
			if err != nil {
				continue
			}
			log.Printf("[feedsim] signal: %s %s %s", sig.Strategy, sig.Action, sig.Asset)
			h.broadcast(b)
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo feed server...")

	addr := envOrDefault("FEEDSIM_ADDR", ":9001")
	assetsEnv := envOrDefault("FEEDSIM_ASSETS", "BTC-USD:43000,ETH-USD:2500,SOL-USD:95")
	intervalMs := envIntOrDefault("FEEDSIM_INTERVAL_MS", 250)
	signalEvery := envIntOrDefault("FEEDSIM_SIGNAL_EVERY", 40)

	instruments := parseInstruments(assetsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[feedsim] no assets configured via FEEDSIM_ASSETS")
	}
	log.Printf("[feedsim] instruments: %+v", instruments)
	log.Printf("[feedsim] broadcast interval: %dms, signal every %d ticks", intervalMs, signalEvery)

	h := newHub()

	go runGenerator(h, instruments, intervalMs, signalEvery)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 2)
		if len(seg) != 2 {
			log.Printf("[feedsim] skipping invalid asset spec: %q", part)
			continue
		}
		asset := strings.TrimSpace(seg[0])
		price, err := strconv.ParseFloat(strings.TrimSpace(seg[1]), 64)
		if err != nil || price <= 0 {
			log.Printf("[feedsim] skipping asset %q with bad price %q", asset, seg[1])
			continue
		}
		result = append(result, instrument{Asset: asset, Price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("[feedsim] invalid int for %s: %q, using %d", key, v, def)
	}
	return def
}
