// Package feed provides the WebSocket market-data client. It connects
// to a JSON tick server, normalizes messages into model.MarketSnapshot
// values and strategy signals, and reconnects with exponential backoff
// on disconnect.
//
// The wire format is one JSON object per message, discriminated by the
// "type" field:
//
//	{"type":"tick","asset":"BTC-USD","price":43210.5,"bid":43209.0,"ask":43212.0,"volume":1250,"timestamp":"..."}
//	{"type":"signal","asset":"BTC-USD","strategy":"momentum","action":"BUY"}
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"portfolio-riskv1/internal/model"
	"portfolio-riskv1/internal/strategy"

	"github.com/gorilla/websocket"
)

// Signal is a strategy trigger received from the feed.
type Signal struct {
	Asset    string
	Strategy string
	Action   strategy.Action
}

// message is the raw wire envelope for both ticks and signals.
type message struct {
	Type string `json:"type"`

	Asset     string    `json:"asset"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`

	Strategy string `json:"strategy"`
	Action   string `json:"action"`
}

// Config holds configuration for the feed client.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// AuthToken, when set, is sent as a Bearer token on the handshake.
	AuthToken string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Client connects to the feed server and pushes snapshots into snapCh
// and signals into sigCh.
type Client struct {
	cfg Config

	// Optional hooks for metrics and health reporting.
	OnConnect   func()
	OnReconnect func()
}

// New creates a new feed Client. Returns an error if the URL is unparseable.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("feed: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feed: unsupported scheme %q", u.Scheme)
	}
	return &Client{cfg: cfg}, nil
}

// Start connects to the feed and streams until ctx is cancelled.
// Reconnects automatically on disconnect.
func (c *Client) Start(ctx context.Context, snapCh chan<- model.MarketSnapshot, sigCh chan<- Signal) error {
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := c.runOnce(ctx, snapCh, sigCh)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect
// or ctx cancel.
func (c *Client) runOnce(ctx context.Context, snapCh chan<- model.MarketSnapshot, sigCh chan<- Signal) error {
	var header http.Header
	if c.cfg.AuthToken != "" {
		header = http.Header{"Authorization": {"Bearer " + c.cfg.AuthToken}}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", c.cfg.URL)
	if c.OnConnect != nil {
		c.OnConnect()
	}

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}

		switch msg.Type {
		case "tick":
			snap, err := parseSnapshot(msg)
			if err != nil {
				log.Printf("[feed] bad tick: %v", err)
				continue
			}
			select {
			case snapCh <- snap:
			default:
				log.Println("[feed] snapCh full, dropping tick")
			}

		case "signal":
			sig, err := parseSignal(msg)
			if err != nil {
				log.Printf("[feed] bad signal: %v", err)
				continue
			}
			select {
			case sigCh <- sig:
			default:
				log.Println("[feed] sigCh full, dropping signal")
			}

		default:
			log.Printf("[feed] unknown message type %q", msg.Type)
		}
	}
}

// parseSnapshot validates a tick message and converts it into a snapshot.
func parseSnapshot(msg message) (model.MarketSnapshot, error) {
	if msg.Asset == "" {
		return model.MarketSnapshot{}, fmt.Errorf("missing asset")
	}
	if msg.Price <= 0 {
		return model.MarketSnapshot{}, fmt.Errorf("%s: non-positive price %v", msg.Asset, msg.Price)
	}

	bid, ask := msg.Bid, msg.Ask
	// Degenerate quotes collapse to the last price so that entry and
	// exit still have a sane reference.
	if bid <= 0 || ask <= 0 || ask < bid {
		bid, ask = msg.Price, msg.Price
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return model.MarketSnapshot{
		Asset:     msg.Asset,
		Price:     msg.Price,
		Bid:       bid,
		Ask:       ask,
		Volume:    msg.Volume,
		Timestamp: ts,
	}, nil
}

// parseSignal validates a signal message.
func parseSignal(msg message) (Signal, error) {
	if msg.Asset == "" {
		return Signal{}, fmt.Errorf("missing asset")
	}
	if msg.Strategy == "" {
		return Signal{}, fmt.Errorf("%s: missing strategy", msg.Asset)
	}

	var action strategy.Action
	switch strings.ToUpper(strings.TrimSpace(msg.Action)) {
	case "BUY":
		action = strategy.ActionBuy
	case "SELL":
		action = strategy.ActionSell
	default:
		return Signal{}, fmt.Errorf("%s: unknown action %q", msg.Asset, msg.Action)
	}

	return Signal{Asset: msg.Asset, Strategy: msg.Strategy, Action: action}, nil
}
