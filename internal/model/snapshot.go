package model

import (
	"encoding/json"
	"time"
)

// MarketSnapshot is the latest quote for one asset, overwritten on each
// feed update. Bid/Ask carry the spread used for entry/exit slippage.
type MarketSnapshot struct {
	Asset     string    `json:"asset"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Spread returns the ask-bid spread.
func (s *MarketSnapshot) Spread() float64 {
	return s.Ask - s.Bid
}

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (s *MarketSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// PricePoint is one entry in an asset's rolling price history.
type PricePoint struct {
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}
