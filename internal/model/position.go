package model

import "time"

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Status is the lifecycle state of a position. A position transitions
// Open -> Closed exactly once.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Position represents a single leveraged position. At most one Open
// position exists per asset; the ledger owns all mutations.
type Position struct {
	ID         string    `json:"id"`
	Asset      string    `json:"asset"`
	Side       Side      `json:"side"`
	Size       float64   `json:"size"` // always > 0; direction is in Side
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	StopLoss   float64   `json:"stop_loss"`   // fixed at open, no trailing
	TakeProfit float64   `json:"take_profit"` // fixed at open
	Status     Status    `json:"status"`
	PnL        float64   `json:"pnl"`  // realized, set on close
	Fees       float64   `json:"fees"` // entry + exit fees
	ExitPrice  float64   `json:"exit_price,omitempty"`
	ExitTime   time.Time `json:"exit_time,omitempty"`
}

// Notional returns the entry notional (size x entry price).
func (p *Position) Notional() float64 {
	return p.Size * p.EntryPrice
}

// UnrealizedPnL computes the mark-to-market P&L at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == SideLong {
		return (price - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - price) * p.Size
}
