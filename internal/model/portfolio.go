package model

// Portfolio is the cash/margin view of the account.
//
// Invariants maintained by the ledger: Cash decreases by notional+fee on
// open and increases by exitValue-fee on close; MarginUsed is exactly the
// sum of entry notionals of currently-open positions.
type Portfolio struct {
	Cash       float64 `json:"cash"`
	MarginUsed float64 `json:"margin_used"`
	TotalValue float64 `json:"total_value"`
	PeakValue  float64 `json:"peak_value"`
}

// PerformanceStats summarizes closed-trade performance.
type PerformanceStats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	WinRate       float64 `json:"win_rate"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
}
