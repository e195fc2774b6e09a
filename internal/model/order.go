package model

// Order is a trade proposal produced by the strategy evaluator and
// submitted to the ledger. Close=true proposes closing the existing
// position for Asset instead of opening a new one.
type Order struct {
	Asset    string  `json:"asset"`
	Side     Side    `json:"side"`
	Size     float64 `json:"size"`
	Strategy string  `json:"strategy"`
	Reason   string  `json:"reason"`
	Close    bool    `json:"close"`
}
