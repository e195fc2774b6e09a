package model

import "time"

// RiskParams holds the configured risk limits. Immutable after load.
type RiskParams struct {
	MaxDrawdown        float64 `json:"max_drawdown"`        // fraction of peak, e.g. 0.15
	MaxDailyLoss       float64 `json:"max_daily_loss"`      // fraction of portfolio, e.g. 0.05
	MaxPositionSize    float64 `json:"max_position_size"`   // notional as fraction of portfolio
	MaxLeverage        float64 `json:"max_leverage"`        // totalValue / free equity
	MaxConcentration   float64 `json:"max_concentration"`   // per-asset fraction of portfolio
	VaRLimit           float64 `json:"var_limit"`           // VaR as fraction of portfolio
	CorrelationLimit   float64 `json:"correlation_limit"`   // pairwise return correlation
	LiquidityThreshold float64 `json:"liquidity_threshold"` // notional vs traded volume
}

// DefaultRiskParams returns conservative default limits.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		MaxDrawdown:        0.15,
		MaxDailyLoss:       0.05,
		MaxPositionSize:    0.10,
		MaxLeverage:        5.0,
		MaxConcentration:   0.30,
		VaRLimit:           0.10,
		CorrelationLimit:   0.70,
		LiquidityThreshold: 0.10,
	}
}

// Severity of a risk finding. Only CRITICAL findings block a trade.
type Severity string

const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Finding is one pre-trade check result or limit breach.
type Finding struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Value    float64  `json:"value"`
	Limit    float64  `json:"limit"`
	Message  string   `json:"message"`
}

// RiskLevel buckets the aggregate risk score.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "VERY_LOW"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskState is the continuously recomputed portfolio risk view.
type RiskState struct {
	CurrentDrawdown   float64            `json:"current_drawdown"`
	DailyPnL          float64            `json:"daily_pnl"`
	PortfolioVaR      float64            `json:"portfolio_var"`
	ConcentrationRisk map[string]float64 `json:"concentration_risk"` // asset -> fraction
	CorrelationRisk   map[string]float64 `json:"correlation_risk"`   // "A|B" -> coefficient
	LiquidityRisk     map[string]float64 `json:"liquidity_risk"`     // asset -> score
	RiskScore         float64            `json:"risk_score"`         // 0..100
	Level             RiskLevel          `json:"level"`
	Breaches          []Finding          `json:"breaches"`
	AssessedAt        time.Time          `json:"assessed_at"`
}

// PairKey builds the map key used for CorrelationRisk. The two assets
// are ordered lexically so (A,B) and (B,A) map to the same key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
