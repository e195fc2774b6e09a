package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the engine from concrete storage implementations
// (Redis, SQLite). Each implementation satisfies one or more of these.

// TradeArchiver persists closed positions for audit and analysis.
type TradeArchiver interface {
	// ArchiveTrade persists a closed position.
	ArchiveTrade(p Position) error

	// Close releases underlying resources.
	Close() error
}

// StateWriter publishes live engine state for external consumers.
type StateWriter interface {
	// WriteSnapshot publishes the latest market snapshot for an asset.
	WriteSnapshot(ctx context.Context, snap MarketSnapshot) error

	// WriteRiskState publishes the current risk assessment.
	WriteRiskState(ctx context.Context, state RiskState) error

	// WritePositions publishes the current open position set.
	WritePositions(ctx context.Context, positions []Position) error

	// Close releases underlying resources.
	Close() error
}
