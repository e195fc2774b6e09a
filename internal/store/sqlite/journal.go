// Package sqlite persists the trade journal: every closed position is
// recorded for analysis and audit. Durability is best-effort; the engine
// never blocks on journal failures.
package sqlite

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"portfolio-riskv1/internal/model"
)

// Journal persists closed positions to SQLite.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id  TEXT NOT NULL,
		asset        TEXT NOT NULL,
		side         TEXT NOT NULL,
		size         REAL NOT NULL,
		entry_price  REAL NOT NULL,
		exit_price   REAL NOT NULL,
		pnl          REAL NOT NULL,
		fees         REAL NOT NULL,
		opened_at    DATETIME NOT NULL,
		closed_at    DATETIME NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_asset ON trades(asset);
	CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// DB exposes the underlying handle for liveness checks.
func (j *Journal) DB() *sql.DB { return j.db }

// ArchiveTrade persists a closed position to the journal.
func (j *Journal) ArchiveTrade(p model.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (position_id, asset, side, size, entry_price, exit_price, pnl, fees, opened_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Asset,
		string(p.Side),
		p.Size,
		p.EntryPrice,
		p.ExitPrice,
		p.PnL,
		p.Fees,
		p.EntryTime.Format(time.RFC3339),
		p.ExitTime.Format(time.RFC3339),
	)
	return err
}

// PositionOpened satisfies the ledger observer interface; opens are not
// journaled.
func (j *Journal) PositionOpened(p model.Position) {}

// PositionClosed archives the closed position, logging on failure.
func (j *Journal) PositionClosed(p model.Position) {
	if err := j.ArchiveTrade(p); err != nil {
		log.Printf("[journal] archive %s failed: %v", p.ID, err)
	}
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID         int64   `json:"id"`
	PositionID string  `json:"position_id"`
	Asset      string  `json:"asset"`
	Side       string  `json:"side"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	PnL        float64 `json:"pnl"`
	Fees       float64 `json:"fees"`
	OpenedAt   string  `json:"opened_at"`
	ClosedAt   string  `json:"closed_at"`
}

// GetTrades returns the last N trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, position_id, asset, side, size, entry_price, exit_price, pnl, fees, opened_at, closed_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.PositionID, &t.Asset, &t.Side, &t.Size,
			&t.EntryPrice, &t.ExitPrice, &t.PnL, &t.Fees, &t.OpenedAt, &t.ClosedAt); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
