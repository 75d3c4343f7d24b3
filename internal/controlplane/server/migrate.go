package server

import (
	"context"
	"fmt"
	"time"
)

func (s *Server) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS trades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp TEXT NOT NULL,
  symbol TEXT NOT NULL,
  exchange TEXT NOT NULL DEFAULT 'NSE',
  action TEXT NOT NULL CHECK(action IN ('BUY', 'SELL')),
  quantity INTEGER NOT NULL,
  price REAL NOT NULL,
  net_amount REAL NOT NULL,
  strategy TEXT,
  pnl_net REAL,
  broker TEXT NOT NULL DEFAULT 'LIVE'
);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades(symbol, timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_action_ts ON trades(action, timestamp);`,
		`
CREATE TABLE IF NOT EXISTS system_control (
  key TEXT PRIMARY KEY,
  value TEXT,
  updated_at TEXT
);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
