package server

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const liveFilter = "broker != 'PAPER'"

func (s *Server) InsertTrade(ctx context.Context, t Trade) (int64, error) {
	t.Action = strings.ToUpper(strings.TrimSpace(t.Action))
	if t.Action != "BUY" && t.Action != "SELL" {
		return 0, fmt.Errorf("invalid action %q", t.Action)
	}
	if t.Exchange == "" {
		t.Exchange = "NSE"
	}
	if t.Broker == "" {
		t.Broker = "LIVE"
	}
	var pnl any
	if t.PnLNet != nil {
		pnl = *t.PnLNet
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO trades(timestamp, symbol, exchange, action, quantity, price, net_amount, strategy, pnl_net, broker)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Timestamp, strings.ToUpper(t.Symbol), t.Exchange, t.Action, t.Quantity, t.Price, t.NetAmount,
		nullIfEmpty(t.Strategy), pnl, t.Broker,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const tradeColumns = `id, timestamp, symbol, exchange, action, quantity, price, net_amount, COALESCE(strategy, ''), pnl_net, broker`

func scanTrades(rows *sql.Rows) ([]Trade, error) {
	defer rows.Close()
	out := []Trade{}
	for rows.Next() {
		var t Trade
		var pnl sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.Timestamp, &t.Symbol, &t.Exchange, &t.Action, &t.Quantity, &t.Price,
			&t.NetAmount, &t.Strategy, &pnl, &t.Broker); err != nil {
			return nil, err
		}
		if pnl.Valid {
			v := pnl.Float64
			t.PnLNet = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// recentTrades returns up to limit live trades, newest first.
func (s *Server) recentTrades(ctx context.Context, limit int) ([]Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE `+liveFilter+`
ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanTrades(rows)
}

// tradesOn returns the live trades of one calendar day ("2006-01-02"), oldest first.
func (s *Server) tradesOn(ctx context.Context, day string) ([]Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE `+liveFilter+`
AND substr(timestamp, 1, 10) = ? ORDER BY timestamp ASC, id ASC`, day)
	if err != nil {
		return nil, err
	}
	return scanTrades(rows)
}

func (s *Server) openPositions(ctx context.Context) ([]positionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, exchange,
       SUM(CASE WHEN action = 'BUY' THEN quantity ELSE -quantity END) AS net_quantity,
       COALESCE(AVG(CASE WHEN action = 'BUY' THEN price END), 0) AS avg_entry_price,
       COALESCE(MIN(CASE WHEN action = 'BUY' THEN timestamp END), '') AS first_buy_time,
       SUM(CASE WHEN action = 'BUY' THEN net_amount ELSE 0 END) AS total_invested
FROM trades
WHERE `+liveFilter+`
GROUP BY symbol, exchange
HAVING net_quantity > 0
ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []positionRow{}
	for rows.Next() {
		var p positionRow
		if err := rows.Scan(&p.Symbol, &p.Exchange, &p.NetQuantity, &p.AvgEntryPrice, &p.FirstBuyTime, &p.TotalInvested); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// controlFlag reads a system_control value, returning def when unset.
func (s *Server) controlFlag(ctx context.Context, key, def string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_control WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	if !v.Valid || v.String == "" {
		return def, nil
	}
	return v.String, nil
}

func (s *Server) setControlFlag(ctx context.Context, key, value, updatedAt string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO system_control(key, value, updated_at) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, updatedAt)
	return err
}
