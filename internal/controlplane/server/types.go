package server

import "time"

const tsLayout = "2006-01-02T15:04:05"

// Trade is one fill as stored. Prices are REAL in SQLite.
type Trade struct {
	ID        int64    `json:"id"`
	Timestamp string   `json:"timestamp"`
	Symbol    string   `json:"symbol"`
	Exchange  string   `json:"exchange"`
	Action    string   `json:"action"` // BUY | SELL
	Quantity  int64    `json:"quantity"`
	Price     float64  `json:"price"`
	NetAmount float64  `json:"net_amount"`
	Strategy  string   `json:"strategy"`
	PnLNet    *float64 `json:"pnl_net"`
	Broker    string   `json:"broker"`
}

// NewTrade fills timestamp, exchange, broker and net amount defaults.
func NewTrade(at time.Time, symbol, action string, qty int64, price float64) Trade {
	return Trade{
		Timestamp: at.Format(tsLayout),
		Symbol:    symbol,
		Exchange:  "NSE",
		Action:    action,
		Quantity:  qty,
		Price:     price,
		NetAmount: float64(qty) * price,
		Broker:    "LIVE",
	}
}

// positionRow is an open position aggregated from trades.
type positionRow struct {
	Symbol        string  `json:"symbol"`
	Exchange      string  `json:"exchange"`
	NetQuantity   int64   `json:"net_quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	FirstBuyTime  string  `json:"first_buy_time"`
	TotalInvested float64 `json:"total_invested"`
}
