// Package controlapi holds the wire contract of the bot control plane:
// endpoint paths, request/response payloads and the tolerant decoders that
// normalize field-name variants before anything reaches the view state.
package controlapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	PathHealth        = "/health"
	PathLogin         = "/auth/login"
	PathStatus        = "/api/status"
	PathPositions     = "/api/positions"
	PathTradesRecent  = "/api/trades/recent"
	PathTradesHistory = "/api/trades/history"
	PathCapital       = "/api/capital"
	PathPnL           = "/api/pnl"
	PathLogs          = "/api/logs"
	PathControlSet    = "/api/control/set"
	PathControlStatus = "/api/control/status"
	PathControlStart  = "/api/control/start"
	PathControlStop   = "/api/control/stop"
	PathSettings      = "/api/settings"
	PathStocks        = "/api/stocks"
)

func init() {
	// the control plane speaks JSON numbers, not quoted decimals
	decimal.MarshalJSONWithoutQuotes = true
}

// Bot control flags as carried on the wire.
const (
	StatusRunning = "RUNNING"
	StatusStopped = "STOPPED"
	StatusUnknown = "UNKNOWN"
)

// Health values reported by GET /health.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Database string `json:"database,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Reachable reports whether the backend counts as up. Degraded is still up.
func (h HealthResponse) Reachable() bool {
	return !strings.EqualFold(h.Status, HealthUnhealthy)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse accepts both the plain {token} shape and the OAuth-like
// {access_token, token_type, expires_in} shape.
type LoginResponse struct {
	Token       string `json:"token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

func (r LoginResponse) SessionToken() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

// ErrorResponse is the {detail} body the control plane uses for 4xx/5xx.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error,omitempty"`
}

// DetailFromBody extracts a human message from an error body, falling back to the raw text.
func DetailFromBody(body []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(body))
}

type Counters struct {
	Attempts int64 `json:"attempts"`
	Success  int64 `json:"success"`
	Failed   int64 `json:"failed"`
}

type StatusResponse struct {
	Status    string    `json:"status"`
	Running   bool      `json:"running"`
	Uptime    string    `json:"uptime"`
	LastCycle *string   `json:"last_cycle"`
	Counters  *Counters `json:"counters,omitempty"`
}

// Position is a raw position row. Quantity and entry price come under two
// names depending on which backend produced the row.
type Position struct {
	Symbol        string           `json:"symbol"`
	Exchange      string           `json:"exchange,omitempty"`
	Qty           *decimal.Decimal `json:"qty,omitempty"`
	NetQuantity   *decimal.Decimal `json:"net_quantity,omitempty"`
	EntryPrice    *decimal.Decimal `json:"entry_price,omitempty"`
	AvgEntryPrice *decimal.Decimal `json:"avg_entry_price,omitempty"`
	LTP           *decimal.Decimal `json:"ltp,omitempty"`
	TotalInvested *decimal.Decimal `json:"total_invested,omitempty"`
}

// firstOf returns the first value that is present and non-zero. A zero under
// one name falls through to the other, matching how the dashboard reads rows.
func firstOf(vals ...*decimal.Decimal) decimal.Decimal {
	for _, v := range vals {
		if v != nil && !v.IsZero() {
			return *v
		}
	}
	return decimal.Zero
}

// Quantity returns qty, else net_quantity, else zero.
func (p Position) Quantity() decimal.Decimal {
	return firstOf(p.Qty, p.NetQuantity)
}

// Entry returns entry_price, else avg_entry_price, else zero.
func (p Position) Entry() decimal.Decimal {
	return firstOf(p.EntryPrice, p.AvgEntryPrice)
}

// LastTraded returns ltp, falling back to the entry price when the quote is
// missing or zero.
func (p Position) LastTraded() decimal.Decimal {
	if p.LTP != nil && !p.LTP.IsZero() {
		return *p.LTP
	}
	return p.Entry()
}

// Positions decodes either a bare array or a {count, positions} wrapper.
type Positions []Position

func (p *Positions) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = nil
		return nil
	}
	if b[0] == '[' {
		var rows []Position
		if err := json.Unmarshal(b, &rows); err != nil {
			return err
		}
		*p = rows
		return nil
	}
	var wrapped struct {
		Count     int        `json:"count"`
		Positions []Position `json:"positions"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return fmt.Errorf("positions payload: %w", err)
	}
	*p = wrapped.Positions
	return nil
}

type CapitalResponse struct {
	Total             decimal.Decimal `json:"total"`
	Deployed          decimal.Decimal `json:"deployed"`
	Available         decimal.Decimal `json:"available"`
	MaxPerStockPct    float64         `json:"max_per_stock_pct,omitempty"`
	DailyLossLimitPct float64         `json:"daily_loss_limit_pct,omitempty"`
}

type PnLResponse struct {
	PnL             decimal.Decimal `json:"pnl"`
	TradesCount     int             `json:"trades_count"`
	ProfitableCount int             `json:"profitable_count,omitempty"`
	Trades          []Trade         `json:"trades,omitempty"`
}

type LogsResponse struct {
	Logs []string `json:"logs"`
}

type Trade struct {
	ID        int64            `json:"id"`
	Timestamp string           `json:"timestamp"`
	Symbol    string           `json:"symbol"`
	Action    string           `json:"action"`
	Price     decimal.Decimal  `json:"price"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Strategy  string           `json:"strategy"`
	PnLNet    *decimal.Decimal `json:"pnl_net,omitempty"`
}

// Trades decodes either a bare array or a {trades:[...]} wrapper.
type Trades []Trade

func (t *Trades) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = nil
		return nil
	}
	if b[0] == '[' {
		var rows []Trade
		if err := json.Unmarshal(b, &rows); err != nil {
			return err
		}
		*t = rows
		return nil
	}
	var wrapped struct {
		Trades []Trade `json:"trades"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return fmt.Errorf("trades payload: %w", err)
	}
	*t = wrapped.Trades
	return nil
}

type HistoryPoint struct {
	Time   string          `json:"time"`
	PnL    decimal.Decimal `json:"pnl"`
	Symbol string          `json:"symbol"`
	Action string          `json:"action"`
}

type TradeHistoryResponse struct {
	Data       []HistoryPoint  `json:"data"`
	TotalPnL   decimal.Decimal `json:"total_pnl"`
	TradeCount int             `json:"trade_count"`
}

type ControlStatusResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

type ControlSetRequest struct {
	Status string `json:"status"`
}

// ControlResult is the body of control and settings mutations.
type ControlResult struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	NewState string `json:"new_state,omitempty"`
}

// StockConfig is one configured instrument. Unknown keys are kept in Extra so
// a read-modify-write through the console does not drop fields it does not know.
type StockConfig struct {
	Symbol   string
	Exchange string
	Extra    map[string]any
}

func (s StockConfig) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Extra)+2)
	for k, v := range s.Extra {
		m[k] = v
	}
	m["symbol"] = s.Symbol
	m["exchange"] = s.Exchange
	return json.Marshal(m)
}

func (s *StockConfig) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	sym, _ := m["symbol"].(string)
	exch, _ := m["exchange"].(string)
	delete(m, "symbol")
	delete(m, "exchange")
	s.Symbol = sym
	s.Exchange = exch
	if len(m) > 0 {
		s.Extra = m
	} else {
		s.Extra = nil
	}
	return nil
}

// Normalize upper-cases symbol and exchange and defaults the exchange to NSE.
func (s StockConfig) Normalize() StockConfig {
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	s.Exchange = strings.ToUpper(strings.TrimSpace(s.Exchange))
	if s.Exchange == "" {
		s.Exchange = "NSE"
	}
	return s
}
