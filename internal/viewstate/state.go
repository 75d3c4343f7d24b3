// Package viewstate is the single process-wide view of the bot as the console
// sees it. Only the poll scheduler and the command dispatcher write to it;
// presentation code reads copies.
package viewstate

import (
	"time"

	"github.com/shopspring/decimal"
)

// Connectivity of the remote control plane as judged by the critical source.
type Connectivity string

const (
	ConnectivityChecking Connectivity = "CHECKING"
	ConnectivityOnline   Connectivity = "ONLINE"
	ConnectivityOffline  Connectivity = "OFFLINE"
)

// CommandState is the bot's run state as last requested or reported.
type CommandState string

const (
	CommandRunning CommandState = "RUNNING"
	CommandStopped CommandState = "STOPPED"
	CommandUnknown CommandState = "UNKNOWN"
)

// ParseCommandState maps a wire flag to a CommandState; anything unrecognised is UNKNOWN.
func ParseCommandState(s string) CommandState {
	switch CommandState(s) {
	case CommandRunning, CommandStopped:
		return CommandState(s)
	}
	return CommandUnknown
}

type Counters struct {
	Attempts int64
	Success  int64
	Failed   int64
}

type EngineStatus struct {
	Status    string // free text from the engine: RUNNING, STOPPED, STOPPING, ERROR...
	Running   bool
	Uptime    string
	LastCycle string
	Counters  *Counters // nil when the engine did not report counters
}

// Position is a normalized open position. P&L is derived, never stored.
type Position struct {
	Symbol          string
	Quantity        decimal.Decimal
	EntryPrice      decimal.Decimal
	LastTradedPrice decimal.Decimal
}

// PnL is (last traded - entry) * quantity.
func (p Position) PnL() decimal.Decimal {
	return p.LastTradedPrice.Sub(p.EntryPrice).Mul(p.Quantity)
}

type Capital struct {
	Total     decimal.Decimal
	Deployed  decimal.Decimal
	Available decimal.Decimal
}

// DeployedPct is deployed/total in percent, 0 when total is 0. Drift between
// the three fields is shown as reported.
func (c Capital) DeployedPct() float64 {
	if !c.Total.IsPositive() {
		return 0
	}
	return c.Deployed.Div(c.Total).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// DefaultCapital is shown before the first capital fetch lands.
func DefaultCapital() Capital {
	return Capital{
		Total:     decimal.NewFromInt(50000),
		Deployed:  decimal.Zero,
		Available: decimal.NewFromInt(50000),
	}
}

type PnL struct {
	Amount          decimal.Decimal
	TradesCount     int
	ProfitableCount int
}

type Trade struct {
	ID        int64
	Timestamp string
	Symbol    string
	Action    string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Strategy  string
	PnLNet    *decimal.Decimal
}

// HistoryPoint is one step of the cumulative realized P&L series.
type HistoryPoint struct {
	Time   string
	PnL    decimal.Decimal // cumulative up to and including this trade
	Symbol string
	Action string
}

type History struct {
	Points     []HistoryPoint
	TotalPnL   decimal.Decimal
	TradeCount int
}

// State is one consistent snapshot of everything the console displays.
type State struct {
	Engine        *EngineStatus // nil until the first status fetch lands
	Positions     []Position
	Capital       Capital
	PnL           PnL
	Logs          []string // last fetched page, most recent last
	Trades        []Trade
	History       History
	ControlStatus CommandState // server-reported control flag
	Connectivity  Connectivity

	CommandState CommandState // dispatcher-owned
	CommandError string       // dispatcher-owned, empty when the last command succeeded

	Cycle       uint64 // sequence of the most recent accepted publish
	LastUpdated time.Time
}

// EffectiveCommandState prefers the dispatcher's state and falls back to the
// server-reported control flag, then to the engine's running bit.
func (s State) EffectiveCommandState() CommandState {
	if s.CommandState != CommandUnknown && s.CommandState != "" {
		return s.CommandState
	}
	if s.ControlStatus != CommandUnknown && s.ControlStatus != "" {
		return s.ControlStatus
	}
	if s.Engine != nil {
		if s.Engine.Running {
			return CommandRunning
		}
		return CommandStopped
	}
	return CommandUnknown
}

// TotalPositionPnL sums derived P&L over all positions.
func (s State) TotalPositionPnL() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Positions {
		total = total.Add(p.PnL())
	}
	return total
}

func (s State) clone() State {
	out := s
	if s.Engine != nil {
		e := *s.Engine
		if s.Engine.Counters != nil {
			c := *s.Engine.Counters
			e.Counters = &c
		}
		out.Engine = &e
	}
	out.Positions = append([]Position(nil), s.Positions...)
	out.Logs = append([]string(nil), s.Logs...)
	out.Trades = make([]Trade, len(s.Trades))
	for i, t := range s.Trades {
		if t.PnLNet != nil {
			v := *t.PnLNet
			t.PnLNet = &v
		}
		out.Trades[i] = t
	}
	if len(s.Trades) == 0 {
		out.Trades = nil
	}
	out.History.Points = append([]HistoryPoint(nil), s.History.Points...)
	return out
}

func initialState() State {
	return State{
		Capital:       DefaultCapital(),
		ControlStatus: CommandUnknown,
		Connectivity:  ConnectivityChecking,
		CommandState:  CommandUnknown,
	}
}
