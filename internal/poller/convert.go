package poller

import (
	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/viewstate"
)

func ToEngineStatus(r controlapi.StatusResponse) viewstate.EngineStatus {
	e := viewstate.EngineStatus{
		Status:  r.Status,
		Running: r.Running,
		Uptime:  r.Uptime,
	}
	if r.LastCycle != nil {
		e.LastCycle = *r.LastCycle
	}
	if r.Counters != nil {
		e.Counters = &viewstate.Counters{
			Attempts: r.Counters.Attempts,
			Success:  r.Counters.Success,
			Failed:   r.Counters.Failed,
		}
	}
	return e
}

// ToPositions resolves the qty/net_quantity and entry_price/avg_entry_price
// variants. A row without a non-zero ltp is priced at its entry.
func ToPositions(rows controlapi.Positions) []viewstate.Position {
	out := make([]viewstate.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, viewstate.Position{
			Symbol:          r.Symbol,
			Quantity:        r.Quantity(),
			EntryPrice:      r.Entry(),
			LastTradedPrice: r.LastTraded(),
		})
	}
	return out
}

func ToCapital(r controlapi.CapitalResponse) viewstate.Capital {
	return viewstate.Capital{Total: r.Total, Deployed: r.Deployed, Available: r.Available}
}

func ToTrades(rows controlapi.Trades) []viewstate.Trade {
	out := make([]viewstate.Trade, 0, len(rows))
	for _, r := range rows {
		t := viewstate.Trade{
			ID:        r.ID,
			Timestamp: r.Timestamp,
			Symbol:    r.Symbol,
			Action:    r.Action,
			Price:     r.Price,
			Quantity:  r.Quantity,
			Strategy:  r.Strategy,
		}
		if r.PnLNet != nil {
			v := *r.PnLNet
			t.PnLNet = &v
		}
		out = append(out, t)
	}
	return out
}

func ToHistory(r controlapi.TradeHistoryResponse) viewstate.History {
	h := viewstate.History{TotalPnL: r.TotalPnL, TradeCount: r.TradeCount}
	for _, p := range r.Data {
		h.Points = append(h.Points, viewstate.HistoryPoint{Time: p.Time, PnL: p.PnL, Symbol: p.Symbol, Action: p.Action})
	}
	return h
}
