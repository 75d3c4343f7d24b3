package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/botdash/internal/controlapi"
)

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}

func queryInt(r *http.Request, key string, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	if n > ceiling {
		return ceiling
	}
	return n
}

func round2(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func (t Trade) api() controlapi.Trade {
	out := controlapi.Trade{
		ID:        t.ID,
		Timestamp: t.Timestamp,
		Symbol:    t.Symbol,
		Action:    t.Action,
		Price:     decimal.NewFromFloat(t.Price),
		Quantity:  decimal.NewFromInt(t.Quantity),
		Strategy:  t.Strategy,
	}
	if t.PnLNet != nil {
		p := decimal.NewFromFloat(*t.PnLNet)
		out.PnLNet = &p
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp := controlapi.HealthResponse{Status: controlapi.HealthHealthy, Version: Version}
	if err := s.db.PingContext(ctx); err != nil {
		resp.Status = controlapi.HealthDegraded
		resp.Database = "unavailable"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 200)
	writeJSON(w, http.StatusOK, controlapi.LogsResponse{Logs: s.logs.Tail(limit)})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	rows, err := s.openPositions(ctx)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"error": err.Error(), "positions": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "positions": rows})
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	trades, err := s.tradesOn(ctx, s.now().Format("2006-01-02"))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"error": err.Error(), "pnl": 0, "trades_count": 0})
		return
	}
	total := 0.0
	profitable := 0
	for _, t := range trades {
		if t.Action != "SELL" || t.PnLNet == nil {
			continue
		}
		total += *t.PnLNet
		if *t.PnLNet > 0 {
			profitable++
		}
	}
	last := trades
	if len(last) > 10 {
		last = last[len(last)-10:]
	}
	resp := controlapi.PnLResponse{
		PnL:             round2(total),
		TradesCount:     len(trades),
		ProfitableCount: profitable,
		Trades:          make([]controlapi.Trade, 0, len(last)),
	}
	for _, t := range last {
		resp.Trades = append(resp.Trades, t.api())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCapital(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	total, maxPerStock, dailyLoss := s.settings.capital()
	deployed := 0.0
	if rows, err := s.openPositions(ctx); err == nil {
		for _, p := range rows {
			deployed += p.AvgEntryPrice * float64(p.NetQuantity)
		}
	} else {
		log.WithError(err).Warn("capital: positions unavailable")
	}
	writeJSON(w, http.StatusOK, controlapi.CapitalResponse{
		Total:             decimal.NewFromFloat(total),
		Deployed:          round2(deployed),
		Available:         round2(total - deployed),
		MaxPerStockPct:    maxPerStock,
		DailyLossLimitPct: dailyLoss,
	})
}

func (s *Server) handleTradesRecent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	trades, err := s.recentTrades(ctx, queryInt(r, "limit", 10, 500))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// handleTradesHistory builds a cumulative series from the last 100 trades.
// Only SELL proceeds move the curve; days is accepted for compatibility.
func (s *Server) handleTradesHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	trades, err := s.recentTrades(ctx, 100)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"error": err.Error(), "data": []any{}})
		return
	}
	points := make([]controlapi.HistoryPoint, 0, len(trades))
	cumulative := decimal.Zero
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.Action == "SELL" {
			cumulative = cumulative.Add(decimal.NewFromFloat(t.NetAmount))
		}
		ts := t.Timestamp
		if len(ts) > 16 {
			ts = ts[:16]
		}
		points = append(points, controlapi.HistoryPoint{
			Time:   ts,
			PnL:    cumulative.Round(2),
			Symbol: t.Symbol,
			Action: t.Action,
		})
	}
	if len(points) > 50 {
		points = points[len(points)-50:]
	}
	writeJSON(w, http.StatusOK, controlapi.TradeHistoryResponse{
		Data:       points,
		TotalPnL:   cumulative.Round(2),
		TradeCount: len(trades),
	})
}
