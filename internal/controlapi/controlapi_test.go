package controlapi

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPositionsDecodeShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		symbols []string
		wantErr bool
	}{
		{"bare array", `[{"symbol":"NVDA","qty":10}]`, []string{"NVDA"}, false},
		{"wrapped", `{"count":2,"positions":[{"symbol":"A"},{"symbol":"B"}]}`, []string{"A", "B"}, false},
		{"wrapped with error", `{"error":"Database not available","positions":[]}`, nil, false},
		{"null", `null`, nil, false},
		{"malformed", `{"positions":"nope"}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ps Positions
			err := json.Unmarshal([]byte(tt.body), &ps)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, p := range ps {
				got = append(got, p.Symbol)
			}
			assert.Equal(t, tt.symbols, got)
		})
	}
}

func TestPositionFieldVariants(t *testing.T) {
	var ps Positions
	require.NoError(t, json.Unmarshal([]byte(`[
		{"symbol":"NVDA","net_quantity":10,"avg_entry_price":700,"ltp":726.13},
		{"symbol":"AAPL","qty":"5","entry_price":"190.5"},
		{"symbol":"EMPTY"}
	]`), &ps))
	require.Len(t, ps, 3)

	nvda := ps[0]
	assert.True(t, nvda.Quantity().Equal(d("10")))
	assert.True(t, nvda.Entry().Equal(d("700")))
	assert.True(t, nvda.LastTraded().Equal(d("726.13")))

	aapl := ps[1]
	assert.True(t, aapl.Quantity().Equal(d("5")))
	assert.True(t, aapl.Entry().Equal(d("190.5")))
	// no quote: last traded falls back to entry
	assert.True(t, aapl.LastTraded().Equal(d("190.5")))

	empty := ps[2]
	assert.True(t, empty.Quantity().IsZero())
	assert.True(t, empty.Entry().IsZero())
}

func TestFieldVariantsFallThrough(t *testing.T) {
	tests := []struct {
		name            string
		raw             string
		qty, entry, ltp string
	}{
		{"qty wins when non-zero", `{"symbol":"X","qty":3,"net_quantity":7,"entry_price":1,"avg_entry_price":2,"ltp":4}`, "3", "1", "4"},
		{"zero falls through to alternate", `{"symbol":"X","qty":0,"net_quantity":10,"entry_price":0,"avg_entry_price":700,"ltp":0}`, "10", "700", "700"},
		{"zero ltp falls back to entry", `{"symbol":"X","qty":5,"entry_price":190.5,"ltp":0}`, "5", "190.5", "190.5"},
		{"all zero stays zero", `{"symbol":"X","qty":0,"net_quantity":0,"entry_price":0}`, "0", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Position
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &p))
			assert.True(t, p.Quantity().Equal(d(tt.qty)), "qty=%s", p.Quantity())
			assert.True(t, p.Entry().Equal(d(tt.entry)), "entry=%s", p.Entry())
			assert.True(t, p.LastTraded().Equal(d(tt.ltp)), "ltp=%s", p.LastTraded())
		})
	}
}

func TestLoginResponseToken(t *testing.T) {
	var a, b LoginResponse
	require.NoError(t, json.Unmarshal([]byte(`{"token":"t1"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"t2","token_type":"bearer","expires_in":86400}`), &b))
	assert.Equal(t, "t1", a.SessionToken())
	assert.Equal(t, "t2", b.SessionToken())
	assert.Equal(t, int64(86400), b.ExpiresIn)
}

func TestDetailFromBody(t *testing.T) {
	assert.Equal(t, "Invalid username or password", DetailFromBody([]byte(`{"detail":"Invalid username or password"}`)))
	assert.Equal(t, "boom", DetailFromBody([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "Bad Gateway", DetailFromBody([]byte("Bad Gateway\n")))
}

func TestHealthReachable(t *testing.T) {
	assert.True(t, HealthResponse{Status: HealthHealthy}.Reachable())
	assert.True(t, HealthResponse{Status: HealthDegraded}.Reachable())
	assert.False(t, HealthResponse{Status: HealthUnhealthy}.Reachable())
}

func TestTradesDecodeShapes(t *testing.T) {
	var a, b Trades
	require.NoError(t, json.Unmarshal([]byte(`[{"id":1,"symbol":"A","action":"BUY","price":10,"quantity":2}]`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"trades":[{"id":2,"symbol":"B","action":"SELL","pnl_net":-1.5}]}`), &b))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	require.NotNil(t, b[0].PnLNet)
	assert.True(t, b[0].PnLNet.Equal(d("-1.5")))
}

func TestStockConfigKeepsUnknownKeys(t *testing.T) {
	var s StockConfig
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"reliance","qty_limit":5,"enabled":true}`), &s))
	s = s.Normalize()
	assert.Equal(t, "RELIANCE", s.Symbol)
	assert.Equal(t, "NSE", s.Exchange)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "RELIANCE", m["symbol"])
	assert.Equal(t, "NSE", m["exchange"])
	assert.Equal(t, true, m["enabled"])
	assert.EqualValues(t, 5, m["qty_limit"])
}

func TestDecimalsMarshalAsNumbers(t *testing.T) {
	out, err := json.Marshal(CapitalResponse{Total: d("50000"), Deployed: d("7000"), Available: d("43000")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":50000,"deployed":7000,"available":43000}`, string(out))
}
