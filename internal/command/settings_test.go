package command

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/remote"
)

// settingsServer keeps settings and stocks in memory with the control plane's semantics.
type settingsServer struct {
	mu       sync.Mutex
	settings  map[string]any
	stocks    []controlapi.StockConfig
	stockGets int
}

func (s *settingsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == controlapi.PathSettings && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(s.settings)
	case r.URL.Path == controlapi.PathSettings && r.Method == http.MethodPost:
		var patch map[string]any
		_ = json.NewDecoder(r.Body).Decode(&patch)
		for k, v := range patch {
			s.settings[k] = v
		}
		_, _ = w.Write([]byte(`{"status":"success","message":"Settings updated"}`))
	case r.URL.Path == controlapi.PathStocks && r.Method == http.MethodGet:
		s.stockGets++
		_ = json.NewEncoder(w).Encode(s.stocks)
	case r.URL.Path == controlapi.PathStocks && r.Method == http.MethodPost:
		var st controlapi.StockConfig
		_ = json.NewDecoder(r.Body).Decode(&st)
		s.stocks = append(s.stocks, st)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	case strings.HasPrefix(r.URL.Path, controlapi.PathStocks+"/") && r.Method == http.MethodDelete:
		sym := strings.TrimPrefix(r.URL.Path, controlapi.PathStocks+"/")
		exch := r.URL.Query().Get("exchange")
		for i, st := range s.stocks {
			if st.Symbol == sym && st.Exchange == exch {
				s.stocks = append(s.stocks[:i], s.stocks[i+1:]...)
				_, _ = w.Write([]byte(`{"status":"success"}`))
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Stock not found"}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newSettings(t *testing.T) (*Settings, *settingsServer) {
	t.Helper()
	fake := &settingsServer{settings: map[string]any{"capital": map[string]any{"total": 50000.0}, "mode": "paper"}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewSettings(remote.NewClient(remote.Options{BaseURL: srv.URL, Timeout: time.Second})), fake
}

func TestSettingsLoadAndUpdate(t *testing.T) {
	s, _ := newSettings(t)
	ctx := context.Background()

	m, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "paper", m["mode"])

	require.NoError(t, s.Update(ctx, map[string]any{"mode": "live"}))
	m, ok = s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "live", m["mode"])
	// top-level merge keeps the other keys
	assert.Contains(t, m, "capital")

	assert.NoError(t, s.Update(ctx, nil))
}

func TestStocksCRUD(t *testing.T) {
	s, fake := newSettings(t)
	ctx := context.Background()

	require.NoError(t, s.SaveStock(ctx, controlapi.StockConfig{Symbol: " reliance ", Extra: map[string]any{"qty": 5.0}}))
	fake.mu.Lock()
	require.Len(t, fake.stocks, 1)
	assert.Equal(t, "RELIANCE", fake.stocks[0].Symbol)
	assert.Equal(t, "NSE", fake.stocks[0].Exchange)
	assert.Equal(t, 5.0, fake.stocks[0].Extra["qty"])
	fake.mu.Unlock()

	rows, ok := s.Stocks(ctx)
	require.True(t, ok)
	require.Len(t, rows, 1)

	// a second read within the TTL is served locally
	rows, ok = s.Stocks(ctx)
	require.True(t, ok)
	require.Len(t, rows, 1)
	fake.mu.Lock()
	assert.Equal(t, 1, fake.stockGets)
	fake.mu.Unlock()

	require.NoError(t, s.DeleteStock(ctx, "reliance", ""))
	err := s.DeleteStock(ctx, "reliance", "nse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Stock not found")

	// the delete dropped the cached list
	rows, ok = s.Stocks(ctx)
	require.True(t, ok)
	assert.Empty(t, rows)
	fake.mu.Lock()
	assert.Equal(t, 2, fake.stockGets)
	fake.mu.Unlock()

	assert.Error(t, s.SaveStock(ctx, controlapi.StockConfig{}))
}

func TestSettingsUnreachable(t *testing.T) {
	s := NewSettings(remote.NewClient(remote.Options{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}))
	_, ok := s.Load(context.Background())
	assert.False(t, ok)
	assert.Error(t, s.Update(context.Background(), map[string]any{"a": 1}))
}
