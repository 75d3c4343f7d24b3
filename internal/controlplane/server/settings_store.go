package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/betbot/botdash/internal/controlapi"
)

const defaultTotalCapital = 50000.0

func defaultSettings() map[string]any {
	return map[string]any{
		"capital": map[string]any{
			"total_capital":        defaultTotalCapital,
			"max_per_stock_pct":    10,
			"daily_loss_limit_pct": 10,
		},
		"stocks": []any{},
	}
}

// settingsStore keeps the settings document, optionally mirrored to a YAML file.
type settingsStore struct {
	mu   sync.Mutex
	path string
	data map[string]any
}

func openSettings(path string) (*settingsStore, error) {
	st := &settingsStore{path: path, data: defaultSettings()}
	if path == "" {
		return st, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return st, st.flushLocked()
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	for k, v := range m {
		st.data[k] = v
	}
	return st, nil
}

func (s *settingsStore) flushLocked() error {
	if s.path == "" {
		return nil
	}
	b, err := yaml.Marshal(s.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Snapshot returns a deep copy safe to encode outside the lock.
func (s *settingsStore) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.data)
}

// Merge replaces top-level keys.
func (s *settingsStore) Merge(patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range patch {
		s.data[k] = v
	}
	return s.flushLocked()
}

func (s *settingsStore) capital() (total, maxPerStock, dailyLoss float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, maxPerStock, dailyLoss = defaultTotalCapital, 10, 10
	c, ok := s.data["capital"].(map[string]any)
	if !ok {
		return
	}
	if v, ok := toFloat(c["total_capital"]); ok {
		total = v
	}
	if v, ok := toFloat(c["max_per_stock_pct"]); ok {
		maxPerStock = v
	}
	if v, ok := toFloat(c["daily_loss_limit_pct"]); ok {
		dailyLoss = v
	}
	return
}

func (s *settingsStore) Stocks() []controlapi.StockConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stocksLocked()
}

func (s *settingsStore) stocksLocked() []controlapi.StockConfig {
	out := []controlapi.StockConfig{}
	raw, err := json.Marshal(s.data["stocks"])
	if err != nil {
		return out
	}
	var rows []controlapi.StockConfig
	if err := json.Unmarshal(raw, &rows); err != nil {
		return out
	}
	return append(out, rows...)
}

func (s *settingsStore) setStocksLocked(rows []controlapi.StockConfig) error {
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	var generic []any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	if generic == nil {
		generic = []any{}
	}
	s.data["stocks"] = generic
	return s.flushLocked()
}

// SaveStock replaces any entry with the same symbol and exchange.
func (s *settingsStore) SaveStock(st controlapi.StockConfig) error {
	st = st.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.stocksLocked()
	kept := rows[:0]
	for _, r := range rows {
		if r.Symbol == st.Symbol && r.Exchange == st.Exchange {
			continue
		}
		kept = append(kept, r)
	}
	return s.setStocksLocked(append(kept, st))
}

// DeleteStock reports whether a matching entry existed.
func (s *settingsStore) DeleteStock(symbol, exchange string) (bool, error) {
	key := controlapi.StockConfig{Symbol: symbol, Exchange: exchange}.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.stocksLocked()
	kept := rows[:0]
	found := false
	for _, r := range rows {
		if r.Symbol == key.Symbol && r.Exchange == key.Exchange {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return false, nil
	}
	return true, s.setStocksLocked(kept)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func deepCopy(m map[string]any) map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
