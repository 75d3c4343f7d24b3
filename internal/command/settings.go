package command

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/remote"
	"github.com/betbot/botdash/pkg/cache"
)

// stocksTTL bounds how long a fetched stock list is reused; any write drops it.
const stocksTTL = 2 * time.Second

// Settings edits the bot's configuration through /api/settings and /api/stocks.
// It is not part of the view state; the settings screen keeps its own copy.
type Settings struct {
	client *remote.Client
	stocks *cache.InMemoryCache[string, []controlapi.StockConfig]
}

func NewSettings(c *remote.Client) *Settings {
	return &Settings{
		client: c,
		stocks: cache.NewInMemoryCache[string, []controlapi.StockConfig](stocksTTL),
	}
}

// Load returns the full settings map, or false when it could not be read.
func (s *Settings) Load(ctx context.Context) (map[string]any, bool) {
	m := remote.Fetch[map[string]any](ctx, s.client, controlapi.PathSettings, nil)
	if m == nil {
		return nil, false
	}
	if *m == nil {
		return map[string]any{}, true
	}
	return *m, true
}

// Update merges patch into the settings at the top level.
func (s *Settings) Update(ctx context.Context, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	return s.mutate(ctx, http.MethodPost, controlapi.PathSettings, patch, nil)
}

func (s *Settings) Stocks(ctx context.Context) ([]controlapi.StockConfig, bool) {
	key := s.client.BaseURL()
	if rows, ok := s.stocks.Get(key); ok {
		return append([]controlapi.StockConfig(nil), rows...), true
	}
	rows := remote.Fetch[[]controlapi.StockConfig](ctx, s.client, controlapi.PathStocks, nil)
	if rows == nil {
		return nil, false
	}
	s.stocks.Set(key, *rows, 0)
	return append([]controlapi.StockConfig(nil), (*rows)...), true
}

// SaveStock adds or replaces one instrument. Symbol and exchange are
// upper-cased; an empty exchange means NSE.
func (s *Settings) SaveStock(ctx context.Context, stock controlapi.StockConfig) error {
	stock = stock.Normalize()
	if stock.Symbol == "" {
		return errors.New("symbol is required")
	}
	return s.mutate(ctx, http.MethodPost, controlapi.PathStocks, stock, nil)
}

func (s *Settings) DeleteStock(ctx context.Context, symbol, exchange string) error {
	stock := controlapi.StockConfig{Symbol: symbol, Exchange: exchange}.Normalize()
	if stock.Symbol == "" {
		return errors.New("symbol is required")
	}
	path := controlapi.PathStocks + "/" + url.PathEscape(stock.Symbol)
	return s.mutate(ctx, http.MethodDelete, path, nil, map[string]string{"exchange": stock.Exchange})
}

func (s *Settings) mutate(ctx context.Context, method, path string, body any, query map[string]string) error {
	s.stocks.Clear()
	resp, err := s.client.Do(ctx, method, path, &remote.RequestOptions{Body: body, Query: query})
	if err != nil {
		return errors.Wrap(err, "settings")
	}
	if !resp.OK() {
		return errors.Errorf("%s %s: %d %s", method, path, resp.Status, controlapi.DetailFromBody(resp.Body))
	}
	var res controlapi.ControlResult
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &res) == nil && res.Status == "error" {
		return errors.Errorf("%s %s: %s", method, path, res.Message)
	}
	log.Infof("%s %s ok", method, path)
	return nil
}
