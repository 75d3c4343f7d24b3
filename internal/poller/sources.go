package poller

import (
	"context"
	"strconv"
	"time"

	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/remote"
	"github.com/betbot/botdash/internal/viewstate"
	"github.com/betbot/botdash/pkg/config"
)

// Source is one endpoint polled each cycle. Fetch returns a func that writes
// the fresh value into the cycle's patch, or nil when the fetch failed.
type Source struct {
	Name     string
	Critical bool // its failure marks the remote OFFLINE
	Fetch    func(ctx context.Context) func(*viewstate.Patch)
}

// Profile is the set of sources one screen polls, and how often.
type Profile struct {
	Name     string
	Interval time.Duration
	Sources  []Source
}

const (
	ProfileDashboard = "dashboard"
	ProfileActivity  = "activity"
)

// DashboardProfile: engine status (critical), positions, logs, capital, pnl.
func DashboardProfile(c *remote.Client, cfg config.PollConfig) Profile {
	return Profile{
		Name:     ProfileDashboard,
		Interval: cfg.DashboardInterval,
		Sources: []Source{
			StatusSource(c, true),
			PositionsSource(c),
			LogsSource(c, cfg.LogsLimit),
			CapitalSource(c),
			PnLSource(c),
		},
	}
}

// ActivityProfile: control flag (critical), positions, recent trades, history.
func ActivityProfile(c *remote.Client, cfg config.PollConfig) Profile {
	return Profile{
		Name:     ProfileActivity,
		Interval: cfg.ActivityInterval,
		Sources: []Source{
			ControlStatusSource(c, true),
			PositionsSource(c),
			TradesSource(c, cfg.TradesLimit),
			HistorySource(c, 7),
		},
	}
}

func limitQuery(key string, n int) map[string]string {
	if n <= 0 {
		return nil
	}
	return map[string]string{key: strconv.Itoa(n)}
}

func StatusSource(c *remote.Client, critical bool) Source {
	return Source{
		Name:     "status",
		Critical: critical,
		Fetch: func(ctx context.Context) func(*viewstate.Patch) {
			r := remote.Fetch[controlapi.StatusResponse](ctx, c, controlapi.PathStatus, nil)
			if r == nil {
				return nil
			}
			e := ToEngineStatus(*r)
			return func(p *viewstate.Patch) { p.Engine = &e }
		},
	}
}

func PositionsSource(c *remote.Client) Source {
	return Source{
		Name: "positions",
		Fetch: func(ctx context.Context) func(*viewstate.Patch) {
			r := remote.Fetch[controlapi.Positions](ctx, c, controlapi.PathPositions, nil)
			if r == nil {
				return nil
			}
			rows := ToPositions(*r)
			return func(p *viewstate.Patch) { p.Positions = &rows }
		},
	}
}

func LogsSource(c *remote.Client, limit int) Source {
	return Source{
		Name: "logs",
		Fetch: func(ctx context.Context) func(*viewstate.Patch) {
			r := remote.Fetch[controlapi.LogsResponse](ctx, c, controlapi.PathLogs, limitQuery("limit", limit))
			if r == nil {
				return nil
			}
			lines := append([]string{}, r.Logs...)
			return func(p *viewstate.Patch) { p.Logs = &lines }
		},
	}
}

func CapitalSource(c *remote.Client) Source {
	return Source{
		Name: "capital",
		Fetch: func(ctx context.Context) func(*viewstate.Patch) {
			r := remote.Fetch[controlapi.CapitalResponse](ctx, c, controlapi.PathCapital, nil)
			if r == nil {
				return nil
			}
			cp := ToCapital(*r)
			return func(p *viewstate.Patch) { p.Capital = &cp }
		},
	}
}

func PnLSource(c *remote.Client) Source {
	return Source{
		Name: "pnl",
		Fetch: func(ctx context.Context) func(*viewstate.Patch) {
			r := remote.Fetch[controlapi.PnLResponse](ctx, c, controlapi.PathPnL, nil)
			if r == nil {
				return nil
			}
			v := viewstate.PnL{Amount: r.PnL, TradesCount: r.TradesCount, ProfitableCount: r.ProfitableCount}
			return func(p *viewstate.Patch) { p.PnL = &v }
		},
	}
}

func TradesSource(c *remote.Client, limit int) Source {
	return Source{
		Name: "trades",
		Fetch: func(ctx context.Context) func(*viewstate.Patch) {
			r := remote.Fetch[controlapi.Trades](ctx, c, controlapi.PathTradesRecent, limitQuery("limit", limit))
			if r == nil {
				return nil
			}
			rows := ToTrades(*r)
			return func(p *viewstate.Patch) { p.Trades = &rows }
		},
	}
}

func ControlStatusSource(c *remote.Client, critical bool) Source {
	return Source{
		Name:     "control_status",
		Critical: critical,
		Fetch: func(ctx context.Context) func(*viewstate.Patch) {
			r := remote.Fetch[controlapi.ControlStatusResponse](ctx, c, controlapi.PathControlStatus, nil)
			if r == nil {
				return nil
			}
			cs := viewstate.ParseCommandState(r.Status)
			return func(p *viewstate.Patch) { p.ControlStatus = &cs }
		},
	}
}

func HistorySource(c *remote.Client, days int) Source {
	return Source{
		Name: "history",
		Fetch: func(ctx context.Context) func(*viewstate.Patch) {
			r := remote.Fetch[controlapi.TradeHistoryResponse](ctx, c, controlapi.PathTradesHistory, limitQuery("days", days))
			if r == nil {
				return nil
			}
			h := ToHistory(*r)
			return func(p *viewstate.Patch) { p.History = &h }
		},
	}
}
