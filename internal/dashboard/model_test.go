package dashboard

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/botdash/internal/command"
	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/poller"
	"github.com/betbot/botdash/internal/session"
	"github.com/betbot/botdash/internal/viewstate"
)

type fakeController struct {
	mu    sync.Mutex
	store *viewstate.Store

	authed      bool
	healthy     bool
	loginWith   [2]string
	loginRes    session.LoginResult
	mounted     string
	refreshes   int
	dispatched  []command.Action
	dispatchErr error
	stocks      []controlapi.StockConfig
	onMount     func(profile string)
}

func newFake() *fakeController {
	return &fakeController{store: viewstate.New(), healthy: true}
}

func (f *fakeController) Store() *viewstate.Store { return f.store }
func (f *fakeController) BaseURL() string         { return "http://bot.test:8000" }

func (f *fakeController) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

func (f *fakeController) setAuthed(v bool) {
	f.mu.Lock()
	f.authed = v
	f.mu.Unlock()
}

func (f *fakeController) CheckHealth(context.Context) bool { return f.healthy }

func (f *fakeController) Login(_ context.Context, u, p string) session.LoginResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginWith = [2]string{u, p}
	if f.loginRes.Success {
		f.authed = true
	}
	return f.loginRes
}

func (f *fakeController) Logout() { f.setAuthed(false) }

func (f *fakeController) Mount(_ context.Context, profile string) error {
	f.mu.Lock()
	if !f.authed {
		f.mu.Unlock()
		return poller.ErrUnauthenticated
	}
	f.mounted = profile
	hook := f.onMount
	f.mu.Unlock()
	if hook != nil {
		hook(profile)
	}
	return nil
}

func (f *fakeController) Unmount() {
	f.mu.Lock()
	f.mounted = ""
	f.mu.Unlock()
}

func (f *fakeController) Refresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return true
}

func (f *fakeController) Dispatch(_ context.Context, a command.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, a)
	return f.dispatchErr
}

func (f *fakeController) Stocks(context.Context) ([]controlapi.StockConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]controlapi.StockConfig(nil), f.stocks...), true
}

func (f *fakeController) SaveStock(_ context.Context, st controlapi.StockConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stocks = append(f.stocks, st)
	return nil
}

func (f *fakeController) DeleteStock(_ context.Context, symbol, exchange string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, st := range f.stocks {
		if st.Symbol == symbol && st.Exchange == exchange {
			f.stocks = append(f.stocks[:i], f.stocks[i+1:]...)
			return nil
		}
	}
	return errors.New("Stock not found")
}

func newTestModel(t *testing.T, f *fakeController) model {
	t.Helper()
	sub, cancel := f.store.Subscribe()
	t.Cleanup(cancel)
	return newModel(context.Background(), f, sub)
}

// drain runs cmd and expands batches. Only for commands that do not tick.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, drain(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(model)
	require.True(t, ok)
	return mm, cmd
}

func TestStartsOnLoginWithoutSession(t *testing.T) {
	f := newFake()
	m := newTestModel(t, f)
	assert.Equal(t, screenLogin, m.screen)

	f.setAuthed(true)
	m = newTestModel(t, f)
	assert.Equal(t, screenMain, m.screen)
}

func TestLoginFlow(t *testing.T) {
	f := newFake()
	f.loginRes = session.LoginResult{Success: true}
	m := newTestModel(t, f)
	m.user.SetValue("admin")
	m.pass.SetValue("changeme123")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.pass.Focused(), "第一次回车应切换到密码框")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.busy)
	require.NotNil(t, cmd)

	msg := m.submitLogin()()
	assert.Equal(t, [2]string{"admin", "changeme123"}, f.loginWith)

	m, cmd = update(t, m, msg)
	assert.Equal(t, screenMain, m.screen)
	assert.False(t, m.busy)
	assert.Empty(t, m.pass.Value())
	msgs := drain(cmd)
	require.Len(t, msgs, 1)
	assert.Equal(t, mountMsg{}, msgs[0])
	assert.Equal(t, poller.ProfileDashboard, f.mounted)
}

func TestLoginFailureStaysOnLogin(t *testing.T) {
	f := newFake()
	m := newTestModel(t, f)
	m.busy = true
	m, cmd := update(t, m, loginMsg{res: session.LoginResult{Error: "Invalid username or password"}})
	assert.Nil(t, cmd)
	assert.Equal(t, screenLogin, m.screen)
	assert.False(t, m.busy)
	assert.Contains(t, m.View(), "Invalid username or password")
}

func TestHealthBadge(t *testing.T) {
	f := newFake()
	m := newTestModel(t, f)
	assert.Contains(t, m.View(), "checking")
	m, _ = update(t, m, healthMsg{ok: false})
	assert.Contains(t, m.View(), "server unreachable")

	// submit is refused while the server is down and a new probe is sent
	m.user.Blur()
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.busy)
	assert.Equal(t, "server unreachable", m.loginErr)
	require.NotNil(t, cmd)
	assert.IsType(t, healthMsg{}, cmd())

	m, _ = update(t, m, m.checkHealth()())
	assert.Contains(t, m.View(), "server up")
}

func mainModel(t *testing.T) (model, *fakeController) {
	f := newFake()
	f.setAuthed(true)
	return newTestModel(t, f), f
}

func TestTabSwitchRemounts(t *testing.T) {
	m, f := mainModel(t)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, tabActivity, m.tab)
	drain(cmd)
	assert.Equal(t, poller.ProfileActivity, f.mounted)

	f.stocks = []controlapi.StockConfig{{Symbol: "INFY", Exchange: "NSE"}}
	m, cmd = update(t, m, runes("3"))
	assert.Equal(t, tabSettings, m.tab)
	for _, msg := range drain(cmd) {
		m, _ = update(t, m, msg)
	}
	assert.Empty(t, f.mounted, "设置页不轮询")
	require.Len(t, m.stocks, 1)

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, tabActivity, m.tab)
	drain(cmd)
	assert.Equal(t, poller.ProfileActivity, f.mounted)

	// same tab is a no-op
	_, cmd = update(t, m, runes("2"))
	assert.Nil(t, cmd)
}

func TestCommandKeys(t *testing.T) {
	m, f := mainModel(t)

	m, cmd := update(t, m, runes("s"))
	msgs := drain(cmd)
	require.Len(t, msgs, 1)
	m, _ = update(t, m, msgs[0])
	assert.Equal(t, "START sent", m.notice)

	f.dispatchErr = command.ErrCommandFailed
	m, cmd = update(t, m, runes("x"))
	m, _ = update(t, m, drain(cmd)[0])
	assert.Equal(t, "STOP failed", m.notice)
	assert.Equal(t, []command.Action{command.ActionStart, command.ActionStop}, f.dispatched)

	_, _ = update(t, m, runes("r"))
	assert.Equal(t, 1, f.refreshes)
}

func TestSessionLossReturnsToLogin(t *testing.T) {
	m, f := mainModel(t)
	f.setAuthed(false)
	m, _ = update(t, m, tickMsg(time.Now()))
	assert.Equal(t, screenLogin, m.screen)
	assert.NotEmpty(t, m.loginErr)
}

func TestLogoutKey(t *testing.T) {
	m, f := mainModel(t)
	f.mounted = poller.ProfileDashboard
	m, _ = update(t, m, runes("L"))
	assert.Equal(t, screenLogin, m.screen)
	assert.False(t, f.IsAuthenticated())
	assert.Empty(t, f.mounted)
}

func TestSettingsAddAndDelete(t *testing.T) {
	m, f := mainModel(t)
	m.tab = tabSettings

	m, _ = update(t, m, runes("a"))
	require.True(t, m.adding)
	m.stockInput.SetValue(" infy:bse ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.adding)
	m, cmd = update(t, m, drain(cmd)[0])
	m, _ = update(t, m, drain(cmd)[0])
	require.Len(t, m.stocks, 1)
	assert.Equal(t, controlapi.StockConfig{Symbol: "INFY", Exchange: "BSE"}, m.stocks[0])

	m, cmd = update(t, m, runes("d"))
	m, cmd = update(t, m, drain(cmd)[0])
	m, _ = update(t, m, drain(cmd)[0])
	assert.Empty(t, m.stocks)
	assert.Empty(t, m.stocksErr)

	// empty input never reaches the server
	m, _ = update(t, m, runes("a"))
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "Symbol is required", m.stocksErr)
}

func TestParseStock(t *testing.T) {
	tests := []struct {
		in   string
		want controlapi.StockConfig
		ok   bool
	}{
		{"reliance", controlapi.StockConfig{Symbol: "RELIANCE", Exchange: "NSE"}, true},
		{"tcs:bse", controlapi.StockConfig{Symbol: "TCS", Exchange: "BSE"}, true},
		{"  ", controlapi.StockConfig{Exchange: "NSE"}, false},
		{":NSE", controlapi.StockConfig{Exchange: "NSE"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseStock(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleState() viewstate.State {
	pnl := d("12.5")
	return viewstate.State{
		Engine:       &viewstate.EngineStatus{Status: "RUNNING", Running: true, Uptime: "0:05:00"},
		Positions:    []viewstate.Position{{Symbol: "NVDA", Quantity: d("10"), EntryPrice: d("700"), LastTradedPrice: d("726.13")}},
		Capital:      viewstate.Capital{Total: d("50000"), Deployed: d("7000"), Available: d("43000")},
		PnL:          viewstate.PnL{Amount: d("50"), TradesCount: 3, ProfitableCount: 1},
		Logs:         []string{"[10:00:00] Bot Loop Heartbeat"},
		Trades:       []viewstate.Trade{{Timestamp: "2026-03-02T09:30:00", Symbol: "AAPL", Action: "SELL", Quantity: d("5"), Price: d("200"), PnLNet: &pnl}},
		History:      viewstate.History{Points: []viewstate.HistoryPoint{{Time: "2026-03-02T09:30", PnL: d("1000"), Symbol: "AAPL", Action: "SELL"}}, TotalPnL: d("1000"), TradeCount: 1},
		Connectivity: viewstate.ConnectivityOnline,
		CommandState: viewstate.CommandRunning,
		Cycle:        4,
		LastUpdated:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local),
	}
}

func TestViewsRender(t *testing.T) {
	m, _ := mainModel(t)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})
	m, _ = update(t, m, stateMsg{state: sampleState()})

	v := m.View()
	assert.Contains(t, v, "ONLINE")
	assert.Contains(t, v, "Positions (1)")
	assert.Contains(t, v, "+261.30")
	assert.Contains(t, v, "Bot Loop Heartbeat")

	m.tab = tabActivity
	v = m.View()
	assert.Contains(t, v, "AAPL")
	assert.Contains(t, v, "+1000.00")

	m.tab = tabSettings
	assert.Contains(t, m.View(), "no stocks configured")
}

func TestSparkline(t *testing.T) {
	pts := func(vals ...string) []viewstate.HistoryPoint {
		out := make([]viewstate.HistoryPoint, len(vals))
		for i, v := range vals {
			out[i] = viewstate.HistoryPoint{PnL: d(v)}
		}
		return out
	}
	assert.Equal(t, "▁▁▁", sparkline(pts("5", "5", "5"), 10))
	assert.Equal(t, "▁▄█", sparkline(pts("0", "50", "100"), 10))
	assert.Equal(t, "▁█", sparkline(pts("0", "50", "100"), 2))
}

func TestSummary(t *testing.T) {
	s := Summary(sampleState())
	assert.True(t, strings.HasPrefix(s, "[10:00:00] ONLINE bot=RUNNING"), s)
	assert.Contains(t, s, "engine=RUNNING uptime=0:05:00")
	assert.Contains(t, s, "positions=1 open_pnl=261.30 pnl=50.00 trades=3")
	assert.Contains(t, s, "capital=7000.00/50000.00")

	st := sampleState()
	st.CommandError = "START command failed"
	assert.Contains(t, Summary(st), `error="START command failed"`)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestRunHeadless(t *testing.T) {
	f := newFake()
	f.loginRes = session.LoginResult{Success: true}
	f.onMount = func(string) {
		online := viewstate.ConnectivityOnline
		f.store.Publish(f.store.Begin(), viewstate.Patch{Connectivity: &online})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- RunHeadless(ctx, f, &out, HeadlessOptions{Username: "admin", Password: "pw"}) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "ONLINE") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, [2]string{"admin", "pw"}, f.loginWith)

	f.setAuthed(false)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionEnded)
	case <-time.After(3 * time.Second):
		t.Fatal("headless loop did not notice the session ending")
	}
}

func TestRunHeadlessNeedsCredentials(t *testing.T) {
	f := newFake()
	err := RunHeadless(context.Background(), f, &bytes.Buffer{}, HeadlessOptions{})
	assert.Error(t, err)

	f.loginRes = session.LoginResult{Error: "Invalid username or password"}
	err = RunHeadless(context.Background(), f, &bytes.Buffer{}, HeadlessOptions{Username: "a", Password: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid username or password")
}
