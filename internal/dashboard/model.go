package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/betbot/botdash/internal/command"
	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/poller"
	"github.com/betbot/botdash/internal/session"
	"github.com/betbot/botdash/internal/viewstate"
)

type screen int

const (
	screenLogin screen = iota
	screenMain
)

type tab int

const (
	tabDashboard tab = iota
	tabActivity
	tabSettings
	numTabs
)

var tabNames = [numTabs]string{"Dashboard", "Activity", "Settings"}

// profile returns the poll profile a tab mounts, "" for none.
func (t tab) profile() string {
	switch t {
	case tabDashboard:
		return poller.ProfileDashboard
	case tabActivity:
		return poller.ProfileActivity
	}
	return ""
}

type (
	stateMsg   struct{ state viewstate.State }
	healthMsg  struct{ ok bool }
	loginMsg   struct{ res session.LoginResult }
	mountMsg   struct{ err error }
	commandMsg struct {
		action command.Action
		err    error
	}
	stocksMsg struct {
		rows []controlapi.StockConfig
		ok   bool
	}
	stockOpMsg struct{ err error }
	tickMsg    time.Time
)

const requestTimeout = 10 * time.Second

type model struct {
	ctx   context.Context
	ctrl  Controller
	subCh <-chan viewstate.State

	screen screen
	tab    tab
	state  viewstate.State

	// login
	user, pass textinput.Model
	busy       bool
	spinner    spinner.Model
	loginErr   string
	healthy    *bool

	// settings
	stocks     []controlapi.StockConfig
	stocksErr  string
	cursor     int
	adding     bool
	stockInput textinput.Model

	logs   viewport.Model
	help   help.Model
	notice string
	width  int
	height int
}

func newModel(ctx context.Context, ctrl Controller, sub <-chan viewstate.State) model {
	user := textinput.New()
	user.Placeholder = "username"
	user.CharLimit = 64
	user.Focus()

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'
	pass.CharLimit = 128

	stock := textinput.New()
	stock.Placeholder = "SYMBOL or SYMBOL:EXCHANGE"
	stock.CharLimit = 32

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := model{
		ctx:        ctx,
		ctrl:       ctrl,
		subCh:      sub,
		user:       user,
		pass:       pass,
		stockInput: stock,
		spinner:    sp,
		logs:       viewport.New(80, 8),
		help:       help.New(),
		state:      ctrl.Store().Snapshot(),
		width:      100,
		height:     30,
	}
	if ctrl.IsAuthenticated() {
		m.screen = screenMain
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForUpdate(), m.tick(), m.checkHealth(), textinput.Blink}
	if m.screen == screenMain {
		cmds = append(cmds, m.mount(m.tab))
	}
	return tea.Batch(cmds...)
}

func (m model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		st, ok := <-m.subCh
		if !ok {
			return nil
		}
		for {
			select {
			case latest, ok := <-m.subCh:
				if !ok {
					return stateMsg{state: st}
				}
				st = latest
			default:
				return stateMsg{state: st}
			}
		}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) checkHealth() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		return healthMsg{ok: m.ctrl.CheckHealth(ctx)}
	}
}

func (m model) mount(t tab) tea.Cmd {
	profile := t.profile()
	return func() tea.Msg {
		if profile == "" {
			m.ctrl.Unmount()
			return mountMsg{}
		}
		return mountMsg{err: m.ctrl.Mount(m.ctx, profile)}
	}
}

func (m model) dispatch(action command.Action) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		return commandMsg{action: action, err: m.ctrl.Dispatch(ctx, action)}
	}
}

func (m model) loadStocks() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		rows, ok := m.ctrl.Stocks(ctx)
		return stocksMsg{rows: rows, ok: ok}
	}
}

func (m model) stockOp(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		return stockOpMsg{err: fn(ctx)}
	}
}

func (m model) submitLogin() tea.Cmd {
	user, pass := m.user.Value(), m.pass.Value()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		return loginMsg{res: m.ctrl.Login(ctx, user, pass)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.logs.Width = max(msg.Width-4, 20)
		m.logs.Height = max(msg.Height/4, 4)
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		m.state = msg.state
		m.setLogs()
		m = m.checkSession()
		return m, m.waitForUpdate()

	case tickMsg:
		m = m.checkSession()
		return m, m.tick()

	case healthMsg:
		ok := msg.ok
		m.healthy = &ok
		return m, nil

	case loginMsg:
		m.busy = false
		if !msg.res.Success {
			m.loginErr = msg.res.Error
			return m, nil
		}
		m.loginErr = ""
		m.pass.SetValue("")
		m.screen = screenMain
		m.tab = tabDashboard
		m.notice = ""
		return m, m.mount(m.tab)

	case mountMsg:
		if msg.err != nil && !errors.Is(msg.err, poller.ErrUnauthenticated) {
			m.notice = "poller: " + msg.err.Error()
		}
		return m, nil

	case commandMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed", msg.action)
			log.WithError(msg.err).Warn("command failed")
		} else {
			m.notice = fmt.Sprintf("%s sent", msg.action)
		}
		return m, nil

	case stocksMsg:
		if !msg.ok {
			m.stocksErr = "Could not load stocks"
			return m, nil
		}
		m.stocksErr = ""
		m.stocks = msg.rows
		if m.cursor >= len(m.stocks) {
			m.cursor = max(len(m.stocks)-1, 0)
		}
		return m, nil

	case stockOpMsg:
		if msg.err != nil {
			m.stocksErr = msg.err.Error()
			return m, nil
		}
		m.stocksErr = ""
		return m, m.loadStocks()

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.screen == screenLogin {
			return m.updateLogin(msg)
		}
		return m.updateMain(msg)
	}

	if m.screen == screenLogin {
		return m.updateInputs(msg)
	}
	if m.adding {
		var cmd tea.Cmd
		m.stockInput, cmd = m.stockInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

// checkSession drops back to the login screen once the session is gone.
func (m model) checkSession() model {
	if m.screen == screenMain && !m.ctrl.IsAuthenticated() {
		m.screen = screenLogin
		m.loginErr = "Session ended, please sign in again"
		m.user.Focus()
		m.pass.Blur()
		m.adding = false
	}
	return m
}

func (m *model) setLogs() {
	atBottom := m.logs.AtBottom()
	m.logs.SetContent(strings.Join(m.state.Logs, "\n"))
	if atBottom {
		m.logs.GotoBottom()
	}
}

func (m model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "shift+tab", "up", "down":
		if m.user.Focused() {
			m.user.Blur()
			return m, m.pass.Focus()
		}
		m.pass.Blur()
		return m, m.user.Focus()
	case "enter":
		if m.busy {
			return m, nil
		}
		if m.user.Focused() {
			m.user.Blur()
			return m, m.pass.Focus()
		}
		if m.healthy != nil && !*m.healthy {
			// sign-in stays disabled until the server answers again
			m.loginErr = "server unreachable"
			m.healthy = nil
			return m, m.checkHealth()
		}
		m.busy = true
		m.loginErr = ""
		return m, tea.Batch(m.submitLogin(), m.spinner.Tick)
	}
	return m.updateInputs(msg)
}

func (m model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var c1, c2 tea.Cmd
	m.user, c1 = m.user.Update(msg)
	m.pass, c2 = m.pass.Update(msg)
	return m, tea.Batch(c1, c2)
}

func (m model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.adding {
		return m.updateAddStock(msg)
	}
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Start):
		m.notice = "starting..."
		return m, m.dispatch(command.ActionStart)
	case key.Matches(msg, keys.Stop):
		m.notice = "stopping..."
		return m, m.dispatch(command.ActionStop)
	case key.Matches(msg, keys.Refresh):
		if m.tab == tabSettings {
			return m, m.loadStocks()
		}
		m.ctrl.Refresh()
		return m, nil
	case key.Matches(msg, keys.NextTab):
		return m.switchTab((m.tab + 1) % numTabs)
	case key.Matches(msg, keys.PrevTab):
		return m.switchTab((m.tab + numTabs - 1) % numTabs)
	case key.Matches(msg, keys.Logout):
		m.ctrl.Unmount()
		m.ctrl.Logout()
		m.screen = screenLogin
		m.loginErr = ""
		m.notice = ""
		return m, m.user.Focus()
	}

	switch msg.String() {
	case "1", "2", "3":
		return m.switchTab(tab(msg.String()[0] - '1'))
	}

	if m.tab == tabSettings {
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.stocks)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Add):
			m.adding = true
			m.stockInput.SetValue("")
			return m, m.stockInput.Focus()
		case key.Matches(msg, keys.Delete):
			if m.cursor < len(m.stocks) {
				st := m.stocks[m.cursor]
				return m, m.stockOp(func(ctx context.Context) error {
					return m.ctrl.DeleteStock(ctx, st.Symbol, st.Exchange)
				})
			}
		}
		return m, nil
	}

	if m.tab == tabDashboard {
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) updateAddStock(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.adding = false
		m.stockInput.Blur()
		return m, nil
	case "enter":
		st, ok := parseStock(m.stockInput.Value())
		m.adding = false
		m.stockInput.Blur()
		if !ok {
			m.stocksErr = "Symbol is required"
			return m, nil
		}
		return m, m.stockOp(func(ctx context.Context) error {
			return m.ctrl.SaveStock(ctx, st)
		})
	}
	var cmd tea.Cmd
	m.stockInput, cmd = m.stockInput.Update(msg)
	return m, cmd
}

// parseStock reads "SYMBOL" or "SYMBOL:EXCHANGE".
func parseStock(in string) (controlapi.StockConfig, bool) {
	sym, exch, _ := strings.Cut(strings.TrimSpace(in), ":")
	st := controlapi.StockConfig{Symbol: sym, Exchange: exch}.Normalize()
	return st, st.Symbol != ""
}

func (m model) switchTab(t tab) (tea.Model, tea.Cmd) {
	if t == m.tab {
		return m, nil
	}
	m.tab = t
	m.notice = ""
	cmds := []tea.Cmd{m.mount(t)}
	if t == tabSettings {
		cmds = append(cmds, m.loadStocks())
	}
	return m, tea.Batch(cmds...)
}
