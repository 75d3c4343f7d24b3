package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/betbot/botdash/internal/viewstate"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	tabStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	tabActive     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("39")).Padding(0, 1)
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("39")).Padding(0, 1)
	sectionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("236"))
)

func (m model) View() string {
	if m.screen == screenLogin {
		return m.viewLogin()
	}
	var body string
	switch m.tab {
	case tabDashboard:
		body = m.viewDashboard()
	case tabActivity:
		body = m.viewActivity()
	case tabSettings:
		body = m.viewSettings()
	}
	footer := m.help.View(keys)
	if m.notice != "" {
		footer = dimStyle.Render(m.notice) + "  " + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.viewHeader(), m.viewTabs(), body, footer)
}

func (m model) viewLogin() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Bot Console") + "\n")
	b.WriteString(dimStyle.Render(m.ctrl.BaseURL()) + "  " + healthBadge(m.healthy) + "\n\n")
	b.WriteString(m.user.View() + "\n")
	b.WriteString(m.pass.View() + "\n\n")
	switch {
	case m.busy:
		b.WriteString(m.spinner.View() + " signing in...\n")
	case m.loginErr != "":
		b.WriteString(errorStyle.Render(m.loginErr) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("default credentials: admin / changeme123"))
	b.WriteString("\n" + dimStyle.Render("enter: next / sign in · tab: switch field · esc: quit"))
	return boxStyle.Width(min(m.width-4, 60)).Render(b.String())
}

func healthBadge(ok *bool) string {
	switch {
	case ok == nil:
		return dimStyle.Render("● checking")
	case *ok:
		return gainStyle.Render("● server up")
	}
	return lossStyle.Render("● server unreachable")
}

func connectivityBadge(c viewstate.Connectivity) string {
	switch c {
	case viewstate.ConnectivityOnline:
		return gainStyle.Render("● ONLINE")
	case viewstate.ConnectivityOffline:
		return lossStyle.Render("● OFFLINE")
	}
	return warnStyle.Render("● CHECKING")
}

func commandBadge(cs viewstate.CommandState) string {
	switch cs {
	case viewstate.CommandRunning:
		return gainStyle.Render("RUNNING")
	case viewstate.CommandStopped:
		return lossStyle.Render("STOPPED")
	}
	return warnStyle.Render("UNKNOWN")
}

func (m model) viewHeader() string {
	updated := "never"
	if !m.state.LastUpdated.IsZero() {
		updated = m.state.LastUpdated.Format("15:04:05")
	}
	return titleStyle.Render("Bot Console") + " " +
		connectivityBadge(m.state.Connectivity) + "  bot: " +
		commandBadge(m.state.EffectiveCommandState()) +
		dimStyle.Render(fmt.Sprintf("  updated %s  %s", updated, time.Now().Format("15:04:05")))
}

func (m model) viewTabs() string {
	parts := make([]string, 0, numTabs)
	for i, name := range tabNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if tab(i) == m.tab {
			parts = append(parts, tabActive.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m model) halfWidth() int {
	w := (m.width-4)/2 - 2
	if w < 36 {
		w = 36
	}
	return w
}

func (m model) viewDashboard() string {
	st := m.state
	w := m.halfWidth()
	left := boxStyle.Width(w).Render(strings.Join([]string{
		renderEngine(st),
		"",
		renderCapital(st.Capital),
	}, "\n"))
	right := boxStyle.Width(w).Render(strings.Join([]string{
		renderPnL(st),
		"",
		renderPositions(st.Positions),
	}, "\n"))
	logs := boxStyle.Width(m.width - 4).Render(sectionStyle.Render("Logs") + "\n" + m.logs.View())
	return lipgloss.JoinVertical(lipgloss.Left, lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right), logs)
}

func renderEngine(st viewstate.State) string {
	lines := []string{sectionStyle.Render("Engine")}
	if st.Engine == nil {
		lines = append(lines, dimStyle.Render("waiting for status..."))
	} else {
		e := st.Engine
		lines = append(lines,
			fmt.Sprintf("Status:     %s", e.Status),
			fmt.Sprintf("Uptime:     %s", orDash(e.Uptime)),
			fmt.Sprintf("Last cycle: %s", orDash(e.LastCycle)),
		)
		if e.Counters != nil {
			lines = append(lines, fmt.Sprintf("Cycles:     %d ok / %d failed / %d total",
				e.Counters.Success, e.Counters.Failed, e.Counters.Attempts))
		}
	}
	lines = append(lines, fmt.Sprintf("Command:    %s", commandBadge(st.EffectiveCommandState())))
	if st.CommandError != "" {
		lines = append(lines, errorStyle.Render(st.CommandError))
	}
	return strings.Join(lines, "\n")
}

func renderCapital(c viewstate.Capital) string {
	pct := c.DeployedPct()
	barWidth := 20
	filled := int(pct / 100 * float64(barWidth))
	filled = min(max(filled, 0), barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return strings.Join([]string{
		sectionStyle.Render("Capital"),
		fmt.Sprintf("Total:     %s", money(c.Total)),
		fmt.Sprintf("Deployed:  %s", money(c.Deployed)),
		fmt.Sprintf("Available: %s", money(c.Available)),
		fmt.Sprintf("%s %.1f%%", bar, pct),
	}, "\n")
}

func renderPnL(st viewstate.State) string {
	return strings.Join([]string{
		sectionStyle.Render("Today"),
		fmt.Sprintf("Realized P&L:   %s", signed(st.PnL.Amount)),
		fmt.Sprintf("Trades:         %d (%d profitable)", st.PnL.TradesCount, st.PnL.ProfitableCount),
		fmt.Sprintf("Open P&L:       %s", signed(st.TotalPositionPnL())),
	}, "\n")
}

func renderPositions(rows []viewstate.Position) string {
	lines := []string{sectionStyle.Render(fmt.Sprintf("Positions (%d)", len(rows)))}
	if len(rows) == 0 {
		return strings.Join(append(lines, dimStyle.Render("no open positions")), "\n")
	}
	lines = append(lines, dimStyle.Render(fmt.Sprintf("%-10s %8s %10s %10s %10s", "SYMBOL", "QTY", "ENTRY", "LTP", "P&L")))
	for _, p := range rows {
		lines = append(lines, fmt.Sprintf("%-10s %8s %10s %10s %10s",
			truncate(p.Symbol, 10), p.Quantity.String(), p.EntryPrice.StringFixed(2),
			p.LastTradedPrice.StringFixed(2), signed(p.PnL())))
	}
	return strings.Join(lines, "\n")
}

func (m model) viewActivity() string {
	st := m.state
	w := m.halfWidth()

	tradeLines := []string{
		sectionStyle.Render("Recent trades"),
		"Control flag: " + commandBadge(st.ControlStatus),
	}
	if len(st.Trades) == 0 {
		tradeLines = append(tradeLines, dimStyle.Render("no trades"))
	} else {
		tradeLines = append(tradeLines, dimStyle.Render(fmt.Sprintf("%-16s %-8s %-4s %6s %10s %10s", "TIME", "SYMBOL", "SIDE", "QTY", "PRICE", "P&L")))
		for _, t := range st.Trades {
			pnl := dimStyle.Render("-")
			if t.PnLNet != nil {
				pnl = signed(*t.PnLNet)
			}
			tradeLines = append(tradeLines, fmt.Sprintf("%-16s %-8s %-4s %6s %10s %10s",
				truncate(t.Timestamp, 16), truncate(t.Symbol, 8), t.Action, t.Quantity.String(), t.Price.StringFixed(2), pnl))
		}
	}

	h := st.History
	histLines := []string{
		sectionStyle.Render("Cumulative P&L"),
		fmt.Sprintf("Total: %s over %d trades", signed(h.TotalPnL), h.TradeCount),
		sparkline(h.Points, w-4),
	}
	for _, p := range lastPoints(h.Points, 8) {
		histLines = append(histLines, fmt.Sprintf("%-16s %-8s %-4s %s", p.Time, truncate(p.Symbol, 8), p.Action, signed(p.PnL)))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Width(w).Render(strings.Join(tradeLines, "\n")), " ",
		boxStyle.Width(w).Render(strings.Join(histLines, "\n")))
}

func lastPoints(pts []viewstate.HistoryPoint, n int) []viewstate.HistoryPoint {
	if len(pts) > n {
		return pts[len(pts)-n:]
	}
	return pts
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline scales the last width points between their min and max.
func sparkline(pts []viewstate.HistoryPoint, width int) string {
	pts = lastPoints(pts, max(width, 1))
	if len(pts) == 0 {
		return dimStyle.Render("no history")
	}
	lo, hi := pts[0].PnL, pts[0].PnL
	for _, p := range pts {
		lo = decimal.Min(lo, p.PnL)
		hi = decimal.Max(hi, p.PnL)
	}
	span := hi.Sub(lo)
	out := make([]rune, len(pts))
	for i, p := range pts {
		idx := 0
		if !span.IsZero() {
			f, _ := p.PnL.Sub(lo).Div(span).Float64()
			idx = int(f * float64(len(sparkRunes)-1))
		}
		out[i] = sparkRunes[idx]
	}
	return string(out)
}

func (m model) viewSettings() string {
	lines := []string{sectionStyle.Render(fmt.Sprintf("Stocks (%d)", len(m.stocks)))}
	if len(m.stocks) == 0 {
		lines = append(lines, dimStyle.Render("no stocks configured"))
	}
	for i, st := range m.stocks {
		line := fmt.Sprintf("%-12s %-6s %s", st.Symbol, st.Exchange, extras(st.Extra))
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	if m.adding {
		lines = append(lines, "", "Add: "+m.stockInput.View())
	}
	if m.stocksErr != "" {
		lines = append(lines, "", errorStyle.Render(m.stocksErr))
	}
	return boxStyle.Width(m.width - 4).Render(strings.Join(lines, "\n"))
}

func extras(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	return dimStyle.Render(strings.Join(parts, " "))
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func signed(d decimal.Decimal) string {
	s := d.StringFixed(2)
	switch d.Sign() {
	case 1:
		return gainStyle.Render("+" + s)
	case -1:
		return lossStyle.Render(s)
	}
	return s
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
