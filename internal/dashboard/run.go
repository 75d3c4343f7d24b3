package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/betbot/botdash/internal/poller"
	"github.com/betbot/botdash/internal/viewstate"
)

var (
	ErrNoTerminal   = errors.New("stdout is not a terminal")
	ErrSessionEnded = errors.New("session ended")
)

// IsTerminal reports whether the interactive UI can take over stdout.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, ctrl Controller) error {
	if !IsTerminal() {
		return ErrNoTerminal
	}
	sub, cancel := ctrl.Store().Subscribe()
	defer cancel()
	defer ctrl.Unmount()

	p := tea.NewProgram(newModel(ctx, ctrl, sub), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		log.Errorf("dashboard UI error: %v", err)
	}
	return err
}

type HeadlessOptions struct {
	Profile  string // poller profile, default dashboard
	Username string // used when no session is stored
	Password string
}

// RunHeadless prints one summary line per accepted cycle until ctx is done or
// the session ends.
func RunHeadless(ctx context.Context, ctrl Controller, out io.Writer, opts HeadlessOptions) error {
	if opts.Profile == "" {
		opts.Profile = poller.ProfileDashboard
	}
	if !ctrl.IsAuthenticated() {
		if opts.Username == "" {
			return fmt.Errorf("no stored session and no credentials given")
		}
		lctx, cancel := context.WithTimeout(ctx, requestTimeout)
		res := ctrl.Login(lctx, opts.Username, opts.Password)
		cancel()
		if !res.Success {
			return fmt.Errorf("login failed: %s", res.Error)
		}
	}

	sub, unsubscribe := ctrl.Store().Subscribe()
	defer unsubscribe()
	if err := ctrl.Mount(ctx, opts.Profile); err != nil {
		return err
	}
	defer ctrl.Unmount()

	check := time.NewTicker(time.Second)
	defer check.Stop()
	var lastCycle uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-check.C:
			if !ctrl.IsAuthenticated() {
				return ErrSessionEnded
			}
		case st := <-sub:
			if !ctrl.IsAuthenticated() {
				return ErrSessionEnded
			}
			if st.Cycle == 0 || st.Cycle == lastCycle {
				continue
			}
			lastCycle = st.Cycle
			fmt.Fprintln(out, Summary(st))
		}
	}
}

// Summary renders a state as one plain line.
func Summary(st viewstate.State) string {
	var b strings.Builder
	ts := st.LastUpdated
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&b, "[%s] %s bot=%s", ts.Format("15:04:05"), st.Connectivity, st.EffectiveCommandState())
	if st.Engine != nil {
		fmt.Fprintf(&b, " engine=%s uptime=%s", st.Engine.Status, orDash(st.Engine.Uptime))
	}
	fmt.Fprintf(&b, " positions=%d open_pnl=%s pnl=%s trades=%d",
		len(st.Positions), st.TotalPositionPnL().StringFixed(2), st.PnL.Amount.StringFixed(2), st.PnL.TradesCount)
	fmt.Fprintf(&b, " capital=%s/%s", st.Capital.Deployed.StringFixed(2), st.Capital.Total.StringFixed(2))
	if st.CommandError != "" {
		fmt.Fprintf(&b, " error=%q", st.CommandError)
	}
	return b.String()
}
