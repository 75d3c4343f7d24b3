// Package dashboard is the terminal front end of the console: a bubbletea
// program with login, dashboard, activity and settings screens, plus a
// headless printer for non-TTY output.
package dashboard

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/betbot/botdash/internal/command"
	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/session"
	"github.com/betbot/botdash/internal/viewstate"
)

var log = logrus.WithField("module", "dashboard")

// Controller is what the screens drive. *app.App implements it.
type Controller interface {
	Store() *viewstate.Store
	BaseURL() string

	IsAuthenticated() bool
	CheckHealth(ctx context.Context) bool
	Login(ctx context.Context, username, password string) session.LoginResult
	Logout()

	Mount(ctx context.Context, profile string) error
	Unmount()
	Refresh() bool
	Dispatch(ctx context.Context, action command.Action) error

	Stocks(ctx context.Context) ([]controlapi.StockConfig, bool)
	SaveStock(ctx context.Context, st controlapi.StockConfig) error
	DeleteStock(ctx context.Context, symbol, exchange string) error
}
