// Package app wires the console: session storage, remote client, session guard,
// view state, poll schedulers, command dispatcher and settings client.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/botdash/internal/command"
	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/metrics"
	"github.com/betbot/botdash/internal/poller"
	"github.com/betbot/botdash/internal/remote"
	"github.com/betbot/botdash/internal/session"
	"github.com/betbot/botdash/internal/viewstate"
	"github.com/betbot/botdash/pkg/config"
)

var log = logrus.WithField("module", "app")

const Version = "0.4.0"

type App struct {
	cfg *config.Config

	store      *viewstate.Store
	client     *remote.Client
	guard      *session.Guard
	dispatcher *command.Dispatcher
	settings   *command.Settings
	schedulers map[string]*poller.Scheduler

	closeStorage func() error
	unwatch      func()

	mu      sync.Mutex
	active  *poller.Handle
	mounted string
}

// New builds the console from cfg. A nil storage opens the one cfg.Session names.
func New(cfg *config.Config, storage session.Storage) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	closeStorage := func() error { return nil }
	if storage == nil {
		st, closer, err := session.OpenStorage(cfg.Session)
		if err != nil {
			return nil, fmt.Errorf("open session storage: %w", err)
		}
		storage, closeStorage = st, closer
	}

	client := remote.NewClient(remote.Options{
		BaseURL:      cfg.API.BaseURL,
		Origin:       cfg.API.Origin,
		FallbackPort: cfg.API.FallbackPort,
		Timeout:      cfg.API.Timeout,
		Tokens:       session.Tokens(storage),
		UserAgent:    "botdash/" + Version,
	})
	guard := session.NewGuard(storage, client, session.Options{LoginPath: cfg.API.LoginPath})
	guard.WatchUnauthorized(client)

	store := viewstate.New()
	obs := metrics.Observer{}
	store.OnStale(func(viewstate.Field) { obs.StaleDiscard() })

	opts := poller.Options{MaxBackoff: cfg.Poll.MaxBackoff, Observer: obs}
	schedulers := map[string]*poller.Scheduler{
		poller.ProfileDashboard: poller.New(store, guard, poller.DashboardProfile(client, cfg.Poll), opts),
		poller.ProfileActivity:  poller.New(store, guard, poller.ActivityProfile(client, cfg.Poll), opts),
	}

	reconciler := poller.NewReconciler(store, guard,
		poller.StatusSource(client, false),
		poller.ControlStatusSource(client, false),
	)

	a := &App{
		cfg:          cfg,
		store:        store,
		client:       client,
		guard:        guard,
		dispatcher:   command.NewDispatcher(store, client, reconciler, command.Options{Style: cfg.ControlStyle, Observer: obs}),
		settings:     command.NewSettings(client),
		schedulers:   schedulers,
		closeStorage: closeStorage,
	}
	a.unwatch = guard.OnInvalidate(a.onInvalidate)
	log.WithField("api", client.BaseURL()).Info("console ready")
	return a, nil
}

// onInvalidate may run on a fetch goroutine, so it must not wait for the poller.
func (a *App) onInvalidate(reason string) {
	a.mu.Lock()
	h := a.active
	a.active = nil
	a.mounted = ""
	a.mu.Unlock()
	if h != nil {
		h.Stop()
	}
	a.store.Reset()
	log.WithField("reason", reason).Info("session ended, polling stopped")
}

func (a *App) Store() *viewstate.Store { return a.store }

func (a *App) BaseURL() string { return a.client.BaseURL() }

func (a *App) IsAuthenticated() bool { return a.guard.IsAuthenticated() }

func (a *App) CheckHealth(ctx context.Context) bool { return a.guard.CheckHealth(ctx) }

func (a *App) Login(ctx context.Context, username, password string) session.LoginResult {
	return a.guard.Login(ctx, username, password)
}

func (a *App) Logout() { a.guard.Logout() }

// Mount stops the running poller, if any, and starts the named profile.
// Mounting the profile that is already running is a no-op.
func (a *App) Mount(ctx context.Context, profile string) error {
	sched, ok := a.schedulers[profile]
	if !ok {
		return fmt.Errorf("unknown profile %q", profile)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active.Alive() && a.mounted == profile {
		return nil
	}
	if a.active != nil {
		a.active.Stop()
		a.active = nil
		a.mounted = ""
	}
	h, err := sched.Start(ctx)
	if err != nil {
		return err
	}
	a.active = h
	a.mounted = profile
	log.WithField("profile", profile).Debug("poller mounted")
	return nil
}

// Unmount stops polling without touching the session.
func (a *App) Unmount() {
	a.mu.Lock()
	h := a.active
	a.active = nil
	a.mounted = ""
	a.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// Mounted returns the running profile name, or "".
func (a *App) Mounted() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active.Alive() {
		return ""
	}
	return a.mounted
}

// Refresh asks the running poller for an immediate cycle.
func (a *App) Refresh() bool {
	a.mu.Lock()
	h := a.active
	a.mu.Unlock()
	return h.Alive() && h.Refresh()
}

func (a *App) Dispatch(ctx context.Context, action command.Action) error {
	return a.dispatcher.Dispatch(ctx, action)
}

func (a *App) Settings() *command.Settings { return a.settings }

func (a *App) Stocks(ctx context.Context) ([]controlapi.StockConfig, bool) {
	return a.settings.Stocks(ctx)
}

func (a *App) SaveStock(ctx context.Context, st controlapi.StockConfig) error {
	return a.settings.SaveStock(ctx, st)
}

func (a *App) DeleteStock(ctx context.Context, symbol, exchange string) error {
	return a.settings.DeleteStock(ctx, symbol, exchange)
}

// Close stops polling and releases session storage.
func (a *App) Close() error {
	a.Unmount()
	if a.unwatch != nil {
		a.unwatch()
	}
	return a.closeStorage()
}
