// Package session gates the console behind an authenticated session. The token
// is opaque: it is stored, attached to requests and destroyed, never inspected.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/remote"
)

var log = logrus.WithField("module", "session")

// TokenKey is the fixed storage key of the session token.
const TokenKey = "botdash.session.token"

// ErrNoToken is returned by Require when there is no session.
var ErrNoToken = errors.New("session: not authenticated")

// Storage persists the token. Implemented by secretstore.Store,
// persistence.KV and MemoryStorage.
type Storage interface {
	GetString(key string) (string, bool, error)
	SetString(key, value string) error
	Delete(key string) error
}

// LoginResult is the outcome of Login. Error is a user-facing message.
type LoginResult struct {
	Success bool
	Error   string
}

// Guard owns the session token.
type Guard struct {
	store     Storage
	client    *remote.Client
	loginPath string

	mu        sync.Mutex
	listeners map[int]func(reason string)
	nextID    int
}

// Options for NewGuard.
type Options struct {
	LoginPath string // defaults to /auth/login
}

func NewGuard(store Storage, client *remote.Client, opts Options) *Guard {
	if opts.LoginPath == "" {
		opts.LoginPath = controlapi.PathLogin
	}
	return &Guard{
		store:     store,
		client:    client,
		loginPath: opts.LoginPath,
		listeners: make(map[int]func(string)),
	}
}

// Token implements remote.TokenSource.
func (g *Guard) Token() string {
	return readToken(g.store)
}

func readToken(st Storage) string {
	tok, found, err := st.GetString(TokenKey)
	if err != nil {
		log.Warnf("read session token: %v", err)
		return ""
	}
	if !found {
		return ""
	}
	return strings.TrimSpace(tok)
}

type storageTokens struct{ st Storage }

func (s storageTokens) Token() string { return readToken(s.st) }

// Tokens lets the remote client read the token straight from storage, so the
// client can be built before the Guard that owns it.
func Tokens(st Storage) remote.TokenSource {
	return storageTokens{st: st}
}

// IsAuthenticated reports whether a non-empty token is persisted.
func (g *Guard) IsAuthenticated() bool {
	return g.Token() != ""
}

// Require returns ErrNoToken when there is no session.
func (g *Guard) Require() error {
	if !g.IsAuthenticated() {
		return ErrNoToken
	}
	return nil
}

// Login exchanges credentials for a token and persists it. It never returns
// an error: every failure is a LoginResult with Success=false.
func (g *Guard) Login(ctx context.Context, username, password string) (res LoginResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("login panic: %v", r)
			res = LoginResult{Error: "Login failed"}
		}
	}()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{Error: "Username and password are required"}
	}

	resp, err := g.client.Do(ctx, http.MethodPost, g.loginPath, &remote.RequestOptions{
		Body:      controlapi.LoginRequest{Username: username, Password: password},
		Anonymous: true,
	})
	if err != nil {
		log.Warnf("login transport error: %v", err)
		return LoginResult{Error: "Cannot reach the server"}
	}
	if !resp.OK() {
		msg := controlapi.DetailFromBody(resp.Body)
		switch {
		case msg != "":
		case resp.Status == http.StatusUnauthorized:
			msg = "Invalid username or password"
		default:
			msg = http.StatusText(resp.Status)
		}
		log.Infof("login rejected for %s: %d %s", username, resp.Status, msg)
		return LoginResult{Error: msg}
	}

	var body controlapi.LoginResponse
	if err := decodeJSON(resp.Body, &body); err != nil {
		log.Warnf("login response decode: %v", err)
		return LoginResult{Error: "Unexpected response from server"}
	}
	tok := strings.TrimSpace(body.SessionToken())
	if tok == "" {
		return LoginResult{Error: "Server returned no token"}
	}
	if err := g.store.SetString(TokenKey, tok); err != nil {
		log.Errorf("persist session token: %v", err)
		return LoginResult{Error: "Could not save session"}
	}
	log.Infof("logged in as %s", username)
	return LoginResult{Success: true}
}

// Logout clears the token locally; there is no server call.
func (g *Guard) Logout() {
	g.Invalidate("logout")
}

// Invalidate destroys the session and tells every listener why. Safe to call
// repeatedly; listeners run only when a token was actually present.
func (g *Guard) Invalidate(reason string) {
	had := g.IsAuthenticated()
	if err := g.store.Delete(TokenKey); err != nil {
		log.Errorf("delete session token: %v", err)
	}
	if !had {
		return
	}
	log.Infof("session invalidated: %s", reason)

	g.mu.Lock()
	fns := make([]func(string), 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	g.mu.Unlock()
	for _, fn := range fns {
		fn(reason)
	}
}

// OnInvalidate registers fn and returns a func that unregisters it.
func (g *Guard) OnInvalidate(fn func(reason string)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.listeners, id)
	}
}

// CheckHealth probes the backend without a session. Reachable means 2xx and
// a status other than "unhealthy".
func (g *Guard) CheckHealth(ctx context.Context) bool {
	resp, err := g.client.Do(ctx, http.MethodGet, controlapi.PathHealth, &remote.RequestOptions{Anonymous: true})
	if err != nil || !resp.OK() {
		return false
	}
	var h controlapi.HealthResponse
	if err := decodeJSON(resp.Body, &h); err != nil {
		// a 2xx without a JSON body still proves the server is there
		return true
	}
	return h.Reachable()
}

// WatchUnauthorized wires the client's 401 hook to Invalidate.
func (g *Guard) WatchUnauthorized(c *remote.Client) {
	c.OnUnauthorized(func() {
		g.Invalidate("unauthorized")
	})
}
