package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/remote"
	"github.com/betbot/botdash/pkg/config"
	"github.com/betbot/botdash/pkg/persistence"
)

func newLoginServer(t *testing.T, body func(w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case controlapi.PathLogin:
			assert.Empty(t, r.Header.Get("Authorization"))
			var req controlapi.LoginRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.Username != "admin" || req.Password != "changeme123" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"Invalid username or password"}`))
				return
			}
			body(w)
		case controlapi.PathHealth:
			_, _ = w.Write([]byte(`{"status":"degraded","database":"disconnected"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGuard(baseURL string, st Storage) *Guard {
	c := remote.NewClient(remote.Options{BaseURL: baseURL, Timeout: time.Second, Tokens: Tokens(st)})
	return NewGuard(st, c, Options{})
}

func TestLoginAccessTokenShape(t *testing.T) {
	srv := newLoginServer(t, func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"access_token":"jwt-abc","token_type":"bearer","expires_in":86400}`))
	})
	g := newGuard(srv.URL, NewMemoryStorage())

	require.False(t, g.IsAuthenticated())
	res := g.Login(context.Background(), "admin", "changeme123")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "jwt-abc", g.Token())
	assert.NoError(t, g.Require())
}

func TestLoginPlainTokenShape(t *testing.T) {
	srv := newLoginServer(t, func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"token":"plain"}`))
	})
	g := newGuard(srv.URL, NewMemoryStorage())
	res := g.Login(context.Background(), " admin ", "changeme123")
	require.True(t, res.Success)
	assert.Equal(t, "plain", g.Token())
}

func TestLoginFailures(t *testing.T) {
	srv := newLoginServer(t, func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
	})
	g := newGuard(srv.URL, NewMemoryStorage())
	ctx := context.Background()

	tests := []struct {
		name, user, pass, want string
	}{
		{"wrong password", "admin", "nope", "Invalid username or password"},
		{"empty", "", "", "Username and password are required"},
		{"no token in body", "admin", "changeme123", "Server returned no token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := g.Login(ctx, tt.user, tt.pass)
			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Error)
			assert.False(t, g.IsAuthenticated())
		})
	}

	dead := newGuard("http://127.0.0.1:1", NewMemoryStorage())
	res := dead.Login(ctx, "admin", "changeme123")
	assert.False(t, res.Success)
	assert.Equal(t, "Cannot reach the server", res.Error)
}

func TestLogoutNotifiesOnce(t *testing.T) {
	st := NewMemoryStorage()
	require.NoError(t, st.SetString(TokenKey, "tok"))
	g := newGuard("http://127.0.0.1:1", st)

	var calls atomic.Int32
	var reason atomic.Value
	unsubscribe := g.OnInvalidate(func(r string) {
		calls.Add(1)
		reason.Store(r)
	})

	g.Logout()
	g.Logout()
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "logout", reason.Load())
	assert.ErrorIs(t, g.Require(), ErrNoToken)

	unsubscribe()
	require.NoError(t, st.SetString(TokenKey, "tok2"))
	g.Logout()
	assert.EqualValues(t, 1, calls.Load())
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	st := NewMemoryStorage()
	require.NoError(t, st.SetString(TokenKey, "expired"))
	g := newGuard(srv.URL, st)
	g.WatchUnauthorized(g.client)

	var reason string
	g.OnInvalidate(func(r string) { reason = r })

	assert.Nil(t, remote.Fetch[controlapi.StatusResponse](context.Background(), g.client, controlapi.PathStatus, nil))
	assert.False(t, g.IsAuthenticated())
	assert.Equal(t, "unauthorized", reason)
}

func TestCheckHealth(t *testing.T) {
	srv := newLoginServer(t, func(w http.ResponseWriter) {})
	g := newGuard(srv.URL, NewMemoryStorage())
	// degraded still counts as reachable
	assert.True(t, g.CheckHealth(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
	}))
	defer down.Close()
	assert.False(t, newGuard(down.URL, NewMemoryStorage()).CheckHealth(context.Background()))
	assert.False(t, newGuard("http://127.0.0.1:1", NewMemoryStorage()).CheckHealth(context.Background()))
}

func TestFileStorageSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	st, closeFn, err := OpenStorage(config.SessionConfig{Backend: config.SessionBackendFile, Path: dir})
	require.NoError(t, err)
	defer closeFn()
	require.NoError(t, st.SetString(TokenKey, "persisted"))

	again := persistence.NewKV(persistence.NewJSONFileService(dir), "session")
	v, found, err := again.GetString(TokenKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "persisted", v)
}

func TestOpenStorageUnknownBackend(t *testing.T) {
	_, closeFn, err := OpenStorage(config.SessionConfig{Backend: "etcd"})
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}
