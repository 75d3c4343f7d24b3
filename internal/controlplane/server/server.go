// Package server is a self-contained control plane for the bot: it serves the
// HTTP contract the console polls, runs a simulated engine, and keeps trades
// and control flags in SQLite. It is used for local development and tests.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/pkg/ratelimit"
)

var log = logrus.WithField("module", "controlplane")

const Version = "2.1.0"

type Config struct {
	DBPath       string        // sqlite file; ":memory:" for tests
	SettingsPath string        // YAML settings file; empty keeps settings in memory
	AdminUser    string        // default admin
	AdminPass    string        // default changeme123
	JWTSecret    string        // random per process when empty
	TokenTTL     time.Duration // default 24h
	CycleEvery   time.Duration // simulated engine heartbeat, default 5s
	LoginLimit   int           // login attempts per client per minute, default 10
}

type Server struct {
	cfg Config
	db  *sql.DB

	auth     *authenticator
	engine   *Engine
	logs     *LogRing
	settings *settingsStore
	limiter  *ratelimit.KeyedLimiter
	now      func() time.Time
}

func New(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	if cfg.AdminUser == "" {
		cfg.AdminUser = "admin"
	}
	if cfg.AdminPass == "" {
		cfg.AdminPass = "changeme123"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.CycleEvery <= 0 {
		cfg.CycleEvery = 5 * time.Second
	}
	if cfg.LoginLimit <= 0 {
		cfg.LoginLimit = 10
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &Server{cfg: cfg, db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.auth, err = newAuthenticator(cfg.AdminUser, cfg.AdminPass, cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.settings, err = openSettings(cfg.SettingsPath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logs = NewLogRing(200)
	s.engine = NewEngine(s.logs, cfg.CycleEvery)
	s.limiter = ratelimit.NewKeyedLimiter(cfg.LoginLimit, time.Minute)
	return s, nil
}

func (s *Server) Close() error {
	s.engine.Shutdown()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Engine exposes the simulated bot for seeding and tests.
func (s *Server) Engine() *Engine { return s.engine }

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(controlapi.PathHealth, s.wrap(s.handleHealth))
	r.POST(controlapi.PathLogin, s.wrap(s.handleLogin))

	api := r.Group("/api")
	api.Use(s.requireAuth())

	api.GET("/status", s.wrap(s.handleStatus))
	api.GET("/logs", s.wrap(s.handleLogs))
	api.GET("/positions", s.wrap(s.handlePositions))
	api.GET("/pnl", s.wrap(s.handlePnL))
	api.GET("/capital", s.wrap(s.handleCapital))
	api.GET("/trades/recent", s.wrap(s.handleTradesRecent))
	api.GET("/trades/history", s.wrap(s.handleTradesHistory))

	control := api.Group("/control")
	control.GET("/status", s.wrap(s.handleControlStatus))
	control.POST("/set", s.wrap(s.handleControlSet))
	control.POST("/start", s.wrap(s.handleControlStart))
	control.POST("/stop", s.wrap(s.handleControlStop))

	api.GET("/settings", s.wrap(s.handleSettingsGet))
	api.POST("/settings", s.wrap(s.handleSettingsUpdate))
	api.GET("/stocks", s.wrap(s.handleStocksList))
	api.POST("/stocks", s.wrap(s.handleStocksSave))
	api.DELETE("/stocks/:symbol", s.wrap(s.handleStocksDelete))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "botdash_path_params"

// wrap adapts net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return strings.TrimSpace(m[key])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError uses the {detail} shape the console understands.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, controlapi.ErrorResponse{Detail: detail})
}
