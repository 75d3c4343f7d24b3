package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/botdash/internal/controlplane/server"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		listenAddr   = flag.String("listen", getenv("BOTDASH_SERVER_LISTEN", ":8000"), "HTTP listen address")
		dbPath       = flag.String("db", getenv("BOTDASH_SERVER_DB", "data/controlplane.db"), "SQLite db file path")
		settingsPath = flag.String("settings", getenv("BOTDASH_SERVER_SETTINGS", "data/settings.yaml"), "settings YAML file")
		cycleEvery   = flag.Duration("cycle", 5*time.Second, "simulated engine heartbeat interval")
		seed         = flag.Bool("seed", false, "insert demo trades on startup")
	)
	flag.Parse()

	srv, err := server.New(server.Config{
		DBPath:       *dbPath,
		SettingsPath: *settingsPath,
		AdminUser:    getenv("BOTDASH_ADMIN_USER", "admin"),
		AdminPass:    getenv("BOTDASH_ADMIN_PASSWORD", "changeme123"),
		JWTSecret:    os.Getenv("BOTDASH_JWT_SECRET"),
		CycleEvery:   *cycleEvery,
	})
	if err != nil {
		log.Fatalf("init server failed: %v", err)
	}
	defer srv.Close()

	if *seed {
		if err := seedTrades(srv); err != nil {
			log.Fatalf("seed trades failed: %v", err)
		}
	}

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("controlplane %s listening on %s", server.Version, *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	fmt.Println("server stopped")
}

func seedTrades(srv *server.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	sell := server.NewTrade(now.Add(-30*time.Minute), "INFY", "SELL", 10, 1512.5)
	pnl := 87.5
	sell.PnLNet = &pnl
	sell.Strategy = "momentum"

	trades := []server.Trade{
		server.NewTrade(now.Add(-3*time.Hour), "RELIANCE", "BUY", 4, 2890),
		server.NewTrade(now.Add(-2*time.Hour), "INFY", "BUY", 10, 1503.75),
		server.NewTrade(now.Add(-90*time.Minute), "TCS", "BUY", 3, 3975.2),
		sell,
	}
	for _, t := range trades {
		if _, err := srv.InsertTrade(ctx, t); err != nil {
			return err
		}
	}
	log.Printf("seeded %d demo trades", len(trades))
	return nil
}
