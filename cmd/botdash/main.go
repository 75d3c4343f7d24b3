package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/botdash/internal/app"
	"github.com/betbot/botdash/internal/dashboard"
	"github.com/betbot/botdash/internal/metrics"
	"github.com/betbot/botdash/pkg/config"
	"github.com/betbot/botdash/pkg/logger"
	"github.com/betbot/botdash/pkg/shutdown"
)

func main() {
	// .env 可选，不存在时只用真实环境变量
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	headless := flag.Bool("headless", false, "不启动 TUI，按轮询周期输出一行摘要")
	profile := flag.String("profile", "dashboard", "headless 模式的轮询档位：dashboard | activity")
	username := flag.String("user", os.Getenv("BOTDASH_USER"), "headless 模式登录用户名（无已保存会话时使用）")
	password := flag.String("password", os.Getenv("BOTDASH_PASSWORD"), "headless 模式登录密码")
	flag.Parse()

	if err := logger.InitDefault(); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		logrus.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}

	interactive := !*headless && dashboard.IsTerminal()
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
		NoConsole:  interactive,
	}); err != nil {
		logrus.Errorf("重新初始化日志失败: %v", err)
		os.Exit(1)
	}

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	shut := shutdown.NewManager()

	if cfg.MetricsAddr != "" {
		srv, err := metrics.StartAsync(rootCtx, cfg.MetricsAddr)
		if err != nil {
			logrus.Errorf("metrics 启动失败: %v", err)
		} else {
			logrus.Infof("📊 metrics 启用: listen=%s", cfg.MetricsAddr)
			shut.OnShutdown("metrics", func(ctx context.Context) { _ = srv.Shutdown(ctx) })
		}
	}

	a, err := app.New(cfg, nil)
	if err != nil {
		logrus.Errorf("初始化控制台失败: %v", err)
		os.Exit(1)
	}
	shut.OnShutdown("app", func(context.Context) {
		if err := a.Close(); err != nil {
			logrus.Warnf("关闭控制台失败: %v", err)
		}
	})

	logrus.Infof("🚀 botdash %s 启动，控制面地址: %s", app.Version, a.BaseURL())

	if interactive {
		err = dashboard.Run(rootCtx, a)
	} else {
		err = dashboard.RunHeadless(rootCtx, a, os.Stdout, dashboard.HeadlessOptions{
			Profile:  *profile,
			Username: *username,
			Password: *password,
		})
	}

	rootCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	shut.Shutdown(shutdownCtx)

	if err != nil {
		if errors.Is(err, dashboard.ErrSessionEnded) {
			logrus.Warn("会话已失效，请重新登录")
			os.Exit(2)
		}
		logrus.Errorf("控制台退出: %v", err)
		os.Exit(1)
	}
	logrus.Info("✅ botdash 已退出")
}
