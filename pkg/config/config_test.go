package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BOTDASH_API_URL", "BOTDASH_ORIGIN", "BOTDASH_API_PORT", "BOTDASH_API_TIMEOUT",
		"BOTDASH_CONTROL_STYLE", "BOTDASH_POLL_DASHBOARD", "BOTDASH_POLL_ACTIVITY",
		"BOTDASH_POLL_MAX_BACKOFF", "BOTDASH_SESSION_BACKEND", "BOTDASH_SESSION_PATH",
		"BOTDASH_METRICS_LISTEN", "BOTDASH_LOGS_LIMIT", "BOTDASH_TRADES_LIMIT",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	require.NoError(t, cfg.Validate())

	require.Equal(t, "", cfg.API.BaseURL)
	require.Equal(t, "http://localhost", cfg.API.Origin)
	require.Equal(t, 8000, cfg.API.FallbackPort)
	require.Equal(t, 3*time.Second, cfg.Poll.DashboardInterval)
	require.Equal(t, 5*time.Second, cfg.Poll.ActivityInterval)
	require.Equal(t, 3*time.Second, cfg.API.Timeout)
	require.Equal(t, ControlStyleSet, cfg.ControlStyle)
	require.Equal(t, SessionBackendBadger, cfg.Session.Backend)
	require.Equal(t, 50, cfg.Poll.LogsLimit)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOTDASH_API_URL", "http://bot.internal:9000/")
	t.Setenv("BOTDASH_POLL_DASHBOARD", "1500")
	t.Setenv("BOTDASH_CONTROL_STYLE", "SPLIT")

	cfg := Default()
	require.Equal(t, "http://bot.internal:9000", cfg.API.BaseURL)
	require.Equal(t, 1500*time.Millisecond, cfg.Poll.DashboardInterval)
	require.Equal(t, 1500*time.Millisecond, cfg.API.Timeout)
	require.Equal(t, ControlStyleSplit, cfg.ControlStyle)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOTDASH_API_URL", "http://from-env:1")

	tests := []struct {
		name    string
		file    string
		content string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "yaml 覆盖环境变量",
			file: "botdash.yaml",
			content: `
api:
  base_url: http://from-file:8000
  timeout: 2s
poll:
  dashboard_interval: 4s
session:
  backend: file
  path: /tmp/sess
`,
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "http://from-file:8000", cfg.API.BaseURL)
				require.Equal(t, 2*time.Second, cfg.API.Timeout)
				require.Equal(t, 4*time.Second, cfg.Poll.DashboardInterval)
				require.Equal(t, SessionBackendFile, cfg.Session.Backend)
			},
		},
		{
			name:    "json",
			file:    "botdash.json",
			content: `{"control":{"style":"split"},"metrics":{"listen":"127.0.0.1:9102"}}`,
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "http://from-env:1", cfg.API.BaseURL)
				require.Equal(t, ControlStyleSplit, cfg.ControlStyle)
				require.Equal(t, "127.0.0.1:9102", cfg.MetricsAddr)
			},
		},
		{
			name:    "未知控制风格",
			file:    "bad.yaml",
			content: "control:\n  style: toggle\n",
			wantErr: true,
		},
		{
			name:    "不支持的格式",
			file:    "botdash.toml",
			content: "x = 1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			cfg, err := LoadFromFile(path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("期望错误，实际成功: %+v", cfg)
				}
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestValidateBackoffBelowInterval(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Poll.MaxBackoff = time.Second
	require.Error(t, cfg.Validate())
}
