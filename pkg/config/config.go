package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 控制命令风格
const (
	ControlStyleSet   = "set"   // POST /api/control/set {status}
	ControlStyleSplit = "split" // POST /api/control/start | /api/control/stop
)

// 会话存储后端
const (
	SessionBackendBadger = "badger"
	SessionBackendFile   = "file"
	SessionBackendMemory = "memory"
)

// APIConfig 远端控制面地址配置
type APIConfig struct {
	BaseURL      string        // 显式地址（BOTDASH_API_URL），为空时按 Origin 推导
	Origin       string        // 推导用的来源地址（scheme + hostname）
	FallbackPort int           // 推导时使用的固定端口，默认 8000
	Timeout      time.Duration // 单次请求超时
	LoginPath    string        // 登录接口路径
}

// PollConfig 轮询配置
type PollConfig struct {
	DashboardInterval time.Duration // 仪表盘轮询周期，默认 3s
	ActivityInterval  time.Duration // 交易活动页轮询周期，默认 5s
	MaxBackoff        time.Duration // 离线退避上限
	LogsLimit         int           // 每次拉取日志条数
	TradesLimit       int           // 每次拉取最近成交条数
}

// SessionConfig 会话令牌存储配置
type SessionConfig struct {
	Backend       string // badger | file | memory
	Path          string // badger 目录或 JSON 文件目录
	EncryptionKey string // badger 加密 key（hex/base64，32 字节），可选
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Config 控制台配置
type Config struct {
	API          APIConfig
	ControlStyle string
	Poll         PollConfig
	Session      SessionConfig
	Log          LogConfig
	MetricsAddr  string // 为空则不启动 metrics 服务
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	API struct {
		BaseURL      string `yaml:"base_url" json:"base_url"`
		Origin       string `yaml:"origin" json:"origin"`
		FallbackPort int    `yaml:"fallback_port" json:"fallback_port"`
		Timeout      string `yaml:"timeout" json:"timeout"`
		LoginPath    string `yaml:"login_path" json:"login_path"`
	} `yaml:"api" json:"api"`
	Control struct {
		Style string `yaml:"style" json:"style"`
	} `yaml:"control" json:"control"`
	Poll struct {
		DashboardInterval string `yaml:"dashboard_interval" json:"dashboard_interval"`
		ActivityInterval  string `yaml:"activity_interval" json:"activity_interval"`
		MaxBackoff        string `yaml:"max_backoff" json:"max_backoff"`
		LogsLimit         int    `yaml:"logs_limit" json:"logs_limit"`
		TradesLimit       int    `yaml:"trades_limit" json:"trades_limit"`
	} `yaml:"poll" json:"poll"`
	Session struct {
		Backend string `yaml:"backend" json:"backend"`
		Path    string `yaml:"path" json:"path"`
	} `yaml:"session" json:"session"`
	Log struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	} `yaml:"log" json:"log"`
	Metrics struct {
		Listen string `yaml:"listen" json:"listen"`
	} `yaml:"metrics" json:"metrics"`
}

// Default 只使用环境变量和默认值构建配置
func Default() *Config {
	return build(nil)
}

// LoadFromFile 从指定文件加载配置（路径为空时只用环境变量/默认值）
// 优先级：配置文件 > 环境变量 > 默认值
func LoadFromFile(filePath string) (*Config, error) {
	var configFile *ConfigFile
	if filePath != "" {
		var err error
		configFile, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	cfg := build(configFile)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func build(cf *ConfigFile) *Config {
	if cf == nil {
		cf = &ConfigFile{}
	}

	dashboard := durationFromSources(cf.Poll.DashboardInterval, parseDurationEnv("BOTDASH_POLL_DASHBOARD", 3*time.Second))
	activity := durationFromSources(cf.Poll.ActivityInterval, parseDurationEnv("BOTDASH_POLL_ACTIVITY", 5*time.Second))

	// 默认请求超时取最短轮询周期，避免单个慢请求拖住下一轮
	defaultTimeout := dashboard
	if activity > 0 && activity < defaultTimeout {
		defaultTimeout = activity
	}

	return &Config{
		API: APIConfig{
			BaseURL:      strings.TrimRight(valueFromSources(cf.API.BaseURL, getEnv("BOTDASH_API_URL", "")), "/"),
			Origin:       valueFromSources(cf.API.Origin, getEnv("BOTDASH_ORIGIN", "http://localhost")),
			FallbackPort: intFromSources(cf.API.FallbackPort, parseIntEnv("BOTDASH_API_PORT", 8000)),
			Timeout:      durationFromSources(cf.API.Timeout, parseDurationEnv("BOTDASH_API_TIMEOUT", defaultTimeout)),
			LoginPath:    valueFromSources(cf.API.LoginPath, getEnv("BOTDASH_LOGIN_PATH", "/auth/login")),
		},
		ControlStyle: strings.ToLower(valueFromSources(cf.Control.Style, getEnv("BOTDASH_CONTROL_STYLE", ControlStyleSet))),
		Poll: PollConfig{
			DashboardInterval: dashboard,
			ActivityInterval:  activity,
			MaxBackoff:        durationFromSources(cf.Poll.MaxBackoff, parseDurationEnv("BOTDASH_POLL_MAX_BACKOFF", 60*time.Second)),
			LogsLimit:         intFromSources(cf.Poll.LogsLimit, parseIntEnv("BOTDASH_LOGS_LIMIT", 50)),
			TradesLimit:       intFromSources(cf.Poll.TradesLimit, parseIntEnv("BOTDASH_TRADES_LIMIT", 10)),
		},
		Session: SessionConfig{
			Backend:       strings.ToLower(valueFromSources(cf.Session.Backend, getEnv("BOTDASH_SESSION_BACKEND", SessionBackendBadger))),
			Path:          valueFromSources(cf.Session.Path, getEnv("BOTDASH_SESSION_PATH", "data/session")),
			EncryptionKey: getEnv("BOTDASH_STORE_KEY", ""),
		},
		Log: LogConfig{
			Level:      valueFromSources(cf.Log.Level, getEnv("LOG_LEVEL", "info")),
			File:       valueFromSources(cf.Log.File, getEnv("LOG_FILE", "logs/botdash.log")),
			MaxSizeMB:  intFromSources(cf.Log.MaxSizeMB, parseIntEnv("LOG_MAX_SIZE_MB", 50)),
			MaxBackups: intFromSources(cf.Log.MaxBackups, parseIntEnv("LOG_MAX_BACKUPS", 3)),
			MaxAgeDays: intFromSources(cf.Log.MaxAgeDays, parseIntEnv("LOG_MAX_AGE_DAYS", 7)),
		},
		MetricsAddr: valueFromSources(cf.Metrics.Listen, getEnv("BOTDASH_METRICS_LISTEN", "")),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Poll.DashboardInterval <= 0 {
		return fmt.Errorf("poll.dashboard_interval 必须大于 0")
	}
	if c.Poll.ActivityInterval <= 0 {
		return fmt.Errorf("poll.activity_interval 必须大于 0")
	}
	if c.Poll.MaxBackoff < c.Poll.DashboardInterval || c.Poll.MaxBackoff < c.Poll.ActivityInterval {
		return fmt.Errorf("poll.max_backoff 不能小于轮询周期")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout 必须大于 0")
	}
	if c.API.FallbackPort <= 0 || c.API.FallbackPort > 65535 {
		return fmt.Errorf("api.fallback_port 超出范围: %d", c.API.FallbackPort)
	}
	if c.API.BaseURL == "" && c.API.Origin == "" {
		return fmt.Errorf("api.base_url 与 api.origin 至少需要配置一个")
	}
	switch c.ControlStyle {
	case ControlStyleSet, ControlStyleSplit:
	default:
		return fmt.Errorf("未知的 control.style: %s", c.ControlStyle)
	}
	switch c.Session.Backend {
	case SessionBackendBadger, SessionBackendFile, SessionBackendMemory:
	default:
		return fmt.Errorf("未知的 session.backend: %s", c.Session.Backend)
	}
	if c.Session.Backend != SessionBackendMemory && strings.TrimSpace(c.Session.Path) == "" {
		return fmt.Errorf("session.path 不能为空")
	}
	if c.Poll.LogsLimit <= 0 || c.Poll.TradesLimit <= 0 {
		return fmt.Errorf("poll.logs_limit / poll.trades_limit 必须大于 0")
	}
	return nil
}

// loadConfigFile 从文件加载配置
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

// valueFromSources 配置文件非空时优先，否则使用环境变量/默认值
func valueFromSources(configValue, envValue string) string {
	if strings.TrimSpace(configValue) != "" {
		return strings.TrimSpace(configValue)
	}
	return envValue
}

func intFromSources(configValue, envValue int) int {
	if configValue != 0 {
		return configValue
	}
	return envValue
}

// durationFromSources 配置文件中的时长是字符串（如 "3s"），解析失败时退回环境变量/默认值
func durationFromSources(configValue string, envValue time.Duration) time.Duration {
	if strings.TrimSpace(configValue) == "" {
		return envValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(configValue))
	if err != nil {
		return envValue
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseDurationEnv 支持 "3s" 形式，也接受纯数字（毫秒）
func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
