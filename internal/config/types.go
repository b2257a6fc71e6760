package config

import (
	"strings"
	"time"
)

// Config 是 arbiter 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app" yaml:"app"`
	Store     StoreConfig     `toml:"store" yaml:"store"`
	Market    MarketConfig    `toml:"market" yaml:"market"`
	News      NewsConfig      `toml:"news" yaml:"news"`
	Mood      MoodConfig      `toml:"mood" yaml:"mood"`
	Judge     JudgeConfig     `toml:"judge" yaml:"judge"`
	Execution ExecutionConfig `toml:"execution" yaml:"execution"`
	Session   SessionConfig   `toml:"session" yaml:"session"`
	Scheduler SchedulerConfig `toml:"scheduler" yaml:"scheduler"`
	Notify    NotifyConfig    `toml:"notify" yaml:"notify"`
}

type AppConfig struct {
	Env           string `toml:"env" yaml:"env"`
	UserID        string `toml:"user_id" yaml:"user_id"`
	LogLevel      string `toml:"log_level" yaml:"log_level"`
	LogFormat     string `toml:"log_format" yaml:"log_format"`
	HTTPAddr      string `toml:"http_addr" yaml:"http_addr"`
	LogPath       string `toml:"log_path" yaml:"log_path"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups" yaml:"log_max_backups"`
	LogMaxAgeDays int    `toml:"log_max_age_days" yaml:"log_max_age_days"`
}

type StoreConfig struct {
	Path            string  `toml:"path" yaml:"path"`
	DecisionLogPath string  `toml:"decision_log_path" yaml:"decision_log_path"`
	InitialCash     float64 `toml:"initial_cash" yaml:"initial_cash"`
}

// MarketSource 描述一个行情源；synthetic 不需要任何凭据。
type MarketSource struct {
	Name           string `toml:"name" yaml:"name"`
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	RESTBaseURL    string `toml:"rest_base_url" yaml:"rest_base_url"`
	APIKey         string `toml:"api_key" yaml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

type BreakerConfig struct {
	Threshold       int `toml:"threshold" yaml:"threshold"`
	CooldownSeconds int `toml:"cooldown_seconds" yaml:"cooldown_seconds"`
}

type MarketConfig struct {
	ActiveSource    string         `toml:"active_source" yaml:"active_source"`
	Sources         []MarketSource `toml:"sources" yaml:"sources"`
	HistoryDays     int            `toml:"history_days" yaml:"history_days"`
	CacheTTLSeconds int            `toml:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	Breaker         BreakerConfig  `toml:"breaker" yaml:"breaker"`
}

// ResolveActiveSource 返回 ActiveSource 对应的已启用源，找不到时退回第一个启用的源。
func (m MarketConfig) ResolveActiveSource() MarketSource {
	name := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	var fallback MarketSource
	for _, src := range m.Sources {
		if !src.Enabled {
			continue
		}
		if fallback.Name == "" {
			fallback = src
		}
		if strings.ToLower(strings.TrimSpace(src.Name)) == name {
			return src
		}
	}
	return fallback
}

// Source 按名称查找，忽略 Enabled。
func (m MarketConfig) Source(name string) (MarketSource, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, src := range m.Sources {
		if strings.ToLower(strings.TrimSpace(src.Name)) == name {
			return src, true
		}
	}
	return MarketSource{}, false
}

func (m MarketConfig) CacheTTL() time.Duration {
	return time.Duration(m.CacheTTLSeconds) * time.Second
}

type NewsConfig struct {
	Source string `toml:"source" yaml:"source"`
	Limit  int    `toml:"limit" yaml:"limit"`
}

// MoodConfig 控制情绪分类器；provider=keyword 时不调用外部模型。
type MoodConfig struct {
	Provider       string `toml:"provider" yaml:"provider"`
	APIURL         string `toml:"api_url" yaml:"api_url"`
	APIKey         string `toml:"api_key" yaml:"api_key"`
	Model          string `toml:"model" yaml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

type JudgeConfig struct {
	PolicyPath              string `toml:"policy_path" yaml:"policy_path"`
	EvaluatorTimeoutSeconds int    `toml:"evaluator_timeout_seconds" yaml:"evaluator_timeout_seconds"`
	SymbolConcurrency       int    `toml:"symbol_concurrency" yaml:"symbol_concurrency"`
}

func (j JudgeConfig) EvaluatorTimeout() time.Duration {
	return time.Duration(j.EvaluatorTimeoutSeconds) * time.Second
}

type ExecutionConfig struct {
	Slippage        float64 `toml:"slippage" yaml:"slippage"`
	MaxFillsPerLoop int     `toml:"max_fills_per_loop" yaml:"max_fills_per_loop"`
	Allocation      float64 `toml:"allocation" yaml:"allocation"`
	MinNotional     float64 `toml:"min_notional" yaml:"min_notional"`
	ReducePct       float64 `toml:"reduce_pct" yaml:"reduce_pct"`
	ReallocateCost  int     `toml:"reallocate_cost" yaml:"reallocate_cost"`
}

type SessionConfig struct {
	MaxCapital      float64  `toml:"max_capital" yaml:"max_capital"`
	MaxTradesPerDay int      `toml:"max_trades_per_day" yaml:"max_trades_per_day"`
	Wishlist        []string `toml:"wishlist" yaml:"wishlist"`
	DebounceSeconds int      `toml:"debounce_seconds" yaml:"debounce_seconds"`
	LossStreak      int      `toml:"loss_streak" yaml:"loss_streak"`
	WinStreak       int      `toml:"win_streak" yaml:"win_streak"`
	Timezone        string   `toml:"timezone" yaml:"timezone"`
}

func (s SessionConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(s.Timezone); err == nil {
		return loc
	}
	return time.Local
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	Interval string `toml:"interval" yaml:"interval"`
}

func (s SchedulerConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s.Interval))
	if err != nil {
		return 0
	}
	return d
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram" yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	BotToken string `toml:"bot_token" yaml:"bot_token"`
	ChatID   string `toml:"chat_id" yaml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
