package config

import (
	"fmt"
	"strings"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppUserID         = "demo"
	defaultAppLogLevel       = "info"
	defaultAppLogFormat      = "text"
	defaultAppHTTPAddr       = ":9991"
	defaultAppLogPath        = "data/logs/arbiter.log"
	defaultAppLogMaxSizeMB   = 50
	defaultAppLogMaxBackups  = 5
	defaultAppLogMaxAgeDays  = 14
	defaultStorePath         = "data/arbiter.db"
	defaultDecisionLogPath   = "data/decisions.db"
	defaultInitialCash       = 10000
	defaultMarketName        = "synthetic"
	defaultHistoryDays       = 120
	defaultCacheTTLSeconds   = 60
	defaultSourceTimeout     = 15
	defaultBreakerThreshold  = 3
	defaultBreakerCooldown   = 60
	defaultNewsSource        = "synthetic"
	defaultNewsLimit         = 10
	defaultMoodProvider      = "keyword"
	defaultMoodModel         = "gpt-4o-mini"
	defaultMoodTimeout       = 20
	defaultEvaluatorTimeout  = 8
	defaultSymbolConcurrency = 4
	defaultSlippage          = 0.002
	defaultMaxFillsPerLoop   = 2
	defaultAllocation        = 0.2
	defaultMinNotional       = 10
	defaultReducePct         = 0.5
	defaultReallocateCost    = 2
	defaultMaxCapital        = 1000
	defaultMaxTradesPerDay   = 5
	defaultDebounceSeconds   = 10
	defaultStreak            = 3
	defaultTimezone          = "Local"
	defaultSchedulerInterval = "1m"
)

var (
	defaultWishlist = []string{"IBM", "AAPL", "MSFT"}

	defaultSourceURLs = map[string]string{
		"alphavantage": "https://www.alphavantage.co",
		"binance":      "https://fapi.binance.com",
		"gate":         "https://api.gateio.ws/api/v4",
	}
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.News.applyDefaults(keys)
	c.Mood.applyDefaults(keys)
	c.Judge.applyDefaults(keys)
	c.Execution.applyDefaults(keys)
	c.Session.applyDefaults(keys)
	c.Scheduler.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.user_id", &a.UserID, defaultAppUserID),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		intFieldDefault("app.log_max_size_mb", &a.LogMaxSizeMB, defaultAppLogMaxSizeMB),
		intFieldDefault("app.log_max_backups", &a.LogMaxBackups, defaultAppLogMaxBackups),
		intFieldDefault("app.log_max_age_days", &a.LogMaxAgeDays, defaultAppLogMaxAgeDays),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		stringFieldDefault("store.decision_log_path", &s.DecisionLogPath, defaultDecisionLogPath),
		floatFieldDefault("store.initial_cash", &s.InitialCash, defaultInitialCash),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	if len(m.Sources) == 0 {
		m.Sources = []MarketSource{{Name: defaultMarketName, Enabled: true}}
	}
	for i := range m.Sources {
		src := &m.Sources[i]
		src.Name = strings.ToLower(strings.TrimSpace(src.Name))
		if src.Name == "" {
			if i == 0 {
				src.Name = defaultMarketName
			} else {
				src.Name = fmt.Sprintf("market_%d", i)
			}
		}
		if src.RESTBaseURL == "" {
			src.RESTBaseURL = defaultSourceURLs[src.Name]
		}
		if src.TimeoutSeconds <= 0 {
			src.TimeoutSeconds = defaultSourceTimeout
		}
	}
	if strings.TrimSpace(m.ActiveSource) == "" {
		m.ActiveSource = firstEnabledMarket(m.Sources)
	}
	applyFieldDefaults(keys,
		intFieldDefault("market.history_days", &m.HistoryDays, defaultHistoryDays),
		intFieldDefault("market.cache_ttl_seconds", &m.CacheTTLSeconds, defaultCacheTTLSeconds),
		intFieldDefault("market.breaker.threshold", &m.Breaker.Threshold, defaultBreakerThreshold),
		intFieldDefault("market.breaker.cooldown_seconds", &m.Breaker.CooldownSeconds, defaultBreakerCooldown),
	)
}

func (n *NewsConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("news.source", &n.Source, defaultNewsSource),
		intFieldDefault("news.limit", &n.Limit, defaultNewsLimit),
	)
}

func (m *MoodConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("mood.provider", &m.Provider, defaultMoodProvider),
		stringFieldDefault("mood.model", &m.Model, defaultMoodModel),
		intFieldDefault("mood.timeout_seconds", &m.TimeoutSeconds, defaultMoodTimeout),
	)
}

func (j *JudgeConfig) applyDefaults(keys keySet) {
	if j == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("judge.evaluator_timeout_seconds", &j.EvaluatorTimeoutSeconds, defaultEvaluatorTimeout),
		intFieldDefault("judge.symbol_concurrency", &j.SymbolConcurrency, defaultSymbolConcurrency),
	)
}

func (e *ExecutionConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("execution.slippage", &e.Slippage, defaultSlippage),
		intFieldDefault("execution.max_fills_per_loop", &e.MaxFillsPerLoop, defaultMaxFillsPerLoop),
		floatFieldDefault("execution.allocation", &e.Allocation, defaultAllocation),
		floatFieldDefault("execution.min_notional", &e.MinNotional, defaultMinNotional),
		floatFieldDefault("execution.reduce_pct", &e.ReducePct, defaultReducePct),
		intFieldDefault("execution.reallocate_cost", &e.ReallocateCost, defaultReallocateCost),
	)
}

func (s *SessionConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("session.max_capital", &s.MaxCapital, defaultMaxCapital),
		intFieldDefault("session.max_trades_per_day", &s.MaxTradesPerDay, defaultMaxTradesPerDay),
		intFieldDefault("session.debounce_seconds", &s.DebounceSeconds, defaultDebounceSeconds),
		intFieldDefault("session.loss_streak", &s.LossStreak, defaultStreak),
		intFieldDefault("session.win_streak", &s.WinStreak, defaultStreak),
		stringFieldDefault("session.timezone", &s.Timezone, defaultTimezone),
		fieldDefault{
			key:   "session.wishlist",
			need:  func() bool { return s.Wishlist == nil },
			apply: func() { s.Wishlist = append([]string(nil), defaultWishlist...) },
		},
	)
}

func (s *SchedulerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("scheduler.interval", &s.Interval, defaultSchedulerInterval),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

func firstEnabledMarket(sources []MarketSource) string {
	for _, src := range sources {
		name := strings.TrimSpace(src.Name)
		if src.Enabled && name != "" {
			return name
		}
	}
	if len(sources) > 0 {
		if name := strings.TrimSpace(sources[0].Name); name != "" {
			return name
		}
	}
	return defaultMarketName
}
