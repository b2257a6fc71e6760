package config

import (
	"fmt"
	"strings"
	"time"
)

var knownSources = map[string]bool{
	"synthetic":    true,
	"alphavantage": true,
	"yahoo":        true,
	"binance":      true,
	"gate":         true,
}

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if strings.TrimSpace(c.App.UserID) == "" {
		return fmt.Errorf("app.user_id cannot be empty")
	}
	if c.Store.InitialCash <= 0 {
		return fmt.Errorf("store.initial_cash must be > 0")
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.News.validate(); err != nil {
		return err
	}
	if err := c.Mood.validate(); err != nil {
		return err
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	enabled := 0
	activeName := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	activeFound := false
	for _, src := range m.Sources {
		if !knownSources[src.Name] {
			return fmt.Errorf("unknown market source %q", src.Name)
		}
		if !src.Enabled {
			continue
		}
		enabled++
		if src.Name == "alphavantage" && strings.TrimSpace(src.APIKey) == "" {
			return fmt.Errorf("market source alphavantage requires api_key")
		}
		if src.Name == activeName {
			activeFound = true
		}
	}
	if enabled == 0 {
		return fmt.Errorf("market.sources requires at least one enabled source")
	}
	if !activeFound {
		return fmt.Errorf("enabled market.active_source=%s not found", m.ActiveSource)
	}
	if m.HistoryDays < 30 {
		return fmt.Errorf("market.history_days must be >= 30")
	}
	return nil
}

func (n *NewsConfig) validate() error {
	switch strings.ToLower(n.Source) {
	case "synthetic", "alphavantage", "none":
		return nil
	}
	return fmt.Errorf("news.source must be synthetic, alphavantage or none")
}

func (m *MoodConfig) validate() error {
	switch strings.ToLower(m.Provider) {
	case "keyword":
		return nil
	case "openai":
		if strings.TrimSpace(m.APIURL) == "" {
			return fmt.Errorf("mood.api_url is required for provider openai")
		}
		return nil
	}
	return fmt.Errorf("mood.provider must be keyword or openai")
}

func (e *ExecutionConfig) validate() error {
	if e.Slippage < 0 || e.Slippage >= 0.1 {
		return fmt.Errorf("execution.slippage must be in [0,0.1)")
	}
	if e.Allocation <= 0 || e.Allocation > 1 {
		return fmt.Errorf("execution.allocation must be in (0,1]")
	}
	if e.ReducePct <= 0 || e.ReducePct > 1 {
		return fmt.Errorf("execution.reduce_pct must be in (0,1]")
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if s.MaxCapital <= 0 {
		return fmt.Errorf("session.max_capital must be > 0")
	}
	if s.MaxTradesPerDay <= 0 {
		return fmt.Errorf("session.max_trades_per_day must be > 0")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("session.timezone invalid: %w", err)
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if d := s.IntervalDuration(); d < 10*time.Second {
		return fmt.Errorf("scheduler.interval must be a duration >= 10s, got %q", s.Interval)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}
