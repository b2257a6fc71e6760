package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"arbiter/internal/agent"
	"arbiter/internal/config"
	cfgloader "arbiter/internal/config/loader"
	"arbiter/internal/decision"
)

type StartupSummary struct {
	Market    MarketSummary
	Session   SessionSummary
	Judge     JudgeSummary
	HTTPAddr  string
	Scheduler string
	Notify    bool
}

type MarketSummary struct {
	Source      string
	News        string
	HistoryDays int
	CacheTTL    string
}

type SessionSummary struct {
	UserID          string
	Wishlist        []string
	MaxCapital      float64
	MaxTradesPerDay int
	Timezone        string
}

type JudgeSummary struct {
	PolicyPath    string
	Weights       string
	BuyThreshold  float64
	SellThreshold float64
	MaxFills      int
}

func newStartupSummary(cfg *config.Config, stack *MarketStack, loader *cfgloader.PolicyLoader) *StartupSummary {
	policy := decision.DefaultPolicy()
	policyPath := "(内置)"
	if loader != nil {
		policy = loader.Snapshot().Policy
		policyPath = loader.Path()
	}
	sched := "关闭"
	if cfg.Scheduler.Enabled {
		sched = "@every " + cfg.Scheduler.Interval
	}
	s := &StartupSummary{
		Market: MarketSummary{
			HistoryDays: cfg.Market.HistoryDays,
			CacheTTL:    cfg.Market.CacheTTL().String(),
		},
		Session: SessionSummary{
			UserID:          cfg.App.UserID,
			Wishlist:        cfg.Session.Wishlist,
			MaxCapital:      cfg.Session.MaxCapital,
			MaxTradesPerDay: cfg.Session.MaxTradesPerDay,
			Timezone:        cfg.Session.Location().String(),
		},
		Judge: JudgeSummary{
			PolicyPath:    policyPath,
			Weights:       formatWeights(policy),
			BuyThreshold:  policy.Overlay.BuyThreshold,
			SellThreshold: policy.Overlay.SellThreshold,
			MaxFills:      cfg.Execution.MaxFillsPerLoop,
		},
		HTTPAddr:  cfg.App.HTTPAddr,
		Scheduler: sched,
		Notify:    cfg.Notify.Telegram.Enabled,
	}
	if stack != nil {
		s.Market.Source = stack.SourceName
		s.Market.News = stack.NewsName
	}
	return s
}

func (s *StartupSummary) Print() {
	s.Render(os.Stdout)
}

func (s *StartupSummary) Render(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[行情 (MARKET DATA)]")
	fmt.Fprintf(w, "  行情源: %s\n", s.Market.Source)
	fmt.Fprintf(w, "  新闻源: %s\n", s.Market.News)
	fmt.Fprintf(w, "  历史长度: %d 天\n", s.Market.HistoryDays)
	fmt.Fprintf(w, "  缓存: %s\n", s.Market.CacheTTL)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[会话 (SESSION)]")
	fmt.Fprintf(w, "  用户: %s\n", s.Session.UserID)
	fmt.Fprintf(w, "  关注列表: %s\n", formatList(s.Session.Wishlist))
	fmt.Fprintf(w, "  资金上限: %.2f\n", s.Session.MaxCapital)
	fmt.Fprintf(w, "  每日交易: %d\n", s.Session.MaxTradesPerDay)
	fmt.Fprintf(w, "  时区: %s\n", s.Session.Timezone)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[裁决 (JUDGE)]")
	fmt.Fprintf(w, "  策略文件: %s\n", s.Judge.PolicyPath)
	fmt.Fprintf(w, "  权重: %s\n", s.Judge.Weights)
	fmt.Fprintf(w, "  阈值: buy>%.2f sell<%.2f\n", s.Judge.BuyThreshold, s.Judge.SellThreshold)
	fmt.Fprintf(w, "  每轮成交上限: %d\n", s.Judge.MaxFills)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[服务 (SERVICES)]")
	fmt.Fprintf(w, "  HTTP: %s\n", s.HTTPAddr)
	fmt.Fprintf(w, "  定时循环: %s\n", s.Scheduler)
	fmt.Fprintf(w, "  Telegram: %v\n", s.Notify)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatWeights(p decision.Policy) string {
	parts := make([]string, 0, len(agent.ExpansionOrder))
	for _, role := range agent.ExpansionOrder {
		if w, ok := p.Weights[role]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.2f", role, w))
		}
	}
	return strings.Join(parts, " ")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
