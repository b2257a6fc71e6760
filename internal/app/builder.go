package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arbiter/internal/agent"
	"arbiter/internal/agent/quant"
	"arbiter/internal/agent/risk"
	"arbiter/internal/agent/sentiment"
	"arbiter/internal/agent/technical"
	"arbiter/internal/config"
	cfgloader "arbiter/internal/config/loader"
	"arbiter/internal/decision"
	"arbiter/internal/executor"
	"arbiter/internal/gateway/notifier"
	"arbiter/internal/gateway/provider"
	"arbiter/internal/governor"
	"arbiter/internal/logger"
	"arbiter/internal/scheduler"
	"arbiter/internal/store/decisionlog"
	"arbiter/internal/store/gormstore"
	apihttp "arbiter/internal/transport/http/api"
)

type AppBuilder struct {
	cfg *config.Config

	marketStackFn func(*config.Config) (*MarketStack, error)
	moodFn        func(provider.MoodConfig) (sentiment.MoodClassifier, error)
	notifierFn    func(config.TelegramConfig) governor.Notifier
}

type AppBuilderOption func(*AppBuilder)

// WithMarketStack 替换行情构造，测试里用来注入假数据源。
func WithMarketStack(fn func(*config.Config) (*MarketStack, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.marketStackFn = fn
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		marketStackFn: buildMarketStack,
		moodFn:        provider.BuildMoodClassifier,
		notifierFn:    buildNotifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	success := false
	var closers []func() error
	defer func() {
		if success {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	store, err := gormstore.NewGormStore(cfg.Store.Path, cfg.Store.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("初始化账户存储失败: %w", err)
	}
	closers = append(closers, store.Close)
	logger.Infof("✓ 账户存储: %s", cfg.Store.Path)

	journal, err := decisionlog.NewStore(cfg.Store.DecisionLogPath)
	if err != nil {
		return nil, fmt.Errorf("初始化决策日志失败: %w", err)
	}
	closers = append(closers, journal.Close)
	logger.Infof("✓ 决策日志: %s", journal.Path())

	stack, err := b.marketStackFn(cfg)
	if err != nil {
		return nil, err
	}

	mood, err := b.moodFn(provider.MoodConfig{
		Provider: cfg.Mood.Provider,
		APIURL:   cfg.Mood.APIURL,
		APIKey:   cfg.Mood.APIKey,
		Model:    cfg.Mood.Model,
		Timeout:  time.Duration(cfg.Mood.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化情绪分类器失败: %w", err)
	}

	panel := agent.NewPanel(cfg.Judge.EvaluatorTimeout(),
		technical.New(stack.Cached),
		quant.New(stack.Cached),
		risk.New(stack.Cached),
		sentiment.New(stack.News, mood).WithNewsLimit(cfg.News.Limit),
	)

	judge, policyLoader, err := buildJudge(cfg.Judge)
	if err != nil {
		return nil, err
	}

	engine := executor.NewEngine(store, executor.Config{
		Slippage:        cfg.Execution.Slippage,
		MaxFillsPerLoop: cfg.Execution.MaxFillsPerLoop,
		Allocation:      cfg.Execution.Allocation,
		MinNotional:     cfg.Execution.MinNotional,
		ReducePct:       cfg.Execution.ReducePct,
		ReallocateCost:  cfg.Execution.ReallocateCost,
	})

	gov, err := governor.New(governorConfig(cfg), governor.Deps{
		Portfolio: store,
		Sessions:  store,
		Quotes:    stack.Cached,
		Panel:     panel,
		Judge:     judge,
		Engine:    engine,
		Journal:   journal,
		Notifier:  b.notifierFn(cfg.Notify.Telegram),
	})
	if err != nil {
		return nil, err
	}

	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		UserID:    cfg.App.UserID,
		Agent:     gov,
		Portfolio: store,
		Decisions: journal,
		Resetters: []governor.Resetter{journal},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	var sched *scheduler.LoopScheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(gov, cfg.App.UserID, cfg.Scheduler.IntervalDuration())
		if err != nil {
			return nil, err
		}
	}

	success = true
	return &App{
		cfg:       cfg,
		store:     store,
		journal:   journal,
		governor:  gov,
		server:    server,
		scheduler: sched,
		policy:    policyLoader,
		Summary:   newStartupSummary(cfg, stack, policyLoader),
	}, nil
}

// buildJudge 在配置了策略文件时挂上热加载。
func buildJudge(jc config.JudgeConfig) (*decision.Judge, *cfgloader.PolicyLoader, error) {
	path := strings.TrimSpace(jc.PolicyPath)
	if path == "" {
		return decision.NewJudge(decision.DefaultPolicy()), nil, nil
	}
	loader, err := cfgloader.NewPolicyLoader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("加载裁决策略失败: %w", err)
	}
	judge := decision.NewJudge(loader.Snapshot().Policy)
	loader.Bind(judge)
	logger.Infof("✓ 裁决策略: %s (热加载)", loader.Path())
	return judge, loader, nil
}

func governorConfig(cfg *config.Config) governor.Config {
	return governor.Config{
		Debounce:          time.Duration(cfg.Session.DebounceSeconds) * time.Second,
		LossStreak:        cfg.Session.LossStreak,
		WinStreak:         cfg.Session.WinStreak,
		SymbolConcurrency: cfg.Judge.SymbolConcurrency,
		InitialCash:       cfg.Store.InitialCash,
		Location:          cfg.Session.Location(),
		Defaults: governor.Defaults{
			MaxCapital:      cfg.Session.MaxCapital,
			MaxTradesPerDay: cfg.Session.MaxTradesPerDay,
			Wishlist:        cfg.Session.Wishlist,
		},
	}
}

func buildNotifier(tc config.TelegramConfig) governor.Notifier {
	if !tc.Enabled {
		return nil
	}
	if strings.TrimSpace(tc.BotToken) == "" || strings.TrimSpace(tc.ChatID) == "" {
		logger.Warnf("telegram 已启用但缺少 bot_token/chat_id，通知关闭")
		return nil
	}
	logger.Infof("✓ Telegram 通知已启用")
	return notifier.NewTelegram(tc.BotToken, tc.ChatID)
}
