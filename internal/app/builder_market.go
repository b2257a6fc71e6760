package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arbiter/internal/config"
	"arbiter/internal/gateway/alphavantage"
	"arbiter/internal/gateway/binance"
	"arbiter/internal/gateway/gate"
	"arbiter/internal/gateway/synthetic"
	"arbiter/internal/gateway/yahoo"
	"arbiter/internal/logger"
	"arbiter/internal/market"
	"arbiter/internal/pkg/circuit"
)

// MarketStack 是行情与新闻两条数据通路。
type MarketStack struct {
	Source     market.Source
	Cached     *market.CachedSource
	News       market.NewsSource
	SourceName string
	NewsName   string
}

func buildMarketStack(cfg *config.Config) (*MarketStack, error) {
	active := cfg.Market.ResolveActiveSource()
	src, err := newMarketSource(active, cfg.Market.Breaker)
	if err != nil {
		return nil, fmt.Errorf("初始化行情源失败: %w", err)
	}
	cached := market.NewCachedSource(src, cfg.Market.CacheTTL()).SetMinFetch(cfg.Market.HistoryDays)
	logger.Infof("✓ 行情源 %s 已就绪 (history=%d ttl=%s)", src.Name(), cfg.Market.HistoryDays, cfg.Market.CacheTTL())

	news, newsName, err := newNewsSource(cfg, src)
	if err != nil {
		return nil, fmt.Errorf("初始化新闻源失败: %w", err)
	}
	return &MarketStack{
		Source:     src,
		Cached:     cached,
		News:       news,
		SourceName: src.Name(),
		NewsName:   newsName,
	}, nil
}

func newBreaker(name string, bc config.BreakerConfig) *circuit.Breaker {
	return circuit.New(name, bc.Threshold, time.Duration(bc.CooldownSeconds)*time.Second)
}

func newMarketSource(src config.MarketSource, bc config.BreakerConfig) (market.Source, error) {
	name := strings.ToLower(strings.TrimSpace(src.Name))
	timeout := time.Duration(src.TimeoutSeconds) * time.Second
	switch name {
	case "", "synthetic":
		return synthetic.New(), nil
	case "alphavantage":
		return alphavantage.New(alphavantage.Config{
			BaseURL: src.RESTBaseURL,
			APIKey:  src.APIKey,
			Timeout: timeout,
			Breaker: newBreaker(name, bc),
		})
	case "yahoo":
		return yahoo.New(newBreaker(name, bc)), nil
	case "binance":
		return binance.New(binance.Config{
			RESTBaseURL: src.RESTBaseURL,
			HTTPTimeout: timeout,
			Breaker:     newBreaker(name, bc),
		})
	case "gate":
		return gate.New(gate.Config{
			RESTBaseURL: src.RESTBaseURL,
			HTTPTimeout: timeout,
			Breaker:     newBreaker(name, bc),
		})
	default:
		return nil, fmt.Errorf("unsupported market source %q", src.Name)
	}
}

// newNewsSource 优先复用同名的行情客户端，避免重复的限流计数。
func newNewsSource(cfg *config.Config, active market.Source) (market.NewsSource, string, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.News.Source))
	switch name {
	case "none":
		return emptyNews{}, name, nil
	case "", "synthetic":
		return synthetic.New(), "synthetic", nil
	case "alphavantage":
		if ns, ok := active.(market.NewsSource); ok && active.Name() == name {
			return ns, name, nil
		}
		src, ok := cfg.Market.Source(name)
		if !ok {
			return nil, "", fmt.Errorf("news.source=alphavantage requires a market.sources entry with api_key")
		}
		client, err := alphavantage.New(alphavantage.Config{
			BaseURL: src.RESTBaseURL,
			APIKey:  src.APIKey,
			Timeout: time.Duration(src.TimeoutSeconds) * time.Second,
			Breaker: newBreaker("alphavantage-news", cfg.Market.Breaker),
		})
		if err != nil {
			return nil, "", err
		}
		return client, name, nil
	default:
		return nil, "", fmt.Errorf("unsupported news source %q", cfg.News.Source)
	}
}

type emptyNews struct{}

func (emptyNews) News(context.Context, string, int) ([]market.NewsItem, error) { return nil, nil }
