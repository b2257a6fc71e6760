// Package binance 用 U 本位合约行情作为加密货币的日线与报价来源。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"arbiter/internal/market"
	"arbiter/internal/pkg/circuit"
	symbolpkg "arbiter/internal/pkg/symbol"
)

const (
	maxHistoryLimit = 1500
	dailyInterval   = "1d"
)

// Source 基于 go-binance SDK 实现 market.Source。
type Source struct {
	cfg     Config
	client  *futures.Client
	breaker *circuit.Breaker
	now     func() time.Time
}

var _ market.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{
		cfg:     final,
		client:  client,
		breaker: final.Breaker,
		now:     time.Now,
	}, nil
}

func (s *Source) Name() string { return "binance" }

// DailyHistory 返回已收盘的日线，当天未收盘的那根会被丢弃。
func (s *Source) DailyHistory(ctx context.Context, symbol string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	pair := s.pair(symbol)
	if pair == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	fetch := limit + 1
	if fetch > maxHistoryLimit {
		fetch = maxHistoryLimit
	}
	var out []market.Candle
	err := s.breaker.Do(func() error {
		kls, err := s.client.NewKlinesService().Symbol(pair).Interval(dailyInterval).Limit(fetch).Do(ctx)
		if err != nil {
			return fmt.Errorf("binance klines %s: %w", pair, err)
		}
		nowMs := s.now().UnixMilli()
		out = make([]market.Candle, 0, len(kls))
		for _, kl := range kls {
			if kl == nil || kl.CloseTime > nowMs {
				continue
			}
			out = append(out, market.Candle{
				OpenTime: kl.OpenTime,
				Open:     parseFloat(kl.Open),
				High:     parseFloat(kl.High),
				Low:      parseFloat(kl.Low),
				Close:    parseFloat(kl.Close),
				Volume:   parseFloat(kl.Volume),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Source) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	pair := s.pair(symbol)
	if pair == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	var price float64
	err := s.breaker.Do(func() error {
		prices, err := s.client.NewListPricesService().Symbol(pair).Do(ctx)
		if err != nil {
			return fmt.Errorf("binance price %s: %w", pair, err)
		}
		for _, p := range prices {
			if p != nil && strings.EqualFold(p.Symbol, pair) {
				price = parseFloat(p.Price)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, market.ErrNoQuote
	}
	return price, nil
}

// pair 把 BTC、btc/usdt、BTC-USDT 统一成 BTCUSDT。
func (s *Source) pair(sym string) string {
	return symbolpkg.WithQuote(sym, s.cfg.QuoteAsset).Binance()
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
