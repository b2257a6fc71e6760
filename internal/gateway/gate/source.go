// Package gate 用 Gate.io 永续合约行情作为加密货币的日线与报价来源。
package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"

	"arbiter/internal/logger"
	"arbiter/internal/market"
	"arbiter/internal/pkg/circuit"
	symbolpkg "arbiter/internal/pkg/symbol"
)

const (
	gateMaxHistoryLimit = 2000
	defaultGateREST     = "https://api.gateio.ws/api/v4"
	dailyInterval       = "1d"
)

type Source struct {
	cfg     Config
	rest    *gateapi.APIClient
	breaker *circuit.Breaker
	now     func() time.Time
}

var _ market.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	restClient, err := newRESTClient(final)
	if err != nil {
		return nil, err
	}
	return &Source{
		cfg:     final,
		rest:    restClient,
		breaker: final.Breaker,
		now:     time.Now,
	}, nil
}

func newRESTClient(cfg Config) (*gateapi.APIClient, error) {
	conf := gateapi.NewConfiguration()
	conf.BasePath = cfg.RESTBaseURL

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.ProxyEnabled && cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid gate REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	conf.HTTPClient = httpClient
	return gateapi.NewAPIClient(conf), nil
}

func (s *Source) Name() string { return "gate" }

// DailyHistory 返回已收盘的日线，升序。
func (s *Source) DailyHistory(ctx context.Context, symbol string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	contract := s.contract(symbol)
	if contract == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	fetch := limit + 1
	if fetch > gateMaxHistoryLimit {
		fetch = gateMaxHistoryLimit
	}
	opts := &gateapi.ListFuturesCandlesticksOpts{
		Limit:    optional.NewInt32(int32(fetch)),
		Interval: optional.NewString(dailyInterval),
	}
	var out []market.Candle
	err := s.breaker.Do(func() error {
		kls, _, err := s.rest.FuturesApi.ListFuturesCandlesticks(ctx, s.cfg.Settle, contract, opts)
		if err != nil {
			logger.Errorf("[gate] fetch kline failed %s limit=%d: %v", contract, fetch, err)
			return fmt.Errorf("gate candlesticks %s: %w", contract, err)
		}
		day := (24 * time.Hour).Milliseconds()
		nowMs := s.now().UnixMilli()
		out = make([]market.Candle, 0, len(kls))
		for _, kl := range kls {
			openTime := int64(kl.T * 1000)
			if openTime+day > nowMs {
				continue
			}
			out = append(out, market.Candle{
				OpenTime: openTime,
				Open:     parseFloat(kl.O),
				High:     parseFloat(kl.H),
				Low:      parseFloat(kl.L),
				Close:    parseFloat(kl.C),
				Volume:   parseFloat(kl.Sum),
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

// LatestPrice 读取合约的最新成交价。
func (s *Source) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	contract := s.contract(symbol)
	if contract == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	var price float64
	err := s.breaker.Do(func() error {
		res, _, err := s.rest.FuturesApi.GetFuturesContract(ctx, s.cfg.Settle, contract)
		if err != nil {
			return fmt.Errorf("gate contract %s: %w", contract, err)
		}
		price = parseFloat(res.LastPrice)
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

func (s *Source) contract(sym string) string {
	return symbolpkg.WithQuote(sym, s.cfg.QuoteAsset).Gate()
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
