// Package alphavantage 封装 Alpha Vantage 的日线、报价与新闻情绪接口。
package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"arbiter/internal/logger"
	"arbiter/internal/market"
	"arbiter/internal/pkg/circuit"
)

// ErrRateLimited 对应响应体里的 Note / Information 提示。
var ErrRateLimited = errors.New("alphavantage rate limit reached")

const (
	defaultBaseURL  = "https://www.alphavantage.co"
	newsTimeLayout  = "20060102T150405"
	dailySeriesKey  = "Time Series (Daily)"
	globalQuoteKey  = "Global Quote"
	defaultTimeout  = 15 * time.Second
	maxNewsPageSize = 50
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker *circuit.Breaker
}

// Client 同时实现 market.Source 与 market.NewsSource。
type Client struct {
	http    *resty.Client
	apiKey  string
	breaker *circuit.Breaker
}

var (
	_ market.Source     = (*Client)(nil)
	_ market.NewsSource = (*Client)(nil)
)

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("alphavantage api key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuit.New("alphavantage", 3, time.Minute)
	}
	client := resty.New()
	client.SetBaseURL(base)
	client.SetTimeout(timeout)
	return &Client{http: client, apiKey: cfg.APIKey, breaker: breaker}, nil
}

func (c *Client) Name() string { return "alphavantage" }

// DailyHistory 读取复权日线，按时间升序返回最近 limit 根。
func (c *Client) DailyHistory(ctx context.Context, symbol string, limit int) ([]market.Candle, error) {
	params := map[string]string{"function": "TIME_SERIES_DAILY_ADJUSTED", "symbol": symbol}
	if limit > 100 {
		params["outputsize"] = "full"
	}
	body, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	series := body.Get(escape(dailySeriesKey))
	if !series.Exists() {
		return nil, fmt.Errorf("no daily data for %s", symbol)
	}
	out := make([]market.Candle, 0, 128)
	series.ForEach(func(key, v gjson.Result) bool {
		day, err := time.Parse("2006-01-02", key.String())
		if err != nil {
			return true
		}
		vol := v.Get(escape("6. volume"))
		if !vol.Exists() {
			vol = v.Get(escape("5. volume"))
		}
		out = append(out, market.Candle{
			OpenTime: day.UnixMilli(),
			Open:     v.Get(escape("1. open")).Float(),
			High:     v.Get(escape("2. high")).Float(),
			Low:      v.Get(escape("3. low")).Float(),
			Close:    v.Get(escape("4. close")).Float(),
			Volume:   vol.Float(),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := c.query(ctx, map[string]string{"function": "GLOBAL_QUOTE", "symbol": symbol})
	if err != nil {
		return 0, err
	}
	price := body.Get(escape(globalQuoteKey) + "." + escape("05. price")).Float()
	if price <= 0 {
		return 0, market.ErrNoQuote
	}
	return price, nil
}

// News 读取 NEWS_SENTIMENT，相关度取该 symbol 在 ticker_sentiment 中的值。
func (c *Client) News(ctx context.Context, symbol string, limit int) ([]market.NewsItem, error) {
	if limit <= 0 || limit > maxNewsPageSize {
		limit = maxNewsPageSize
	}
	body, err := c.query(ctx, map[string]string{
		"function": "NEWS_SENTIMENT",
		"tickers":  symbol,
		"limit":    strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}
	feed := body.Get("feed")
	if !feed.IsArray() {
		return nil, nil
	}
	relevancePath := fmt.Sprintf(`ticker_sentiment.#(ticker==%q).relevance_score`, symbol)
	items := make([]market.NewsItem, 0, len(feed.Array()))
	for _, it := range feed.Array() {
		published, _ := time.Parse(newsTimeLayout, it.Get("time_published").String())
		items = append(items, market.NewsItem{
			Title:          it.Get("title").String(),
			Summary:        it.Get("summary").String(),
			Source:         it.Get("source").String(),
			URL:            it.Get("url").String(),
			PublishedAt:    published,
			SentimentScore: it.Get("overall_sentiment_score").Float(),
			Relevance:      it.Get(relevancePath).Float(),
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].PublishedAt.After(items[j].PublishedAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (c *Client) query(ctx context.Context, params map[string]string) (gjson.Result, error) {
	var body gjson.Result
	err := c.breaker.Do(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetQueryParam("apikey", c.apiKey).
			Get("/query")
		if err != nil {
			return fmt.Errorf("alphavantage %s: %w", params["function"], err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("alphavantage %s: status %d", params["function"], resp.StatusCode())
		}
		body = gjson.ParseBytes(resp.Body())
		if note := body.Get("Note"); note.Exists() {
			return fmt.Errorf("%w: %s", ErrRateLimited, note.String())
		}
		if info := body.Get("Information"); info.Exists() {
			return fmt.Errorf("%w: %s", ErrRateLimited, info.String())
		}
		if msg := body.Get(escape("Error Message")); msg.Exists() {
			return fmt.Errorf("alphavantage %s: %s", params["function"], msg.String())
		}
		return nil
	})
	if err != nil {
		logger.Debugf("alphavantage %s %s failed: %v", params["function"], params["symbol"]+params["tickers"], err)
		return gjson.Result{}, err
	}
	return body, nil
}

// escape 转义 gjson 路径里的点号，Alpha Vantage 的字段名形如 "1. open"。
func escape(key string) string {
	return strings.ReplaceAll(key, ".", `\.`)
}
