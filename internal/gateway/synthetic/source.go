// Package synthetic 在没有行情凭据时提供确定性的模拟日线、报价与新闻。
package synthetic

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"arbiter/internal/market"
)

const (
	basePrice = 150.0
	minPrice  = 10.0
	maxDays   = 1000
)

// Source 以 symbol 为种子生成随机游走，同一天内结果稳定。
type Source struct {
	now func() time.Time
}

var (
	_ market.Source     = (*Source)(nil)
	_ market.NewsSource = (*Source)(nil)
)

func New() *Source {
	return &Source{now: time.Now}
}

func (s *Source) Name() string { return "synthetic" }

func (s *Source) DailyHistory(_ context.Context, symbol string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxDays {
		limit = maxDays
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	today := truncateDay(s.now())
	rng := rand.New(rand.NewSource(seed(sym, today)))
	out := make([]market.Candle, limit)
	price := basePrice
	for i := 0; i < limit; i++ {
		price = math.Max(price+(rng.Float64()-0.5)*5, minPrice)
		open := price - rng.Float64()
		out[i] = market.Candle{
			OpenTime: today.AddDate(0, 0, i-limit+1).UnixMilli(),
			Open:     round2(open),
			High:     round2(math.Max(price, open) + rng.Float64()*2),
			Low:      round2(math.Max(math.Min(price, open)-rng.Float64()*2, minPrice/2)),
			Close:    round2(price),
			Volume:   float64(500000 + rng.Intn(1000000)),
		}
	}
	return out, nil
}

// LatestPrice 返回最近一根日线的收盘价。
func (s *Source) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := s.DailyHistory(ctx, symbol, 100)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, market.ErrNoQuote
	}
	return candles[len(candles)-1].Close, nil
}

// News 返回三条固定模板的新闻，情绪有正有负。
func (s *Source) News(_ context.Context, symbol string, limit int) ([]market.NewsItem, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	now := s.now().UTC()
	items := []market.NewsItem{
		{
			Title:          fmt.Sprintf("%s beats earnings expectations", sym),
			Summary:        fmt.Sprintf("Analysts are impressed with %s's quarterly performance.", sym),
			Source:         "Synthetic Wire",
			PublishedAt:    now.Add(-2 * time.Hour),
			SentimentScore: 0.65,
			Relevance:      0.8,
		},
		{
			Title:          fmt.Sprintf("Sector volatility impacts %s", sym),
			Summary:        fmt.Sprintf("Global tech sell-off drags down %s shares.", sym),
			Source:         "Synthetic Wire",
			PublishedAt:    now.Add(-26 * time.Hour),
			SentimentScore: -0.4,
			Relevance:      0.7,
		},
		{
			Title:          fmt.Sprintf("%s announces new partnership", sym),
			Summary:        "Strategic alliance formed to expand market share.",
			Source:         "Synthetic Wire",
			PublishedAt:    now.Add(-51 * time.Hour),
			SentimentScore: 0.2,
			Relevance:      0.9,
		},
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func seed(symbol string, day time.Time) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	_, _ = h.Write([]byte(day.Format("2006-01-02")))
	return int64(h.Sum64() >> 1)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
