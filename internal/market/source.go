package market

import (
	"context"
	"errors"
	"time"
)

// ErrNoQuote 表示数据源暂时没有可用报价，调用方应当跳过而不是失败。
var ErrNoQuote = errors.New("no quote available")

// HistorySource 返回按时间升序排列的日线，最多 limit 根。
type HistorySource interface {
	DailyHistory(ctx context.Context, symbol string, limit int) ([]Candle, error)
}

type QuoteSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// Source 是行情适配器的完整能力。
type Source interface {
	HistorySource
	QuoteSource
	Name() string
}

// NewsItem 是一条带情绪打分的新闻。
type NewsItem struct {
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Source         string    `json:"source"`
	URL            string    `json:"url"`
	PublishedAt    time.Time `json:"published_at"`
	SentimentScore float64   `json:"sentiment_score"`
	Relevance      float64   `json:"relevance"`
}

// NewsSource 返回按发布时间倒序排列的新闻。
type NewsSource interface {
	News(ctx context.Context, symbol string, limit int) ([]NewsItem, error)
}
