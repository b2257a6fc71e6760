package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type historyEntry struct {
	candles []Candle
	limit   int
	at      time.Time
}

// CachedSource 给下游 Source 加一层 TTL 缓存，同一 symbol 的并发请求只打一次上游。
type CachedSource struct {
	next Source
	ttl  time.Duration
	now  func() time.Time
	// minFetch 让不同评估器的请求合并成同一次上游拉取。
	minFetch int

	mu      sync.RWMutex
	history map[string]historyEntry
	group   singleflight.Group
}

func NewCachedSource(next Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		history: make(map[string]historyEntry),
	}
}

// SetMinFetch 设置每次向上游拉取的最少根数。
func (c *CachedSource) SetMinFetch(n int) *CachedSource {
	c.minFetch = n
	return c
}

func (c *CachedSource) Name() string { return c.next.Name() }

func (c *CachedSource) DailyHistory(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	c.mu.RLock()
	entry, ok := c.history[key]
	c.mu.RUnlock()
	if ok && entry.limit >= limit && c.now().Sub(entry.at) < c.ttl {
		return tail(entry.candles, limit), nil
	}
	fetch := limit
	if c.minFetch > fetch {
		fetch = c.minFetch
	}
	v, err, _ := c.group.Do(fmt.Sprintf("%s:%d", key, fetch), func() (any, error) {
		candles, err := c.next.DailyHistory(ctx, key, fetch)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.history[key] = historyEntry{candles: candles, limit: fetch, at: c.now()}
		c.mu.Unlock()
		return candles, nil
	})
	if err != nil {
		return nil, err
	}
	return tail(v.([]Candle), limit), nil
}

// LatestPrice 不做缓存，报价总是实时读取。
func (c *CachedSource) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	return c.next.LatestPrice(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
}

func (c *CachedSource) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.history, strings.ToUpper(strings.TrimSpace(symbol)))
	c.mu.Unlock()
}

func tail(candles []Candle, limit int) []Candle {
	if limit <= 0 || len(candles) <= limit {
		return candles
	}
	return candles[len(candles)-limit:]
}
