// Package yahoo 通过 finance-go 读取 Yahoo Finance 的报价与日线。
package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"arbiter/internal/market"
	"arbiter/internal/pkg/circuit"
)

// Source 的底层库不接收 context，只在请求前检查取消。
type Source struct {
	breaker *circuit.Breaker
	now     func() time.Time
}

var _ market.Source = (*Source)(nil)

func New(breaker *circuit.Breaker) *Source {
	if breaker == nil {
		breaker = circuit.New("yahoo", 3, time.Minute)
	}
	return &Source{breaker: breaker, now: time.Now}
}

func (s *Source) Name() string { return "yahoo" }

func (s *Source) DailyHistory(ctx context.Context, symbol string, limit int) ([]market.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	end := s.now()
	// 自然日换算成交易日，多取一些再裁剪。
	start := end.AddDate(0, 0, -(limit*7/5 + 10))
	var out []market.Candle
	err := s.breaker.Do(func() error {
		iter := chart.Get(&chart.Params{
			Symbol:   sym,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		})
		out = out[:0]
		for iter.Next() {
			bar := iter.Bar()
			out = append(out, market.Candle{
				OpenTime: int64(bar.Timestamp) * 1000,
				Open:     bar.Open.InexactFloat64(),
				High:     bar.High.InexactFloat64(),
				Low:      bar.Low.InexactFloat64(),
				Close:    bar.Close.InexactFloat64(),
				Volume:   float64(bar.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("yahoo chart %s: %w", sym, err)
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
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	var price float64
	err := s.breaker.Do(func() error {
		q, err := quote.Get(sym)
		if err != nil {
			return fmt.Errorf("yahoo quote %s: %w", sym, err)
		}
		if q != nil {
			price = q.RegularMarketPrice
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
