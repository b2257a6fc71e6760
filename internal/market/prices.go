package market

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"arbiter/internal/logger"
)

// LatestPrices 并发读取报价；没有报价的 symbol 不出现在结果里。
func LatestPrices(ctx context.Context, src QuoteSource, symbols []string) (map[string]float64, error) {
	prices := make([]float64, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			p, err := src.LatestPrice(gctx, sym)
			if err != nil {
				if !errors.Is(err, ErrNoQuote) {
					logger.Warnf("quote %s failed: %v", sym, err)
				}
				return nil
			}
			prices[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(symbols))
	for i, sym := range symbols {
		if prices[i] > 0 {
			out[sym] = prices[i]
		}
	}
	return out, nil
}
