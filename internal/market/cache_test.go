package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) DailyHistory(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	args := m.Called(ctx, symbol, limit)
	candles, _ := args.Get(0).([]Candle)
	return candles, args.Error(1)
}

func (m *mockSource) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func series(n int) []Candle {
	out := make([]Candle, n)
	for i := range out {
		out[i] = Candle{OpenTime: int64(i) * 86_400_000, Close: float64(100 + i), Volume: 1000}
	}
	return out
}

func TestCachedSourceReusesHistoryWithinTTL(t *testing.T) {
	src := new(mockSource)
	src.On("DailyHistory", mock.Anything, "IBM", 120).Return(series(120), nil).Once()

	c := NewCachedSource(src, time.Minute)
	now := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	first, err := c.DailyHistory(context.Background(), "ibm", 120)
	require.NoError(t, err)
	assert.Len(t, first, 120)

	shorter, err := c.DailyHistory(context.Background(), "IBM", 30)
	require.NoError(t, err)
	assert.Len(t, shorter, 30)
	assert.Equal(t, 219.0, shorter[len(shorter)-1].Close)

	src.AssertExpectations(t)
}

func TestCachedSourceRefetchesAfterTTL(t *testing.T) {
	src := new(mockSource)
	src.On("DailyHistory", mock.Anything, "AAPL", 50).Return(series(50), nil).Twice()

	c := NewCachedSource(src, time.Minute)
	now := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.DailyHistory(context.Background(), "AAPL", 50)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = c.DailyHistory(context.Background(), "AAPL", 50)
	require.NoError(t, err)
	src.AssertExpectations(t)
}

func TestCachedSourceCollapsesConcurrentFetches(t *testing.T) {
	src := new(mockSource)
	release := make(chan time.Time)
	src.On("DailyHistory", mock.Anything, "MSFT", 100).
		WaitUntil(release).
		Return(series(100), nil).
		Once()

	c := NewCachedSource(src, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.DailyHistory(context.Background(), "MSFT", 100)
			assert.NoError(t, err)
			assert.Len(t, got, 100)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	src.AssertExpectations(t)
}

func TestLatestPricesDropsMissingQuotes(t *testing.T) {
	src := new(mockSource)
	src.On("LatestPrice", mock.Anything, "IBM").Return(150.0, nil)
	src.On("LatestPrice", mock.Anything, "XYZ").Return(0.0, ErrNoQuote)

	got, err := LatestPrices(context.Background(), src, []string{"IBM", "XYZ"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"IBM": 150}, got)
}

func TestCachedSourceMinFetchSharesOneRequest(t *testing.T) {
	src := new(mockSource)
	src.On("DailyHistory", mock.Anything, "IBM", 150).Return(series(150), nil).Once()

	c := NewCachedSource(src, time.Minute).SetMinFetch(150)
	for _, limit := range []int{60, 120, 60} {
		got, err := c.DailyHistory(context.Background(), "IBM", limit)
		require.NoError(t, err)
		assert.Len(t, got, limit)
	}
	src.AssertExpectations(t)
}
