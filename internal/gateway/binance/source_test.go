package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/market"
)

func TestPairNormalization(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	cases := map[string]string{
		"btc":       "BTCUSDT",
		"BTC/USDT":  "BTCUSDT",
		"eth-usdt":  "ETHUSDT",
		" SOLUSDT ": "SOLUSDT",
		"":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, s.pair(in), in)
	}
}

func TestSourceAgainstFakeAPI(t *testing.T) {
	day := int64(24 * time.Hour / time.Millisecond)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/fapi/v1/klines":
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			assert.Equal(t, "1d", r.URL.Query().Get("interval"))
			rows := ""
			for i := 2; i >= 0; i-- {
				open := today - int64(i)*day
				if rows != "" {
					rows += ","
				}
				rows += fmt.Sprintf(`[%d,"%d","1","1","%d.5","10",%d,"0",5,"0","0","0"]`, open, 100-i, 100-i, open+day-1)
			}
			_, _ = w.Write([]byte("[" + rows + "]"))
		case "/fapi/v1/ticker/price":
			if r.URL.Query().Get("symbol") == "DOGEUSDT" {
				_, _ = w.Write([]byte(`{"symbol":"DOGEUSDT","price":"0","time":1}`))
				return
			}
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"67012.30","time":1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	candles, err := s.DailyHistory(ctx, "btc", 5)
	require.NoError(t, err)
	require.Len(t, candles, 2, "the unclosed daily candle is dropped")
	assert.Equal(t, 98.5, candles[0].Close)
	assert.Equal(t, 99.5, candles[1].Close)

	p, err := s.LatestPrice(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 67012.30, p, 1e-9)

	_, err = s.LatestPrice(ctx, "DOGE")
	assert.ErrorIs(t, err, market.ErrNoQuote)
}
