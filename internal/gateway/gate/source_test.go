package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/market"
)

func newTestSource(t *testing.T, h http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)
	return s
}

func TestDailyHistoryDropsOpenCandle(t *testing.T) {
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/futures/usdt/candlesticks", r.URL.Path)
		assert.Equal(t, "BTC_USDT", r.URL.Query().Get("contract"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		rows := make([]string, 0, 3)
		for i := 2; i >= 0; i-- {
			open := today.AddDate(0, 0, -i).Unix()
			rows = append(rows, fmt.Sprintf(`{"t":%d,"v":10,"o":"%d","h":"%d","l":"%d","c":"%d.5","sum":"1000"}`, open, 100-i, 101-i, 99-i, 100-i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	})
	s.now = func() time.Time { return today.Add(12 * time.Hour) }

	got, err := s.DailyHistory(context.Background(), "btc", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 98.5, got[0].Close, 1e-9)
	assert.InDelta(t, 99.5, got[1].Close, 1e-9)
	assert.Equal(t, today.AddDate(0, 0, -1).UnixMilli(), got[1].OpenTime)
}

func TestLatestPrice(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/futures/usdt/contracts/ETH_USDT":
			fmt.Fprint(w, `{"name":"ETH_USDT","last_price":"3120.5","mark_price":"3121"}`)
		default:
			fmt.Fprint(w, `{"name":"DOGE_USDT","last_price":"0"}`)
		}
	})

	price, err := s.LatestPrice(context.Background(), "eth/usdt")
	require.NoError(t, err)
	assert.InDelta(t, 3120.5, price, 1e-9)

	_, err = s.LatestPrice(context.Background(), "DOGE")
	assert.ErrorIs(t, err, market.ErrNoQuote)
}

func TestUpstreamErrorsTripBreaker(t *testing.T) {
	calls := 0
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	for i := 0; i < 4; i++ {
		_, err := s.LatestPrice(context.Background(), "BTC")
		require.Error(t, err)
	}
	assert.Equal(t, 3, calls)
}
