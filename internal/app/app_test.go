package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/config"
	"arbiter/internal/governor"
	"arbiter/internal/market"
	"arbiter/internal/store/decisionlog"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Store.Path = filepath.Join(dir, "arbiter.db")
	cfg.Store.DecisionLogPath = filepath.Join(dir, "decisions.db")
	cfg.App.HTTPAddr = "127.0.0.1:0"
	cfg.Session.Wishlist = []string{"IBM", "AAPL"}
	return cfg
}

func TestBuildWiresLoopEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewAppBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	running := string(governor.StatusRunning)
	_, err = a.Governor().Configure(ctx, a.UserID(), governor.Update{Status: &running})
	require.NoError(t, err)

	rep, err := a.Governor().RunLoopOnce(ctx, a.UserID())
	require.NoError(t, err)
	assert.Equal(t, governor.OutcomeSuccess, rep.Outcome)
	assert.Len(t, rep.Symbols, 2)

	entries, err := a.Decisions().List(ctx, decisionlog.Query{UserID: a.UserID()})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	snap, err := a.Store().GetPortfolio(ctx, a.UserID())
	require.NoError(t, err)
	assert.Greater(t, snap.Portfolio.TotalValue, 0.0)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := NewAppBuilder(testConfig(t)).Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestNewMarketSource(t *testing.T) {
	bc := config.BreakerConfig{Threshold: 3, CooldownSeconds: 60}
	cases := []struct {
		name    string
		src     config.MarketSource
		want    string
		wantErr bool
	}{
		{name: "synthetic", src: config.MarketSource{Name: "synthetic"}, want: "synthetic"},
		{name: "empty falls back", src: config.MarketSource{}, want: "synthetic"},
		{name: "yahoo", src: config.MarketSource{Name: "Yahoo"}, want: "yahoo"},
		{name: "binance", src: config.MarketSource{Name: "binance", TimeoutSeconds: 5}, want: "binance"},
		{name: "gate", src: config.MarketSource{Name: "gate"}, want: "gate"},
		{name: "alphavantage", src: config.MarketSource{Name: "alphavantage", APIKey: "demo"}, want: "alphavantage"},
		{name: "alphavantage without key", src: config.MarketSource{Name: "alphavantage"}, wantErr: true},
		{name: "unknown", src: config.MarketSource{Name: "bloomberg"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := newMarketSource(tc.src, bc)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Name())
		})
	}
}

func TestNewNewsSource(t *testing.T) {
	t.Run("none returns empty feed", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.News.Source = "none"
		ns, name, err := newNewsSource(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, "none", name)
		items, err := ns.News(context.Background(), "IBM", 10)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("alphavantage reuses active client", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.News.Source = "alphavantage"
		active, err := newMarketSource(config.MarketSource{Name: "alphavantage", APIKey: "demo"}, cfg.Market.Breaker)
		require.NoError(t, err)
		ns, _, err := newNewsSource(cfg, active)
		require.NoError(t, err)
		assert.Same(t, active.(market.NewsSource), ns)
	})

	t.Run("alphavantage without source entry", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.News.Source = "alphavantage"
		cfg.Market.Sources = nil
		_, _, err := newNewsSource(cfg, nil)
		require.Error(t, err)
	})
}

func TestStartupSummaryRender(t *testing.T) {
	cfg := testConfig(t)
	s := newStartupSummary(cfg, &MarketStack{SourceName: "synthetic", NewsName: "synthetic"}, nil)
	var buf bytes.Buffer
	s.Render(&buf)
	out := buf.String()
	assert.Contains(t, out, "行情源: synthetic")
	assert.Contains(t, out, "关注列表: IBM, AAPL")
	assert.Contains(t, out, "risk=1.00 technical=0.85 quant=0.75 sentiment=0.60")
	assert.Contains(t, out, "策略文件: (内置)")
}
