package technical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arbiter/internal/agent"
	"arbiter/internal/market"
)

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) DailyHistory(ctx context.Context, symbol string, limit int) ([]market.Candle, error) {
	args := m.Called(ctx, symbol, limit)
	c, _ := args.Get(0).([]market.Candle)
	return c, args.Error(1)
}

// zigzag 交替涨 up 跌 down，最后一步为下跌。
func zigzag(n int, start, up, down float64) []float64 {
	out := make([]float64, n)
	out[0] = start
	for i := 1; i < n; i++ {
		if (n-1-i)%2 == 0 {
			out[i] = out[i-1] + down
		} else {
			out[i] = out[i-1] + up
		}
	}
	return out
}

func TestAnalyzeUptrendHealthyRSIBuys(t *testing.T) {
	res := Analyze("IBM", zigzag(120, 100, 4, -2))
	assert.Equal(t, "UPTREND", res.Metrics["regime"])
	assert.Equal(t, agent.ActionBuy, res.PrimaryAction)
	assert.Equal(t, []agent.Action{agent.ActionBuyMore, agent.ActionHold}, res.Decisions)
	assert.GreaterOrEqual(t, res.Confidence, 0.3)
	assert.LessOrEqual(t, res.Confidence, 0.85)
}

func TestAnalyzeDowntrendSells(t *testing.T) {
	res := Analyze("IBM", zigzag(120, 400, -4, 2))
	assert.Equal(t, "DOWNTREND", res.Metrics["regime"])
	assert.Equal(t, agent.ActionSell, res.PrimaryAction)
	assert.Equal(t, []agent.Action{agent.ActionReduce, agent.ActionExit}, res.Decisions)
}

func TestEvaluateInsufficientHistoryHolds(t *testing.T) {
	h := new(mockHistory)
	h.On("DailyHistory", mock.Anything, "AAPL", historyDays).Return(make([]market.Candle, 10), nil)

	res, err := New(h).Evaluate(context.Background(), "AAPL", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.ActionHold, res.PrimaryAction)
	assert.Zero(t, res.Confidence)
	h.AssertExpectations(t)
}
