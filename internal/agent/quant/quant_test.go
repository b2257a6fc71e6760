package quant

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"arbiter/internal/agent"
)

func geometric(n int, start, rate float64) []float64 {
	out := make([]float64, n)
	out[0] = start
	for i := 1; i < n; i++ {
		out[i] = out[i-1] * (1 + rate)
	}
	return out
}

func TestAnalyze(t *testing.T) {
	cases := []struct {
		name      string
		closes    []float64
		primary   agent.Action
		decisions []agent.Action
		conf      float64
	}{
		{"rally", geometric(40, 100, 0.01), agent.ActionBuy, []agent.Action{agent.ActionBuyMore, agent.ActionHold}, 1},
		{"selloff", geometric(40, 100, -0.01), agent.ActionSell, []agent.Action{agent.ActionReduce, agent.ActionExit}, 0.8},
		{"flat", geometric(40, 100, 0), agent.ActionHold, []agent.Action{agent.ActionHold, agent.ActionHold}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Analyze("MSFT", tc.closes)
			assert.Equal(t, tc.primary, res.PrimaryAction)
			assert.Equal(t, tc.decisions, res.Decisions)
			assert.InDelta(t, tc.conf, res.Confidence, 1e-9)
			_, ok := res.MetricFloat(agent.MetricMomentum5)
			assert.True(t, ok)
			_, ok = res.MetricFloat(agent.MetricZScore)
			assert.True(t, ok)
		})
	}
}
