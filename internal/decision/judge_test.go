package decision

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/agent"
)

func bullish(role agent.Role, conf float64, metrics map[string]any) agent.Result {
	return agent.Result{
		AgentID:       role,
		Symbol:        "IBM",
		PrimaryAction: agent.ActionBuy,
		Decisions:     []agent.Action{agent.ActionBuyMore, agent.ActionHold},
		Confidence:    conf,
		Metrics:       metrics,
	}
}

func riskResult(primary agent.Action, decisions []agent.Action, conf float64, exit agent.ExitRisk) agent.Result {
	return agent.Result{
		AgentID:       agent.RoleRisk,
		Symbol:        "IBM",
		PrimaryAction: primary,
		Decisions:     decisions,
		Confidence:    conf,
		Metrics:       map[string]any{agent.MetricExitRisk: string(exit)},
	}
}

func bullishPanel() []agent.Result {
	return []agent.Result{
		bullish(agent.RoleTechnical, 0.8, nil),
		bullish(agent.RoleSentiment, 0.85, map[string]any{agent.MetricMood: "BULLISH", agent.MetricVolumeIntensity: "HIGH"}),
		bullish(agent.RoleQuant, 0.9, map[string]any{agent.MetricMomentum5: 0.03, agent.MetricMomentum20: 0.07, agent.MetricZScore: 1.1}),
	}
}

func TestJudgeBullishConsensus(t *testing.T) {
	results := append(bullishPanel(), riskResult(agent.ActionHold, []agent.Action{agent.ActionHold, agent.ActionBuyMore}, 0.7, agent.ExitRiskLow))
	d := NewJudge(DefaultPolicy()).Judge(Input{Symbol: "ibm", Results: results, MarketPrice: 150})

	assert.Equal(t, "IBM", d.Symbol)
	assert.Equal(t, agent.ActionBuyMore, d.FinalAction)
	assert.False(t, d.VetoApplied)
	assert.False(t, d.Reallocate)
	require.Len(t, d.TopCandidates, 4)
	// risk BUY_MORE: 1.0 × 0.7 × 2 × 1.2
	assert.Equal(t, agent.RoleRisk, d.TopCandidates[0].Source)
	assert.InDelta(t, 1.68, d.TopCandidates[0].Score, 1e-9)
	// 1.68 + quant 0.75×0.9×2×1.2 + technical 0.85×0.8×2 + sentiment 0.6×0.85×2×1.1
	assert.InDelta(t, 1.68+1.62+1.36+1.122, d.IntentScore, 1e-9)
	assert.Contains(t, d.Reasoning, "IBM -> BUY_MORE")
}

func TestJudgeLiquidityVetoForcesExit(t *testing.T) {
	results := append(bullishPanel(), riskResult(agent.ActionSell, []agent.Action{agent.ActionSell, agent.ActionExit}, 0.95, agent.ExitRiskHigh))
	d := NewJudge(DefaultPolicy()).Judge(Input{Symbol: "IBM", Results: results})

	assert.True(t, d.VetoApplied)
	assert.Equal(t, agent.ActionExit, d.FinalAction)
	assert.Equal(t, -100.0, d.IntentScore)
	assert.True(t, d.Reallocate)
	for _, c := range d.TopCandidates {
		assert.False(t, c.Action.IsBuy())
	}
	assert.Contains(t, d.Reasoning, "Liquidity veto")
}

func TestJudgeProfitTakingOverridesSignals(t *testing.T) {
	results := append(bullishPanel(), riskResult(agent.ActionHold, []agent.Action{agent.ActionHold, agent.ActionBuyMore}, 0.7, agent.ExitRiskLow))
	pos := &agent.Position{Symbol: "IBM", Qty: 10, AvgPrice: 100, CurrentPrice: 110}
	d := NewJudge(DefaultPolicy()).Judge(Input{Symbol: "IBM", Results: results, Position: pos, MarketPrice: 116})

	assert.Equal(t, agent.ActionExit, d.FinalAction)
	assert.Equal(t, -100.0, d.IntentScore)
	assert.True(t, d.Reallocate)
}

func TestJudgeAllEvaluatorsFailed(t *testing.T) {
	var results []agent.Result
	for _, role := range agent.ExpansionOrder {
		results = append(results, agent.Fallback(role, "IBM", errors.New("timeout")))
	}
	d := NewJudge(DefaultPolicy()).Judge(Input{Symbol: "IBM", Results: results})
	assert.Equal(t, agent.ActionHold, d.FinalAction)
	assert.Zero(t, d.IntentScore)
	assert.Len(t, d.Notes, 4)
}

func TestAggregateDropsEvaluatorWithoutDecisions(t *testing.T) {
	agg := DefaultPolicy().Aggregate([]agent.Result{
		{AgentID: agent.RoleTechnical, Confidence: 0.9},
		bullish(agent.RoleQuant, 0.5, nil),
	})
	for _, c := range agg.Ranked {
		assert.Equal(t, agent.RoleQuant, c.Source)
	}
}

func TestAggregateRespectsExpansionOrderOnTies(t *testing.T) {
	// 同分时先展开的评估器排在前面。
	results := []agent.Result{
		{AgentID: "custom", Decisions: []agent.Action{agent.ActionExit}, Confidence: 0.85},
		{AgentID: agent.RoleTechnical, Decisions: []agent.Action{agent.ActionExit}, Confidence: 0.5},
	}
	p := DefaultPolicy()
	p.DefaultWeight = 0.5
	agg := p.Aggregate(results)
	require.Len(t, agg.Ranked, 2)
	assert.InDelta(t, agg.Ranked[0].Score, agg.Ranked[1].Score, 1e-12)
	assert.Equal(t, agent.RoleTechnical, agg.Ranked[0].Source)
}

func TestVetoOnlyFlaggedWhenSomethingRemoved(t *testing.T) {
	results := []agent.Result{
		riskResult(agent.ActionReduce, []agent.Action{agent.ActionReduce, agent.ActionHold}, 0.5, agent.ExitRiskHigh),
		{AgentID: agent.RoleTechnical, Decisions: []agent.Action{agent.ActionHold, agent.ActionReduce}, Confidence: 0.6},
	}
	agg := DefaultPolicy().Aggregate(results)
	assert.False(t, agg.VetoApplied)

	results = append(results, bullish(agent.RoleSentiment, 0.6, nil))
	agg = DefaultPolicy().Aggregate(results)
	assert.True(t, agg.VetoApplied)

	// REDUCE 但离场风险不是 HIGH 时不触发否决。
	results[0] = riskResult(agent.ActionReduce, []agent.Action{agent.ActionReduce, agent.ActionHold}, 0.5, agent.ExitRiskMedium)
	agg = DefaultPolicy().Aggregate(results)
	assert.False(t, agg.VetoApplied)
}

func TestQualityMultiplier(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		name string
		c    Candidate
		want float64
	}{
		{"technical", Candidate{Source: agent.RoleTechnical}, 1.0},
		{"quant trend", Candidate{Source: agent.RoleQuant, Metrics: map[string]any{agent.MetricMomentum5: 0.03, agent.MetricMomentum20: 0.06}}, 1.2},
		{"quant overextended wins", Candidate{Source: agent.RoleQuant, Metrics: map[string]any{agent.MetricMomentum5: 0.03, agent.MetricMomentum20: 0.06, agent.MetricZScore: -2.5}}, 0.9},
		{"quant weak", Candidate{Source: agent.RoleQuant, Metrics: map[string]any{agent.MetricMomentum5: 0.03, agent.MetricMomentum20: 0.01}}, 1.0},
		{"risk low", Candidate{Source: agent.RoleRisk, Metrics: map[string]any{agent.MetricExitRisk: "LOW"}}, 1.2},
		{"risk high", Candidate{Source: agent.RoleRisk, Metrics: map[string]any{agent.MetricExitRisk: "HIGH"}}, 0.8},
		{"risk medium", Candidate{Source: agent.RoleRisk, Metrics: map[string]any{agent.MetricExitRisk: "MEDIUM"}}, 1.0},
		{"sentiment bullish volume", Candidate{Source: agent.RoleSentiment, Metrics: map[string]any{agent.MetricMood: "BULLISH", agent.MetricVolumeIntensity: "HIGH"}}, 1.1},
		{"sentiment bullish quiet", Candidate{Source: agent.RoleSentiment, Metrics: map[string]any{agent.MetricMood: "BULLISH", agent.MetricVolumeIntensity: "LOW"}}, 1.0},
		{"unknown", Candidate{Source: "macro"}, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, p.quality(tc.c), 1e-12)
		})
	}

	p.Quality.RiskLowBoost = 3
	assert.Equal(t, 1.5, p.quality(Candidate{Source: agent.RoleRisk, Metrics: map[string]any{agent.MetricExitRisk: "LOW"}}))
}

var (
	allRoles   = []agent.Role{agent.RoleRisk, agent.RoleTechnical, agent.RoleQuant, agent.RoleSentiment, "macro"}
	allActions = []agent.Action{agent.ActionBuyMore, agent.ActionBuy, agent.ActionHold, agent.ActionReduce, agent.ActionExit, agent.ActionSell, agent.ActionReallocate, "WAIT"}
)

func randomResults(rng *rand.Rand) []agent.Result {
	var out []agent.Result
	for _, role := range allRoles {
		if rng.Intn(5) == 0 {
			continue
		}
		n := rng.Intn(3)
		ds := make([]agent.Action, n)
		for i := range ds {
			ds[i] = allActions[rng.Intn(len(allActions))]
		}
		primary := agent.ActionHold
		if n > 0 {
			primary = ds[0]
		}
		exits := []string{"LOW", "MEDIUM", "HIGH"}
		out = append(out, agent.Result{
			AgentID:       role,
			PrimaryAction: primary,
			Decisions:     ds,
			Confidence:    rng.Float64(),
			Metrics: map[string]any{
				agent.MetricExitRisk:   exits[rng.Intn(3)],
				agent.MetricMomentum5:  rng.Float64()*0.1 - 0.05,
				agent.MetricMomentum20: rng.Float64()*0.2 - 0.1,
				agent.MetricZScore:     rng.Float64()*6 - 3,
			},
		})
	}
	return out
}

func TestAggregateInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := DefaultPolicy()
	for i := 0; i < 2000; i++ {
		results := randomResults(rng)
		agg := p.Aggregate(results)

		assert.LessOrEqual(t, len(agg.Top), 4)
		per := map[agent.Role]int{}
		for _, c := range agg.Top {
			per[c.Source]++
			assert.LessOrEqual(t, per[c.Source], 2)
			assert.GreaterOrEqual(t, c.Quality, 0.5)
			assert.LessOrEqual(t, c.Quality, 1.5)
		}
		for j := 1; j < len(agg.Ranked); j++ {
			assert.GreaterOrEqual(t, agg.Ranked[j-1].Score, agg.Ranked[j].Score)
		}
		if liquidityVeto(agg.Risk) {
			for _, c := range agg.Ranked {
				assert.False(t, c.Action.IsBuy(), "veto leaked %s", c.Action)
			}
		}
	}
}

func TestJudgeIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	j := NewJudge(DefaultPolicy())
	pos := &agent.Position{Symbol: "IBM", Qty: 3, AvgPrice: 100, CurrentPrice: 103}
	for i := 0; i < 200; i++ {
		in := Input{Symbol: "IBM", Results: randomResults(rng), Position: pos, MarketPrice: 103}
		assert.Equal(t, j.Judge(in), j.Judge(in))
	}
}

func TestSetPolicyNormalizesPartialOverrides(t *testing.T) {
	j := NewJudge(Policy{Weights: map[agent.Role]float64{agent.RoleSentiment: 0.9}})
	p := j.Policy()
	assert.Equal(t, 0.9, p.Weights[agent.RoleSentiment])
	assert.Equal(t, 1.0, p.Weights[agent.RoleRisk])
	assert.Equal(t, 4, p.MaxTop)
	assert.Equal(t, 0.3, p.Overlay.BuyThreshold)
	assert.NoError(t, p.Validate())
}

func TestNormalizeKeepsZeroOnDefaultBase(t *testing.T) {
	p := DefaultPolicy()
	p.Overlay.SellThreshold = 0
	p.Overlay.LossBiasPenalty = 0
	n := p.Normalize()
	assert.Zero(t, n.Overlay.SellThreshold)
	assert.Zero(t, n.Overlay.LossBiasPenalty)

	// 从零值构造的策略仍按缺省补齐
	n = Policy{}.Normalize()
	assert.Equal(t, -0.25, n.Overlay.SellThreshold)
	assert.Equal(t, 0.5, n.Overlay.LossBiasPenalty)
}
