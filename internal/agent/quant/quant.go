// Package quant 以动量、突破与 z-score 打分。
package quant

import (
	"context"
	"fmt"
	"math"

	"arbiter/internal/agent"
	"arbiter/internal/analysis/indicator"
	"arbiter/internal/market"
)

const (
	historyDays = 60
	minHistory  = 30
	// 打分达到 ±actionScore 才给出方向。
	actionScore = 25
)

type Evaluator struct {
	history market.HistorySource
}

func New(history market.HistorySource) *Evaluator {
	return &Evaluator{history: history}
}

func (e *Evaluator) ID() agent.Role { return agent.RoleQuant }

func (e *Evaluator) Evaluate(ctx context.Context, symbol string, _ *agent.PortfolioContext) (agent.Result, error) {
	candles, err := e.history.DailyHistory(ctx, symbol, historyDays)
	if err != nil {
		return agent.Result{}, fmt.Errorf("quant history %s: %w", symbol, err)
	}
	if len(candles) < minHistory {
		return agent.Result{
			AgentID:       agent.RoleQuant,
			Symbol:        symbol,
			PrimaryAction: agent.ActionHold,
			Decisions:     []agent.Action{agent.ActionHold, agent.ActionHold},
			Confidence:    0.5,
			Metrics:       map[string]any{},
			Notes:         []string{"insufficient history"},
		}, nil
	}
	return Analyze(symbol, market.Closes(candles)), nil
}

// Analyze 把方向映射为两个候选：BUY → BUY_MORE/HOLD，SELL → REDUCE/EXIT，其余 HOLD/HOLD。
func Analyze(symbol string, closes []float64) agent.Result {
	last := closes[len(closes)-1]
	mom5 := indicator.Momentum(closes, 5)
	mom20 := indicator.Momentum(closes, 20)
	breakout := last > indicator.PriorHigh(closes, 10)
	z := indicator.ZScore(closes, 20)

	score := 0
	var notes []string
	switch {
	case mom5 > 0.02:
		score += 20
		notes = append(notes, "strong 5d momentum")
	case mom5 < -0.02:
		score -= 20
		notes = append(notes, "weak 5d momentum")
	}
	switch {
	case mom20 > 0.05:
		score += 20
		notes = append(notes, "strong 20d trend")
	case mom20 < -0.05:
		score -= 20
		notes = append(notes, "weak 20d trend")
	}
	if breakout {
		score += 15
		notes = append(notes, "breakout above 10d high")
	}
	switch {
	case z > 2:
		score -= 10
		notes = append(notes, "overextended z>2")
	case z < -2:
		score += 10
		notes = append(notes, "oversold z<-2")
	}

	primary := agent.ActionHold
	decisions := []agent.Action{agent.ActionHold, agent.ActionHold}
	switch {
	case score >= actionScore:
		primary = agent.ActionBuy
		decisions = []agent.Action{agent.ActionBuyMore, agent.ActionHold}
	case score <= -actionScore:
		primary = agent.ActionSell
		decisions = []agent.Action{agent.ActionReduce, agent.ActionExit}
	}
	if len(notes) == 0 {
		notes = append(notes, "neutral quantitative signals")
	}
	return agent.Result{
		AgentID:       agent.RoleQuant,
		Symbol:        symbol,
		PrimaryAction: primary,
		Decisions:     decisions,
		Confidence:    math.Min(math.Abs(float64(score))/50, 1),
		Metrics: map[string]any{
			agent.MetricMomentum5:  mom5,
			agent.MetricMomentum20: mom20,
			agent.MetricZScore:     z,
			"breakout":             breakout,
			"score":                score,
		},
		Notes: notes,
	}
}
