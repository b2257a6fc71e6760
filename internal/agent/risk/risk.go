// Package risk 评估流动性与离场难度。
package risk

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
	lookback    = 20
)

// Thresholds 是风险打分的阈值，零值字段使用默认。
type Thresholds struct {
	DailyVolatility float64
	VolumeCV        float64
	Amihud          float64
	Concentration   float64
}

var DefaultThresholds = Thresholds{
	DailyVolatility: 0.03,
	VolumeCV:        0.5,
	Amihud:          0.1,
	Concentration:   0.2,
}

type Evaluator struct {
	history market.HistorySource
	th      Thresholds
}

func New(history market.HistorySource) *Evaluator {
	return &Evaluator{history: history, th: DefaultThresholds}
}

func (e *Evaluator) ID() agent.Role { return agent.RoleRisk }

func (e *Evaluator) Evaluate(ctx context.Context, symbol string, pf *agent.PortfolioContext) (agent.Result, error) {
	candles, err := e.history.DailyHistory(ctx, symbol, historyDays)
	if err != nil {
		return agent.Result{}, fmt.Errorf("risk history %s: %w", symbol, err)
	}
	if len(candles) < minHistory {
		return agent.Result{
			AgentID:       agent.RoleRisk,
			Symbol:        symbol,
			PrimaryAction: agent.ActionHold,
			Decisions:     []agent.Action{agent.ActionHold, agent.ActionHold},
			Confidence:    0.6,
			Metrics:       map[string]any{},
			Notes:         []string{"insufficient history, caution"},
		}, nil
	}
	return Analyze(symbol, market.Closes(candles), market.Volumes(candles), pf, e.th), nil
}

func Analyze(symbol string, closes, volumes []float64, pf *agent.PortfolioContext, th Thresholds) agent.Result {
	vol := indicator.DailyVolatility(closes, lookback)
	cv := indicator.CoefficientOfVariation(volumes, lookback)
	amihud := indicator.Amihud(closes, volumes, lookback)

	score := 0
	var warnings []string
	if vol > th.DailyVolatility {
		score += 30
		warnings = append(warnings, "high volatility")
	}
	if cv > th.VolumeCV {
		score += 20
		warnings = append(warnings, "erratic volume")
	}
	if amihud > th.Amihud {
		score += 20
		warnings = append(warnings, "thin liquidity")
	}
	concentration := 0.0
	if pos, ok := pf.Position(symbol); ok && pf.TotalValue > 0 {
		concentration = pos.Qty * closes[len(closes)-1] / pf.TotalValue
		if concentration > th.Concentration {
			score += 30
			warnings = append(warnings, fmt.Sprintf("concentration %.0f%%", concentration*100))
		}
	}

	primary := agent.ActionHold
	decisions := []agent.Action{agent.ActionHold, agent.ActionBuyMore}
	exitRisk := agent.ExitRiskLow
	switch {
	case score > 60:
		primary = agent.ActionSell
		decisions = []agent.Action{agent.ActionSell, agent.ActionExit}
		exitRisk = agent.ExitRiskHigh
	case score > 30:
		primary = agent.ActionReduce
		decisions = []agent.Action{agent.ActionReduce, agent.ActionHold}
		exitRisk = agent.ExitRiskMedium
	}
	if len(warnings) == 0 {
		warnings = append(warnings, "risk profile acceptable")
	}
	return agent.Result{
		AgentID:       agent.RoleRisk,
		Symbol:        symbol,
		PrimaryAction: primary,
		Decisions:     decisions,
		Confidence:    math.Min(float64(score)/100, 1),
		Metrics: map[string]any{
			agent.MetricExitRisk: string(exitRisk),
			"volatility":         vol,
			"volumeCV":           cv,
			"amihud":             amihud,
			"concentration":      concentration,
			"riskScore":          score,
		},
		Notes: warnings,
	}
}
