// Package technical 基于均线、RSI 与波动率判断趋势状态。
package technical

import (
	"context"
	"fmt"
	"math"

	"arbiter/internal/agent"
	"arbiter/internal/analysis/indicator"
	"arbiter/internal/market"
)

const (
	historyDays = 120
	minHistory  = 60
)

type Regime string

const (
	RegimeUp    Regime = "UPTREND"
	RegimeDown  Regime = "DOWNTREND"
	RegimeRange Regime = "RANGE"
)

type Evaluator struct {
	history market.HistorySource
}

func New(history market.HistorySource) *Evaluator {
	return &Evaluator{history: history}
}

func (e *Evaluator) ID() agent.Role { return agent.RoleTechnical }

func (e *Evaluator) Evaluate(ctx context.Context, symbol string, _ *agent.PortfolioContext) (agent.Result, error) {
	candles, err := e.history.DailyHistory(ctx, symbol, historyDays)
	if err != nil {
		return agent.Result{}, fmt.Errorf("technical history %s: %w", symbol, err)
	}
	if len(candles) < minHistory {
		return agent.Result{
			AgentID:       agent.RoleTechnical,
			Symbol:        symbol,
			PrimaryAction: agent.ActionHold,
			Decisions:     []agent.Action{agent.ActionHold, agent.ActionHold},
			Confidence:    0,
			Metrics:       map[string]any{"bars": len(candles)},
			Notes:         []string{"insufficient history"},
		}, nil
	}
	return Analyze(symbol, market.Closes(candles)), nil
}

// Analyze 是纯函数部分，便于离线回放。
func Analyze(symbol string, closes []float64) agent.Result {
	last := closes[len(closes)-1]
	ma20, _ := indicator.SMA(closes, 20)
	ma50, _ := indicator.SMA(closes, 50)
	ma100, ok100 := indicator.SMA(closes, 100)
	vol := indicator.AnnualizedVolatility(closes, 20)
	slope := indicator.Slope(closes, 20)
	rsi := indicator.RSI(closes, 14)

	regime := RegimeRange
	switch {
	case last > ma50 && slope > 0:
		regime = RegimeUp
	case last < ma50 && slope < 0:
		regime = RegimeDown
	}
	rsiState := "NEUTRAL"
	switch {
	case rsi > 70:
		rsiState = "OVERBOUGHT"
	case rsi < 30:
		rsiState = "OVERSOLD"
	}
	volState := "MEDIUM"
	switch {
	case vol > 0.4:
		volState = "HIGH"
	case vol < 0.15:
		volState = "LOW"
	}

	var notes []string
	notes = append(notes, fmt.Sprintf("regime %s (slope %.4f)", regime, slope))
	notes = append(notes, fmt.Sprintf("RSI %.1f %s", rsi, rsiState))
	notes = append(notes, fmt.Sprintf("volatility %s %.1f%%", volState, vol*100))

	primary, decisions, conf := agent.ActionHold, []agent.Action{agent.ActionHold, agent.ActionHold}, 0.5
	switch regime {
	case RegimeUp:
		switch {
		case rsiState == "OVERSOLD" || (rsi >= 40 && rsi <= 68):
			primary, decisions = agent.ActionBuy, []agent.Action{agent.ActionBuyMore, agent.ActionHold}
			conf += 0.2
		case rsiState == "OVERBOUGHT":
			decisions = []agent.Action{agent.ActionHold, agent.ActionReduce}
			conf += 0.1
		default:
			decisions = []agent.Action{agent.ActionHold, agent.ActionBuyMore}
		}
	case RegimeDown:
		switch rsiState {
		case "OVERBOUGHT":
			primary, decisions = agent.ActionSell, []agent.Action{agent.ActionExit, agent.ActionReduce}
			conf += 0.2
		case "OVERSOLD":
			decisions = []agent.Action{agent.ActionHold, agent.ActionReallocate}
		default:
			primary, decisions = agent.ActionSell, []agent.Action{agent.ActionReduce, agent.ActionExit}
			conf += 0.1
		}
	default:
		switch rsiState {
		case "OVERSOLD":
			primary, decisions = agent.ActionBuy, []agent.Action{agent.ActionBuyMore, agent.ActionHold}
			conf += 0.1
		case "OVERBOUGHT":
			primary, decisions = agent.ActionSell, []agent.Action{agent.ActionReduce, agent.ActionHold}
			conf += 0.1
		default:
			decisions = []agent.Action{agent.ActionHold, agent.ActionReallocate}
		}
	}

	switch volState {
	case "HIGH":
		conf -= 0.1
		if decisions[0] == agent.ActionBuyMore {
			decisions[1] = agent.ActionHold
		}
	case "LOW":
		conf += 0.1
	}
	if regime == RegimeUp && last < ma20 {
		conf -= 0.1
		notes = append(notes, "price below MA20 despite uptrend")
	}
	conf = math.Max(0.3, math.Min(0.85, conf))

	metrics := map[string]any{
		"latestClose": last,
		"ma20":        ma20,
		"ma50":        ma50,
		"rsi":         rsi,
		"volatility":  vol,
		"slope":       slope,
		"regime":      string(regime),
		"rsiState":    rsiState,
		"volState":    volState,
	}
	if ok100 {
		metrics["ma100"] = ma100
	}
	return agent.Result{
		AgentID:       agent.RoleTechnical,
		Symbol:        symbol,
		PrimaryAction: primary,
		Decisions:     decisions,
		Confidence:    conf,
		Metrics:       metrics,
		Notes:         notes,
	}
}
