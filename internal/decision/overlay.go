package decision

import (
	"fmt"

	"arbiter/internal/agent"
)

// OverlayContext 是覆盖规则需要的持仓与风险信息。
type OverlayContext struct {
	Position    *agent.Position
	MarketPrice float64
	Risk        *agent.Result
}

// ReturnPct 返回持仓的浮动收益百分比；无持仓时 ok 为 false。
func (c OverlayContext) ReturnPct() (float64, bool) {
	pos := c.Position
	if pos == nil || pos.Qty <= 0 || pos.AvgPrice <= 0 {
		return 0, false
	}
	price := c.MarketPrice
	if price <= 0 {
		price = pos.CurrentPrice
	}
	if price <= 0 {
		price = pos.AvgPrice
	}
	return (price - pos.AvgPrice) / pos.AvgPrice * 100, true
}

type OverlayResult struct {
	Action     agent.Action
	Score      float64
	Reallocate bool
	Terminal   bool
	Rules      []string
}

// Apply 按固定顺序执行规则，命中终止规则立即返回 EXIT。
func (o OverlayPolicy) Apply(score float64, c OverlayContext) OverlayResult {
	res := OverlayResult{Score: score}
	terminal := func(rule string) OverlayResult {
		res.Rules = append(res.Rules, rule)
		res.Score = o.TerminalScore
		res.Action = agent.ActionExit
		res.Reallocate = true
		res.Terminal = true
		return res
	}

	if ret, ok := c.ReturnPct(); ok {
		if ret > o.ProfitBias {
			res.Score -= o.ProfitBiasPenalty
			res.Rules = append(res.Rules, fmt.Sprintf("profit bias: return %.2f%% > %.0f%%", ret, o.ProfitBias))
		}
		if ret > o.StrongProfitBias {
			res.Score -= o.StrongProfitExtra
			res.Rules = append(res.Rules, fmt.Sprintf("strong profit bias: return %.2f%% > %.0f%%", ret, o.StrongProfitBias))
		}
		if ret > o.TakeProfit {
			return terminal(fmt.Sprintf("take profit: return %.2f%% > %.0f%%", ret, o.TakeProfit))
		}
		if ret < o.LossBias {
			res.Score -= o.LossBiasPenalty
			res.Rules = append(res.Rules, fmt.Sprintf("loss bias: return %.2f%% < %.0f%%", ret, o.LossBias))
		}
		if ret < o.StopLoss {
			return terminal(fmt.Sprintf("stop loss: return %.2f%% < %.0f%%", ret, o.StopLoss))
		}
	}

	if r := c.Risk; r != nil {
		act := agent.ParseAction(string(r.PrimaryAction))
		if (act == agent.ActionSell || act == agent.ActionExit) && r.Confidence > o.RiskOverrideConf {
			return terminal(fmt.Sprintf("risk override: %s with confidence %.2f", act, r.Confidence))
		}
	}

	res.Action = o.Classify(res.Score, riskState(c.Risk))
	res.Reallocate = res.Action == agent.ActionReduce || res.Action == agent.ActionExit
	return res
}

// Classify 把分数映射到 BUY_MORE / HOLD / REDUCE / EXIT。
func (o OverlayPolicy) Classify(score float64, exit agent.ExitRisk) agent.Action {
	switch {
	case score > o.BuyThreshold:
		return agent.ActionBuyMore
	case score < o.SellThreshold:
		if exit == agent.ExitRiskHigh {
			return agent.ActionExit
		}
		return agent.ActionReduce
	default:
		return agent.ActionHold
	}
}

func riskState(r *agent.Result) agent.ExitRisk {
	if r == nil {
		return ""
	}
	return exitRisk(*r)
}
