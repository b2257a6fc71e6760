package decision

import (
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"arbiter/internal/agent"
	"arbiter/internal/logger"
)

// Judge 把多个评估器的意见合成为一个动作。相同输入总是得到相同结论。
type Judge struct {
	policy atomic.Pointer[Policy]
}

func NewJudge(p Policy) *Judge {
	j := &Judge{}
	j.SetPolicy(p)
	return j
}

// SetPolicy 原子替换策略表，供配置热加载使用。
func (j *Judge) SetPolicy(p Policy) {
	np := p.Normalize()
	j.policy.Store(&np)
}

func (j *Judge) Policy() Policy {
	return *j.policy.Load()
}

// Judge 依次执行聚合与覆盖规则。
func (j *Judge) Judge(in Input) Decision {
	p := j.Policy()
	agg := p.Aggregate(in.Results)
	ov := p.Overlay.Apply(agg.Score, OverlayContext{
		Position:    in.Position,
		MarketPrice: in.MarketPrice,
		Risk:        agg.Risk,
	})
	d := Decision{
		Symbol:        strings.ToUpper(in.Symbol),
		FinalAction:   ov.Action,
		IntentScore:   ov.Score,
		BaseScore:     agg.Score,
		MarketPrice:   in.MarketPrice,
		TopCandidates: agg.Top,
		VetoApplied:   agg.VetoApplied,
		Reallocate:    ov.Reallocate,
		OverlayRules:  ov.Rules,
		Notes:         collectNotes(in.Results),
	}
	d.Reasoning = RenderReasoning(d)
	logger.Debugf("judge %s: base=%.3f final=%s score=%.3f veto=%v rules=%v", d.Symbol, agg.Score, d.FinalAction, d.IntentScore, d.VetoApplied, d.OverlayRules)
	return d
}

// Aggregate 完成展开、否决、打分、排序与多样性筛选。
func (p Policy) Aggregate(results []agent.Result) Aggregation {
	ordered := expansionOrder(results)
	var risk *agent.Result
	for i := range ordered {
		if ordered[i].AgentID == agent.RoleRisk {
			r := ordered[i]
			risk = &r
			break
		}
	}

	var cands []Candidate
	for _, r := range ordered {
		for _, a := range r.Decisions {
			cands = append(cands, Candidate{
				Source:          r.AgentID,
				Action:          agent.ParseAction(string(a)),
				AgentConfidence: r.Confidence,
				Metrics:         r.Metrics,
				Order:           len(cands),
			})
		}
	}

	veto := false
	if liquidityVeto(risk) {
		kept := cands[:0:0]
		for _, c := range cands {
			if c.Action.IsBuy() {
				veto = true
				continue
			}
			kept = append(kept, c)
		}
		cands = kept
	}

	ranked := make([]ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		intent := p.intent(c.Action)
		w := p.weight(c.Source)
		q := p.quality(c)
		ranked = append(ranked, ScoredCandidate{
			Candidate:   c,
			Weight:      w,
			IntentScore: intent,
			Quality:     q,
			Score:       w * c.AgentConfidence * math.Abs(intent) * q,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	top := make([]ScoredCandidate, 0, p.MaxTop)
	perSource := make(map[agent.Role]int)
	for _, c := range ranked {
		if len(top) >= p.MaxTop {
			break
		}
		if perSource[c.Source] >= p.PerSourceCap {
			continue
		}
		perSource[c.Source]++
		top = append(top, c)
	}

	score := 0.0
	for _, c := range top {
		score += c.Signed()
	}
	return Aggregation{Ranked: ranked, Top: top, Score: score, VetoApplied: veto, Risk: risk}
}

func (p Policy) quality(c Candidate) float64 {
	q := 1.0
	res := agent.Result{Metrics: c.Metrics}
	switch c.Source {
	case agent.RoleQuant:
		mom5, _ := res.MetricFloat(agent.MetricMomentum5)
		mom20, _ := res.MetricFloat(agent.MetricMomentum20)
		z, _ := res.MetricFloat(agent.MetricZScore)
		if mom5 > p.Quality.QuantMom5 && mom20 > p.Quality.QuantMom20 {
			q = p.Quality.QuantTrendBoost
		}
		if math.Abs(z) > p.Quality.QuantZLimit {
			q = p.Quality.QuantZPenalty
		}
	case agent.RoleRisk:
		switch exitRisk(res) {
		case agent.ExitRiskLow:
			q = p.Quality.RiskLowBoost
		case agent.ExitRiskHigh:
			q = p.Quality.RiskHighPenalty
		}
	case agent.RoleSentiment:
		if strings.EqualFold(res.MetricString(agent.MetricMood), "BULLISH") &&
			strings.EqualFold(res.MetricString(agent.MetricVolumeIntensity), "HIGH") {
			q = p.Quality.SentimentBoost
		}
	}
	return math.Max(p.Quality.Min, math.Min(p.Quality.Max, q))
}

// liquidityVeto：风险评估器给出 SELL/EXIT，或在离场风险 HIGH 时给出 REDUCE。
func liquidityVeto(risk *agent.Result) bool {
	if risk == nil {
		return false
	}
	switch agent.ParseAction(string(risk.PrimaryAction)) {
	case agent.ActionSell, agent.ActionExit:
		return true
	case agent.ActionReduce:
		return exitRisk(*risk) == agent.ExitRiskHigh
	}
	return false
}

func exitRisk(r agent.Result) agent.ExitRisk {
	return agent.ExitRisk(strings.ToUpper(r.MetricString(agent.MetricExitRisk)))
}

// expansionOrder 按 risk、technical、quant、sentiment 排列，其余保持输入顺序殿后。
func expansionOrder(results []agent.Result) []agent.Result {
	rank := make(map[agent.Role]int, len(agent.ExpansionOrder))
	for i, r := range agent.ExpansionOrder {
		rank[r] = i
	}
	out := make([]agent.Result, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		ri, ok := rank[out[i].AgentID]
		if !ok {
			ri = len(rank)
		}
		rj, ok := rank[out[j].AgentID]
		if !ok {
			rj = len(rank)
		}
		return ri < rj
	})
	return out
}

func collectNotes(results []agent.Result) []string {
	var out []string
	for _, r := range results {
		if r.Confidence == 0 && len(r.Notes) > 0 {
			out = append(out, string(r.AgentID)+": "+strings.Join(r.Notes, "; "))
		}
	}
	return out
}
