package decision

import "arbiter/internal/agent"

// Candidate 是某个评估器的一个候选动作，仅在一次裁决内存在。
type Candidate struct {
	Source          agent.Role     `json:"source"`
	Action          agent.Action   `json:"action"`
	AgentConfidence float64        `json:"agent_confidence"`
	Metrics         map[string]any `json:"-"`
	Order           int            `json:"order"`
}

// ScoredCandidate 的 Score = Weight × AgentConfidence × |IntentScore| × Quality。
type ScoredCandidate struct {
	Candidate
	Weight      float64 `json:"weight"`
	IntentScore float64 `json:"intent_score"`
	Quality     float64 `json:"quality"`
	Score       float64 `json:"score"`
}

// Signed 是候选对总分的贡献。
func (c ScoredCandidate) Signed() float64 {
	return c.Score * sign(c.IntentScore)
}

// Input 是一次裁决所需的全部输入。
type Input struct {
	Symbol      string
	Results     []agent.Result
	Position    *agent.Position
	MarketPrice float64
}

// Decision 是单个标的在一次循环中的最终结论。
type Decision struct {
	Symbol        string            `json:"symbol"`
	FinalAction   agent.Action      `json:"final_action"`
	IntentScore   float64           `json:"intent_score"`
	BaseScore     float64           `json:"base_score"`
	MarketPrice   float64           `json:"market_price,omitempty"`
	TopCandidates []ScoredCandidate `json:"top_candidates"`
	VetoApplied   bool              `json:"veto_applied"`
	Reallocate    bool              `json:"reallocate"`
	OverlayRules  []string          `json:"overlay_rules,omitempty"`
	Reasoning     string            `json:"reasoning"`
	Notes         []string          `json:"notes,omitempty"`
}

// Aggregation 是加权排序阶段的中间结果。
type Aggregation struct {
	Ranked      []ScoredCandidate
	Top         []ScoredCandidate
	Score       float64
	VetoApplied bool
	Risk        *agent.Result
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
