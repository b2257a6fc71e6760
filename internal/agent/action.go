package agent

import "strings"

// Action 是评估器、裁决器与执行器共享的动作词表。
type Action string

const (
	ActionBuyMore    Action = "BUY_MORE"
	ActionBuy        Action = "BUY"
	ActionHold       Action = "HOLD"
	ActionReduce     Action = "REDUCE"
	ActionExit       Action = "EXIT"
	ActionSell       Action = "SELL"
	ActionReallocate Action = "REALLOCATE"
)

// ParseAction 规范化大小写与空白；未知值原样保留，由调用方决定如何计分。
func ParseAction(s string) Action {
	return Action(strings.ToUpper(strings.TrimSpace(s)))
}

func (a Action) IsBuy() bool {
	return a == ActionBuyMore || a == ActionBuy
}

func (a Action) IsSell() bool {
	switch a {
	case ActionReduce, ActionExit, ActionSell, ActionReallocate:
		return true
	}
	return false
}

// Role 标识评估器。
type Role string

const (
	RoleRisk      Role = "risk"
	RoleTechnical Role = "technical"
	RoleQuant     Role = "quant"
	RoleSentiment Role = "sentiment"
)

// ExpansionOrder 是裁决器展开候选时的固定顺序。
var ExpansionOrder = []Role{RoleRisk, RoleTechnical, RoleQuant, RoleSentiment}

// ExitRisk 是风险评估器给出的离场难度。
type ExitRisk string

const (
	ExitRiskLow    ExitRisk = "LOW"
	ExitRiskMedium ExitRisk = "MEDIUM"
	ExitRiskHigh   ExitRisk = "HIGH"
)
