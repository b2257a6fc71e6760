package agent

import (
	"context"
	"time"
)

// Position 是评估器看到的持仓快照。
type Position struct {
	Symbol       string  `json:"symbol"`
	Qty          float64 `json:"qty"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
}

// PortfolioContext 为风险评估器提供集中度等组合信息，可以为 nil。
type PortfolioContext struct {
	Cash       float64             `json:"cash"`
	TotalValue float64             `json:"total_value"`
	Positions  map[string]Position `json:"positions"`
	AsOf       time.Time           `json:"as_of"`
}

func (p *PortfolioContext) Position(symbol string) (Position, bool) {
	if p == nil || p.Positions == nil {
		return Position{}, false
	}
	pos, ok := p.Positions[symbol]
	return pos, ok && pos.Qty > 0
}

// Evaluator 对单个标的给出一到两个候选动作。
type Evaluator interface {
	ID() Role
	Evaluate(ctx context.Context, symbol string, pf *PortfolioContext) (Result, error)
}
