// Package portfolio 维护现金、持仓与成交记录，所有资金计算使用 decimal。
package portfolio

import (
	"context"
	"errors"
	"time"

	"arbiter/internal/agent"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrInvalidTrade         = errors.New("invalid trade")
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type Portfolio struct {
	UserID        string    `json:"user_id"`
	CashAvailable float64   `json:"cash_available"`
	TotalValue    float64   `json:"total_value"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	DailyPnL      float64   `json:"daily_pnl"`
	CumulativePnL float64   `json:"cumulative_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Position struct {
	Symbol       string  `json:"symbol"`
	Qty          float64 `json:"qty"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
}

// MarkPrice 没有最新价时退回成本价。
func (p Position) MarkPrice() float64 {
	if p.CurrentPrice > 0 {
		return p.CurrentPrice
	}
	return p.AvgPrice
}

// Snapshot 是某一时刻的组合全貌，Positions 按 symbol 排序。
type Snapshot struct {
	Portfolio Portfolio  `json:"portfolio"`
	Positions []Position `json:"positions"`
}

func (s Snapshot) Position(symbol string) (Position, bool) {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// AgentContext 转成评估器使用的只读视图。
func (s Snapshot) AgentContext() *agent.PortfolioContext {
	ctx := &agent.PortfolioContext{
		Cash:       s.Portfolio.CashAvailable,
		TotalValue: s.Portfolio.TotalValue,
		Positions:  make(map[string]agent.Position, len(s.Positions)),
		AsOf:       s.Portfolio.UpdatedAt,
	}
	for _, p := range s.Positions {
		ctx.Positions[p.Symbol] = agent.Position{
			Symbol:       p.Symbol,
			Qty:          p.Qty,
			AvgPrice:     p.AvgPrice,
			CurrentPrice: p.CurrentPrice,
		}
	}
	return ctx
}

// TradeRequest 描述一次成交；Intent 与 Reason 只用于记录。
type TradeRequest struct {
	Symbol     string       `json:"symbol"`
	Side       Side         `json:"side"`
	Qty        float64      `json:"qty"`
	Price      float64      `json:"price"`
	Intent     agent.Action `json:"intent"`
	Source     string       `json:"source"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason"`
}

type Trade struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Symbol      string       `json:"symbol"`
	Side        Side         `json:"side"`
	Intent      agent.Action `json:"intent"`
	Qty         float64      `json:"qty"`
	Price       float64      `json:"price"`
	RealizedPnL float64      `json:"realized_pnl"`
	Source      string       `json:"source"`
	Confidence  float64      `json:"confidence"`
	Reason      string       `json:"reason"`
	ExecutedAt  time.Time    `json:"executed_at"`
}

type TradeResult struct {
	Trade       Trade     `json:"trade"`
	RealizedPnL float64   `json:"realized_pnl"`
	Portfolio   Portfolio `json:"portfolio"`
	Position    *Position `json:"position,omitempty"`
}

// DailySnapshot 记录某个自然日结束时的盈亏。
type DailySnapshot struct {
	UserID        string    `json:"user_id"`
	Date          string    `json:"date"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	TotalValue    float64   `json:"total_value"`
	TakenAt       time.Time `json:"taken_at"`
}

// Store 是组合的持久化契约。ApplyTrade 对同一 userID 必须原子。
// SnapshotDailyPnL 对同一 (userID, 日期) 幂等：已有快照时原样返回且不清零。
type Store interface {
	GetPortfolio(ctx context.Context, userID string) (Snapshot, error)
	ApplyTrade(ctx context.Context, userID string, req TradeRequest) (TradeResult, error)
	UpdatePrices(ctx context.Context, userID string, prices map[string]float64) (Snapshot, error)
	SnapshotDailyPnL(ctx context.Context, userID string, day time.Time) (DailySnapshot, error)
	Trades(ctx context.Context, userID string, limit int) ([]Trade, error)
	Reset(ctx context.Context, userID string, initialCash float64) error
}
