// Package executor 把裁决结果转换为有界的成交。
package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"arbiter/internal/agent"
	"arbiter/internal/decision"
	"arbiter/internal/logger"
	"arbiter/internal/portfolio"
)

const DailyLimitMessage = "Daily trade limit reached."

type Status string

const (
	StatusExecuted Status = "EXECUTED"
	StatusSkipped  Status = "SKIPPED"
	StatusFailed   Status = "FAILED"
)

// Config 是执行参数，零值字段使用默认。
type Config struct {
	Slippage        float64 `json:"slippage"`
	MaxFillsPerLoop int     `json:"max_fills_per_loop"`
	Allocation      float64 `json:"allocation"`
	MinNotional     float64 `json:"min_notional"`
	ReducePct       float64 `json:"reduce_pct"`
	ReallocateCost  int     `json:"reallocate_cost"`
}

func DefaultConfig() Config {
	return Config{
		Slippage:        0.002,
		MaxFillsPerLoop: 2,
		Allocation:      0.2,
		MinNotional:     10,
		ReducePct:       0.5,
		ReallocateCost:  2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Slippage <= 0 {
		c.Slippage = d.Slippage
	}
	if c.MaxFillsPerLoop <= 0 {
		c.MaxFillsPerLoop = d.MaxFillsPerLoop
	}
	if c.Allocation <= 0 {
		c.Allocation = d.Allocation
	}
	if c.MinNotional <= 0 {
		c.MinNotional = d.MinNotional
	}
	if c.ReducePct <= 0 {
		c.ReducePct = d.ReducePct
	}
	if c.ReallocateCost <= 0 {
		c.ReallocateCost = d.ReallocateCost
	}
	return c
}

// Budget 来自会话状态。
type Budget struct {
	MaxCapital      float64 `json:"max_capital"`
	TradesUsedToday int     `json:"trades_used_today"`
	MaxTradesPerDay int     `json:"max_trades_per_day"`
}

type Result struct {
	Symbol      string         `json:"symbol"`
	Action      agent.Action   `json:"action"`
	Status      Status         `json:"status"`
	Side        portfolio.Side `json:"side,omitempty"`
	Qty         float64        `json:"qty,omitempty"`
	QuotePrice  float64        `json:"quote_price,omitempty"`
	ExecPrice   float64        `json:"exec_price,omitempty"`
	Notional    float64        `json:"notional,omitempty"`
	RealizedPnL float64        `json:"realized_pnl,omitempty"`
	Cost        int            `json:"cost,omitempty"`
	TradeID     string         `json:"trade_id,omitempty"`
	Reason      string         `json:"reason"`
}

// Batch.TradesExecuted 按成本单位计：REALLOCATE 记 2，其余记 1。
type Batch struct {
	TradesExecuted int      `json:"trades_executed"`
	Fills          int      `json:"fills"`
	Results        []Result `json:"results"`
	Message        string   `json:"message"`
}

// Engine 在每个组合的互斥锁内按信心强弱依次执行。
type Engine struct {
	store portfolio.Store
	cfg   Config
	locks sync.Map
}

func NewEngine(store portfolio.Store, cfg Config) *Engine {
	return &Engine{store: store, cfg: cfg.withDefaults()}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) lock(userID string) func() {
	v, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ExecuteBatch 不会因为单个标的失败而中断；调用方取消 ctx 也不会打断已开始的批次。
func (e *Engine) ExecuteBatch(ctx context.Context, userID string, decisions []decision.Decision, prices map[string]float64, budget Budget) Batch {
	if budget.TradesUsedToday >= budget.MaxTradesPerDay {
		return Batch{Message: DailyLimitMessage}
	}
	actionable := make([]decision.Decision, 0, len(decisions))
	for _, d := range decisions {
		if d.FinalAction == agent.ActionHold {
			continue
		}
		actionable = append(actionable, d)
	}
	sort.SliceStable(actionable, func(i, j int) bool {
		return math.Abs(actionable[i].IntentScore) > math.Abs(actionable[j].IntentScore)
	})
	if len(actionable) == 0 {
		return Batch{Message: "No actionable decisions."}
	}

	unlock := e.lock(userID)
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	batch := Batch{Results: make([]Result, 0, len(actionable))}
	used := budget.TradesUsedToday
	for _, d := range actionable {
		cost := e.cost(d.FinalAction)
		res := Result{Symbol: d.Symbol, Action: d.FinalAction, Cost: cost}
		switch {
		case batch.Fills >= e.cfg.MaxFillsPerLoop:
			res.Status, res.Reason = StatusSkipped, fmt.Sprintf("per-loop fill cap %d reached", e.cfg.MaxFillsPerLoop)
		case used+cost > budget.MaxTradesPerDay:
			res.Status, res.Reason = StatusSkipped, fmt.Sprintf("daily trade budget exhausted (%d/%d used, needs %d)", used, budget.MaxTradesPerDay, cost)
		default:
			res = e.executeOne(ctx, userID, d, prices, budget, res)
		}
		if res.Status == StatusExecuted {
			batch.Fills++
			batch.TradesExecuted += cost
			used += cost
		}
		logger.Infof("execute %s %s: %s %s", res.Symbol, res.Action, res.Status, res.Reason)
		batch.Results = append(batch.Results, res)
	}
	batch.Message = fmt.Sprintf("Executed %d of %d actionable decisions (%d trade units).", batch.Fills, len(actionable), batch.TradesExecuted)
	return batch
}

func (e *Engine) cost(a agent.Action) int {
	if a == agent.ActionReallocate {
		return e.cfg.ReallocateCost
	}
	return 1
}

func (e *Engine) executeOne(ctx context.Context, userID string, d decision.Decision, prices map[string]float64, budget Budget, res Result) Result {
	quote := prices[d.Symbol]
	if quote <= 0 {
		res.Status, res.Reason = StatusSkipped, "No price data"
		return res
	}
	res.QuotePrice = quote
	snap, err := e.store.GetPortfolio(ctx, userID)
	if err != nil {
		res.Status, res.Reason = StatusFailed, fmt.Sprintf("load portfolio: %v", err)
		return res
	}
	strength := decimal.NewFromFloat(math.Min(math.Abs(d.IntentScore), 1))
	slip := decimal.NewFromFloat(e.cfg.Slippage)
	px := decimal.NewFromFloat(quote)

	var req portfolio.TradeRequest
	switch {
	case d.FinalAction.IsBuy():
		exec := px.Mul(decimal.NewFromInt(1).Add(slip))
		notional := decimal.NewFromFloat(budget.MaxCapital).
			Mul(decimal.NewFromFloat(e.cfg.Allocation)).
			Mul(strength)
		cash := decimal.NewFromFloat(snap.Portfolio.CashAvailable)
		if notional.GreaterThan(cash) {
			notional = cash
		}
		if notional.LessThan(decimal.NewFromFloat(e.cfg.MinNotional)) {
			res.Status, res.Reason = StatusSkipped, fmt.Sprintf("notional $%s below $%.0f minimum", notional.StringFixed(2), e.cfg.MinNotional)
			return res
		}
		qty := notional.Div(exec).Floor()
		if qty.Sign() <= 0 {
			res.Status, res.Reason = StatusSkipped, fmt.Sprintf("$%s buys zero shares at %s", notional.StringFixed(2), exec.StringFixed(2))
			return res
		}
		req = portfolio.TradeRequest{Side: portfolio.SideBuy, Qty: qty.InexactFloat64(), Price: exec.InexactFloat64()}
	case d.FinalAction.IsSell():
		pos, ok := snap.Position(d.Symbol)
		if !ok || pos.Qty <= 0 {
			res.Status, res.Reason = StatusSkipped, "No position to sell"
			return res
		}
		exec := px.Mul(decimal.NewFromInt(1).Sub(slip))
		held := decimal.NewFromFloat(pos.Qty)
		qty := held
		if d.FinalAction == agent.ActionReduce {
			qty = held.Mul(decimal.NewFromFloat(e.cfg.ReducePct)).Mul(strength).Ceil()
			if qty.GreaterThan(held) {
				qty = held
			}
		}
		if qty.Sign() <= 0 {
			res.Status, res.Reason = StatusSkipped, "computed quantity is zero"
			return res
		}
		req = portfolio.TradeRequest{Side: portfolio.SideSell, Qty: qty.InexactFloat64(), Price: exec.InexactFloat64()}
	default:
		res.Status, res.Reason = StatusSkipped, fmt.Sprintf("unsupported action %s", d.FinalAction)
		return res
	}

	req.Symbol = d.Symbol
	req.Intent = d.FinalAction
	req.Source = "judge"
	req.Confidence = math.Min(math.Abs(d.IntentScore), 1)
	req.Reason = d.Reasoning
	tr, err := e.store.ApplyTrade(ctx, userID, req)
	if err != nil {
		if errors.Is(err, portfolio.ErrInsufficientFunds) || errors.Is(err, portfolio.ErrInsufficientPosition) {
			res.Status, res.Reason = StatusSkipped, err.Error()
			return res
		}
		res.Status, res.Reason = StatusFailed, err.Error()
		return res
	}
	res.Status = StatusExecuted
	res.Side = req.Side
	res.Qty = req.Qty
	res.ExecPrice = req.Price
	res.Notional = decimal.NewFromFloat(req.Qty).Mul(decimal.NewFromFloat(req.Price)).InexactFloat64()
	res.RealizedPnL = tr.RealizedPnL
	res.TradeID = tr.Trade.ID
	res.Reason = fmt.Sprintf("%s %.4g @ %.2f", req.Side, req.Qty, req.Price)
	return res
}
