package governor

import (
	"context"
	"fmt"
	"time"

	"arbiter/internal/agent"
	"arbiter/internal/decision"
	"arbiter/internal/executor"
	"arbiter/internal/gateway/notifier"
	"arbiter/internal/logger"
	"arbiter/internal/portfolio"
)

// SymbolReport 汇总单个标的在本轮的评估、裁决与执行。
type SymbolReport struct {
	Symbol    string            `json:"symbol"`
	Agents    []agent.Result    `json:"agents"`
	Decision  decision.Decision `json:"decision"`
	Execution *executor.Result  `json:"execution,omitempty"`
}

type Report struct {
	LoopID            string               `json:"loop_id,omitempty"`
	UserID            string               `json:"user_id"`
	Outcome           Outcome              `json:"status"`
	Message           string               `json:"message"`
	SessionStatus     Status               `json:"session_status"`
	TradesExecuted    int                  `json:"trades_executed"`
	TradesUsedToday   int                  `json:"trades_used_today"`
	TradesRemaining   int                  `json:"trades_remaining"`
	ConsecutiveWins   int                  `json:"wins"`
	ConsecutiveLosses int                  `json:"losses"`
	LastTradePnL      float64              `json:"last_pnl"`
	SessionPnL        float64              `json:"session_pnl"`
	Symbols           []SymbolReport       `json:"symbols,omitempty"`
	Results           []executor.Result    `json:"results,omitempty"`
	Portfolio         *portfolio.Portfolio `json:"portfolio,omitempty"`
	At                time.Time            `json:"at"`
}

func (r Report) Decisions() []decision.Decision {
	out := make([]decision.Decision, 0, len(r.Symbols))
	for _, s := range r.Symbols {
		out = append(out, s.Decision)
	}
	return out
}

func (r *Report) fill(st State) {
	r.SessionStatus = st.Status
	r.TradesUsedToday = st.TradesUsedToday
	r.TradesRemaining = st.TradesRemaining()
	r.ConsecutiveWins = st.ConsecutiveWins
	r.ConsecutiveLosses = st.ConsecutiveLosses
	r.LastTradePnL = st.LastTradePnL
	r.SessionPnL = st.SessionPnL
}

// Journal 持久化每一轮的逐标的记录。
type Journal interface {
	RecordLoop(ctx context.Context, rep Report) error
}

type Notifier interface {
	SendStructured(msg notifier.StructuredMessage) error
}

func (g *Governor) announce(rep Report) {
	if g.notifier == nil {
		return
	}
	var msg notifier.StructuredMessage
	switch {
	case rep.Outcome == OutcomeRiskStop:
		msg = notifier.StructuredMessage{
			Icon:  "🛑",
			Title: "风控熔断",
			Sections: []notifier.MessageSection{{
				Title: rep.Message,
				Lines: []string{
					fmt.Sprintf("连胜 %d / 连亏 %d", rep.ConsecutiveWins, rep.ConsecutiveLosses),
					fmt.Sprintf("最近一笔 %.2f，本次会话 %.2f", rep.LastTradePnL, rep.SessionPnL),
				},
			}},
		}
	case rep.TradesExecuted > 0:
		lines := make([]string, 0, len(rep.Results))
		for _, res := range rep.Results {
			if res.Status != executor.StatusExecuted {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s %s %.4g @ %.2f (pnl %.2f)", res.Symbol, res.Side, res.Qty, res.ExecPrice, res.RealizedPnL))
		}
		msg = notifier.StructuredMessage{
			Icon:     "✅",
			Title:    "成交",
			Sections: []notifier.MessageSection{{Title: fmt.Sprintf("今日已用 %d/%d", rep.TradesUsedToday, rep.TradesUsedToday+rep.TradesRemaining), Lines: lines}},
		}
	default:
		return
	}
	msg.Footer = rep.LoopID
	msg.Timestamp = rep.At.UTC()
	if err := g.notifier.SendStructured(msg); err != nil {
		logger.Warnf("notify %s failed: %v", rep.Outcome, err)
	}
}
