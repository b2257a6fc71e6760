// Package governor 负责交易循环的生命周期：防抖、跨日重置、连胜连亏熔断。
package governor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"arbiter/internal/portfolio"
)

// ErrSessionNotFound 由 SessionStore 在会话不存在时返回。
var ErrSessionNotFound = errors.New("session not found")

type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusPaused  Status = "PAUSED"
	StatusStopped Status = "STOPPED"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusRunning:
		return StatusRunning, true
	case StatusPaused:
		return StatusPaused, true
	case StatusStopped:
		return StatusStopped, true
	}
	return "", false
}

// Outcome 是单次循环调用的结果。
type Outcome string

const (
	OutcomeSkipped      Outcome = "SKIPPED"
	OutcomeStopped      Outcome = "STOPPED"
	OutcomeIdle         Outcome = "IDLE"
	OutcomeLimitReached Outcome = "LIMIT_REACHED"
	OutcomeRiskStop     Outcome = "RISK_STOP"
	OutcomeSuccess      Outcome = "SUCCESS"
)

// State 是会话的全部可变状态，只由 Governor 修改。
// TradingDay 记录 TradesUsedToday 所属的自然日（YYYY-MM-DD）。
type State struct {
	UserID            string    `json:"user_id"`
	Status            Status    `json:"status"`
	TradesUsedToday   int       `json:"trades_used_today"`
	MaxTradesPerDay   int       `json:"max_trades_per_day"`
	ConsecutiveWins   int       `json:"consecutive_wins"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	LastTradePnL      float64   `json:"last_trade_pnl"`
	SessionPnL        float64   `json:"session_pnl"`
	LastLoopTime      time.Time `json:"last_loop_time"`
	TradingDay        string    `json:"trading_day,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	StoppedAt         time.Time `json:"stopped_at"`
	ResetAt           time.Time `json:"reset_at"`
	MaxCapital        float64   `json:"max_capital"`
	Wishlist          []string  `json:"wishlist"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (s State) TradesRemaining() int {
	if r := s.MaxTradesPerDay - s.TradesUsedToday; r > 0 {
		return r
	}
	return 0
}

func (s State) clone() State {
	out := s
	out.Wishlist = append([]string(nil), s.Wishlist...)
	return out
}

// Defaults 决定新会话的初始值。
type Defaults struct {
	MaxCapital      float64  `json:"max_capital"`
	MaxTradesPerDay int      `json:"max_trades_per_day"`
	Wishlist        []string `json:"wishlist"`
}

func DefaultDefaults() Defaults {
	return Defaults{MaxCapital: 1000, MaxTradesPerDay: 5, Wishlist: []string{"IBM", "AAPL", "MSFT"}}
}

func NewState(userID string, d Defaults) State {
	def := DefaultDefaults()
	if d.MaxCapital <= 0 {
		d.MaxCapital = def.MaxCapital
	}
	if d.MaxTradesPerDay <= 0 {
		d.MaxTradesPerDay = def.MaxTradesPerDay
	}
	return State{
		UserID:          userID,
		Status:          StatusStopped,
		MaxTradesPerDay: d.MaxTradesPerDay,
		MaxCapital:      d.MaxCapital,
		Wishlist:        NormalizeWishlist(d.Wishlist),
	}
}

// NormalizeWishlist 大写、去空白、去重，保持原有顺序。
func NormalizeWishlist(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		sym := portfolio.NormalizeSymbol(s)
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// ValidationError 表示会话配置的输入不合法，HTTP 层映射为 400。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
