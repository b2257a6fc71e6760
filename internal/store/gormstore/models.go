package gormstore

import (
	"time"

	"gorm.io/datatypes"

	"arbiter/internal/portfolio"
)

type portfolioModel struct {
	UserID        string    `gorm:"column:user_id;primaryKey"`
	CashAvailable float64   `gorm:"column:cash_available"`
	TotalValue    float64   `gorm:"column:total_value"`
	RealizedPnL   float64   `gorm:"column:realized_pnl"`
	UnrealizedPnL float64   `gorm:"column:unrealized_pnl"`
	DailyPnL      float64   `gorm:"column:daily_pnl"`
	CumulativePnL float64   `gorm:"column:cumulative_pnl"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (portfolioModel) TableName() string { return "portfolios" }

type positionModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID       string    `gorm:"column:user_id;uniqueIndex:idx_position_user_symbol"`
	Symbol       string    `gorm:"column:symbol;uniqueIndex:idx_position_user_symbol"`
	Qty          float64   `gorm:"column:qty"`
	AvgPrice     float64   `gorm:"column:avg_price"`
	CurrentPrice float64   `gorm:"column:current_price"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (positionModel) TableName() string { return "positions" }

type tradeModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	UserID      string    `gorm:"column:user_id;index:idx_trade_user_time"`
	Symbol      string    `gorm:"column:symbol"`
	Side        string    `gorm:"column:side"`
	Intent      string    `gorm:"column:intent"`
	Qty         float64   `gorm:"column:qty"`
	Price       float64   `gorm:"column:price"`
	RealizedPnL float64   `gorm:"column:realized_pnl"`
	Source      string    `gorm:"column:source"`
	Confidence  float64   `gorm:"column:confidence"`
	Reason      string    `gorm:"column:reason"`
	ExecutedAt  time.Time `gorm:"column:executed_at;index:idx_trade_user_time"`
}

func (tradeModel) TableName() string { return "trade_log" }

type dailySnapshotModel struct {
	UserID        string    `gorm:"column:user_id;primaryKey"`
	Date          string    `gorm:"column:date;primaryKey"`
	RealizedPnL   float64   `gorm:"column:realized_pnl"`
	UnrealizedPnL float64   `gorm:"column:unrealized_pnl"`
	TotalValue    float64   `gorm:"column:total_value"`
	TakenAt       time.Time `gorm:"column:taken_at"`
}

func (dailySnapshotModel) TableName() string { return "daily_pnl_snapshots" }

func (r dailySnapshotModel) toDomain() portfolio.DailySnapshot {
	return portfolio.DailySnapshot{
		UserID:        r.UserID,
		Date:          r.Date,
		RealizedPnL:   r.RealizedPnL,
		UnrealizedPnL: r.UnrealizedPnL,
		TotalValue:    r.TotalValue,
		TakenAt:       r.TakenAt,
	}
}

type sessionModel struct {
	UserID            string         `gorm:"column:user_id;primaryKey"`
	Status            string         `gorm:"column:status"`
	TradesUsedToday   int            `gorm:"column:trades_used_today"`
	MaxTradesPerDay   int            `gorm:"column:max_trades_per_day"`
	ConsecutiveWins   int            `gorm:"column:consecutive_wins"`
	ConsecutiveLosses int            `gorm:"column:consecutive_losses"`
	LastTradePnL      float64        `gorm:"column:last_trade_pnl"`
	SessionPnL        float64        `gorm:"column:session_pnl"`
	LastLoopTime      *time.Time     `gorm:"column:last_loop_time"`
	TradingDay        string         `gorm:"column:trading_day"`
	StartedAt         *time.Time     `gorm:"column:started_at"`
	StoppedAt         *time.Time     `gorm:"column:stopped_at"`
	ResetAt           *time.Time     `gorm:"column:reset_at"`
	MaxCapital        float64        `gorm:"column:max_capital"`
	Wishlist          datatypes.JSON `gorm:"column:wishlist"`
	UpdatedAt         time.Time      `gorm:"column:updated_at"`
}

func (sessionModel) TableName() string { return "agent_sessions" }

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
