package governor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"arbiter/internal/logger"
)

// Update 是会话配置接口的输入，nil 字段保持不变。
type Update struct {
	Wishlist        *[]string `json:"wishlist,omitempty"`
	MaxCapital      *float64  `json:"maxCapital,omitempty"`
	MaxTradesPerDay *int      `json:"maxTradesPerDay,omitempty"`
	Status          *string   `json:"status,omitempty"`
}

// Resetter 清理与账户相关的附属数据，例如活动日志。
type Resetter interface {
	Clear(ctx context.Context, userID string) error
}

// Session 返回当前会话，不存在时按默认值创建。
func (g *Governor) Session(ctx context.Context, userID string) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loadOrCreate(ctx, userID)
}

func (g *Governor) loadOrCreate(ctx context.Context, userID string) (State, error) {
	st, err := g.sessions.LoadSession(ctx, userID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return State{}, fmt.Errorf("load session: %w", err)
	}
	st = NewState(userID, g.cfg.Defaults)
	st.UpdatedAt = g.now()
	if err := g.sessions.SaveSession(ctx, st); err != nil {
		return State{}, fmt.Errorf("create session: %w", err)
	}
	logger.Infof("session %s created with wishlist %v", userID, st.Wishlist)
	return st, nil
}

func (u Update) validate() (Status, error) {
	if u.MaxCapital != nil && (math.IsNaN(*u.MaxCapital) || *u.MaxCapital <= 0) {
		return "", &ValidationError{Field: "maxCapital", Message: "must be a positive number"}
	}
	if u.MaxTradesPerDay != nil && *u.MaxTradesPerDay <= 0 {
		return "", &ValidationError{Field: "maxTradesPerDay", Message: "must be a positive integer"}
	}
	if u.Status == nil {
		return "", nil
	}
	status, ok := ParseStatus(*u.Status)
	if !ok {
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("%q is not one of RUNNING, PAUSED, STOPPED", *u.Status)}
	}
	return status, nil
}

// Configure 应用会话配置。切到 RUNNING 会清零连胜连亏与会话盈亏。
func (g *Governor) Configure(ctx context.Context, userID string, u Update) (State, error) {
	status, err := u.validate()
	if err != nil {
		return State{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.loadOrCreate(ctx, userID)
	if err != nil {
		return State{}, err
	}
	now := g.now()
	if u.Wishlist != nil {
		st.Wishlist = NormalizeWishlist(*u.Wishlist)
	}
	if u.MaxCapital != nil {
		st.MaxCapital = *u.MaxCapital
	}
	if u.MaxTradesPerDay != nil {
		st.MaxTradesPerDay = *u.MaxTradesPerDay
	}
	switch status {
	case StatusRunning:
		st.Status = StatusRunning
		st.StartedAt = now
		st.StoppedAt = time.Time{}
		st.ConsecutiveWins = 0
		st.ConsecutiveLosses = 0
		st.SessionPnL = 0
	case StatusPaused, StatusStopped:
		st.Status = status
		st.StoppedAt = now
	}
	st.UpdatedAt = now
	if err := g.sessions.SaveSession(ctx, st); err != nil {
		return State{}, fmt.Errorf("save session: %w", err)
	}
	if status != "" {
		logger.Infof("session %s -> %s", userID, status)
	}
	return st, nil
}

// Reset 把账户恢复到初始资金，清空持仓、成交、快照与日志，并停止会话。
func (g *Governor) Reset(ctx context.Context, userID string, extra ...Resetter) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.loadOrCreate(ctx, userID)
	if err != nil {
		return State{}, err
	}
	if err := g.store.Reset(ctx, userID, g.cfg.InitialCash); err != nil {
		return State{}, fmt.Errorf("reset portfolio: %w", err)
	}
	for _, r := range extra {
		if err := r.Clear(ctx, userID); err != nil {
			return State{}, fmt.Errorf("reset: %w", err)
		}
	}
	now := g.now()
	st.Status = StatusStopped
	st.StoppedAt = now
	st.ResetAt = now
	st.TradesUsedToday = 0
	st.ConsecutiveWins = 0
	st.ConsecutiveLosses = 0
	st.LastTradePnL = 0
	st.SessionPnL = 0
	st.Wishlist = []string{}
	st.UpdatedAt = now
	if err := g.sessions.SaveSession(ctx, st); err != nil {
		return State{}, fmt.Errorf("save session: %w", err)
	}
	logger.Infof("account %s reset to %.2f", userID, g.cfg.InitialCash)
	return st, nil
}
