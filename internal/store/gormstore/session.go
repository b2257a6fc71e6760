package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"arbiter/internal/governor"
)

var _ governor.SessionStore = (*GormStore)(nil)

func (s *GormStore) LoadSession(ctx context.Context, userID string) (governor.State, error) {
	var row sessionModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return governor.State{}, governor.ErrSessionNotFound
	}
	if err != nil {
		return governor.State{}, err
	}
	var wishlist []string
	if len(row.Wishlist) > 0 {
		if err := json.Unmarshal(row.Wishlist, &wishlist); err != nil {
			return governor.State{}, fmt.Errorf("decode wishlist: %w", err)
		}
	}
	return governor.State{
		UserID:            row.UserID,
		Status:            governor.Status(row.Status),
		TradesUsedToday:   row.TradesUsedToday,
		MaxTradesPerDay:   row.MaxTradesPerDay,
		ConsecutiveWins:   row.ConsecutiveWins,
		ConsecutiveLosses: row.ConsecutiveLosses,
		LastTradePnL:      row.LastTradePnL,
		SessionPnL:        row.SessionPnL,
		LastLoopTime:      timeVal(row.LastLoopTime),
		TradingDay:        row.TradingDay,
		StartedAt:         timeVal(row.StartedAt),
		StoppedAt:         timeVal(row.StoppedAt),
		ResetAt:           timeVal(row.ResetAt),
		MaxCapital:        row.MaxCapital,
		Wishlist:          wishlist,
		UpdatedAt:         row.UpdatedAt,
	}, nil
}

func (s *GormStore) SaveSession(ctx context.Context, st governor.State) error {
	wishlist := st.Wishlist
	if wishlist == nil {
		wishlist = []string{}
	}
	raw, err := json.Marshal(wishlist)
	if err != nil {
		return err
	}
	row := sessionModel{
		UserID:            st.UserID,
		Status:            string(st.Status),
		TradesUsedToday:   st.TradesUsedToday,
		MaxTradesPerDay:   st.MaxTradesPerDay,
		ConsecutiveWins:   st.ConsecutiveWins,
		ConsecutiveLosses: st.ConsecutiveLosses,
		LastTradePnL:      st.LastTradePnL,
		SessionPnL:        st.SessionPnL,
		LastLoopTime:      timePtr(st.LastLoopTime),
		TradingDay:        st.TradingDay,
		StartedAt:         timePtr(st.StartedAt),
		StoppedAt:         timePtr(st.StoppedAt),
		ResetAt:           timePtr(st.ResetAt),
		MaxCapital:        st.MaxCapital,
		Wishlist:          datatypes.JSON(raw),
		UpdatedAt:         st.UpdatedAt,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}
