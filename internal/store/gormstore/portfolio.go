package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arbiter/internal/agent"
	"arbiter/internal/portfolio"
)

var _ portfolio.Store = (*GormStore)(nil)

func (s *GormStore) GetPortfolio(ctx context.Context, userID string) (portfolio.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap portfolio.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := s.loadLedger(tx, userID)
		if err != nil {
			return err
		}
		l.Revalue()
		snap = l.Snapshot()
		return nil
	})
	return snap, err
}

// ApplyTrade 在一个事务内完成校验、记账与成交记录；失败时数据库不变。
func (s *GormStore) ApplyTrade(ctx context.Context, userID string, req portfolio.TradeRequest) (portfolio.TradeResult, error) {
	req.Symbol = portfolio.NormalizeSymbol(req.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	var res portfolio.TradeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := s.loadLedger(tx, userID)
		if err != nil {
			return err
		}
		realized, pos, err := l.Apply(req)
		if err != nil {
			return err
		}
		now := time.Now()
		l.Portfolio.UpdatedAt = now
		if err := saveLedger(tx, l, now); err != nil {
			return err
		}
		tr := portfolio.Trade{
			ID:          uuid.NewString(),
			UserID:      userID,
			Symbol:      req.Symbol,
			Side:        req.Side,
			Intent:      req.Intent,
			Qty:         req.Qty,
			Price:       req.Price,
			RealizedPnL: realized,
			Source:      req.Source,
			Confidence:  req.Confidence,
			Reason:      req.Reason,
			ExecutedAt:  now,
		}
		if err := tx.Create(tradeToModel(tr)).Error; err != nil {
			return err
		}
		res = portfolio.TradeResult{Trade: tr, RealizedPnL: realized, Portfolio: l.Portfolio, Position: pos}
		return nil
	})
	return res, err
}

func (s *GormStore) UpdatePrices(ctx context.Context, userID string, prices map[string]float64) (portfolio.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap portfolio.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := s.loadLedger(tx, userID)
		if err != nil {
			return err
		}
		l.MarkPrices(prices)
		now := time.Now()
		l.Portfolio.UpdatedAt = now
		if err := saveLedger(tx, l, now); err != nil {
			return err
		}
		snap = l.Snapshot()
		return nil
	})
	return snap, err
}

// SnapshotDailyPnL 以 (user, date) 为键写入快照，并把当日已实现盈亏清零。
// 同一天已有快照时原样返回，不再清零。
func (s *GormStore) SnapshotDailyPnL(ctx context.Context, userID string, day time.Time) (portfolio.DailySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out portfolio.DailySnapshot
	date := day.Format(time.DateOnly)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing dailySnapshotModel
		err := tx.Where("user_id = ? AND date = ?", userID, date).Take(&existing).Error
		if err == nil {
			out = existing.toDomain()
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		l, err := s.loadLedger(tx, userID)
		if err != nil {
			return err
		}
		l.Revalue()
		now := time.Now()
		out = portfolio.DailySnapshot{
			UserID:        userID,
			Date:          date,
			RealizedPnL:   l.Portfolio.DailyPnL,
			UnrealizedPnL: l.Portfolio.UnrealizedPnL,
			TotalValue:    l.Portfolio.TotalValue,
			TakenAt:       now,
		}
		row := dailySnapshotModel{
			UserID:        out.UserID,
			Date:          out.Date,
			RealizedPnL:   out.RealizedPnL,
			UnrealizedPnL: out.UnrealizedPnL,
			TotalValue:    out.TotalValue,
			TakenAt:       out.TakenAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return err
		}
		l.Portfolio.DailyPnL = 0
		return saveLedger(tx, l, now)
	})
	return out, err
}

func (s *GormStore) DailySnapshots(ctx context.Context, userID string, limit int) ([]portfolio.DailySnapshot, error) {
	var rows []dailySnapshotModel
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]portfolio.DailySnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Trades 返回最近的成交，最新在前。
func (s *GormStore) Trades(ctx context.Context, userID string, limit int) ([]portfolio.Trade, error) {
	var rows []tradeModel
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("executed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]portfolio.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, portfolio.Trade{
			ID:          r.ID,
			UserID:      r.UserID,
			Symbol:      r.Symbol,
			Side:        portfolio.Side(r.Side),
			Intent:      agent.Action(r.Intent),
			Qty:         r.Qty,
			Price:       r.Price,
			RealizedPnL: r.RealizedPnL,
			Source:      r.Source,
			Confidence:  r.Confidence,
			Reason:      r.Reason,
			ExecutedAt:  r.ExecutedAt,
		})
	}
	return out, nil
}

func (s *GormStore) Reset(ctx context.Context, userID string, initialCash float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{&positionModel{}, &tradeModel{}, &dailySnapshotModel{}} {
			if err := tx.Where("user_id = ?", userID).Delete(m).Error; err != nil {
				return err
			}
		}
		row := portfolioModel{UserID: userID, CashAvailable: initialCash, TotalValue: initialCash, UpdatedAt: time.Now()}
		return tx.Save(&row).Error
	})
}

func (s *GormStore) loadLedger(tx *gorm.DB, userID string) (*portfolio.Ledger, error) {
	var pm portfolioModel
	err := tx.Where("user_id = ?", userID).Take(&pm).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		pm = portfolioModel{UserID: userID, CashAvailable: s.initialCash, TotalValue: s.initialCash, UpdatedAt: time.Now()}
		if err := tx.Create(&pm).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	var rows []positionModel
	if err := tx.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	l := &portfolio.Ledger{
		Portfolio: portfolio.Portfolio{
			UserID:        pm.UserID,
			CashAvailable: pm.CashAvailable,
			TotalValue:    pm.TotalValue,
			RealizedPnL:   pm.RealizedPnL,
			UnrealizedPnL: pm.UnrealizedPnL,
			DailyPnL:      pm.DailyPnL,
			CumulativePnL: pm.CumulativePnL,
			UpdatedAt:     pm.UpdatedAt,
		},
		Positions: make(map[string]portfolio.Position, len(rows)),
	}
	for _, r := range rows {
		l.Positions[r.Symbol] = portfolio.Position{Symbol: r.Symbol, Qty: r.Qty, AvgPrice: r.AvgPrice, CurrentPrice: r.CurrentPrice}
	}
	return l, nil
}

// saveLedger 覆盖写入组合行，并让持仓表与 Ledger 完全一致。
func saveLedger(tx *gorm.DB, l *portfolio.Ledger, now time.Time) error {
	p := l.Portfolio
	pm := portfolioModel{
		UserID:        p.UserID,
		CashAvailable: p.CashAvailable,
		TotalValue:    p.TotalValue,
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: p.UnrealizedPnL,
		DailyPnL:      p.DailyPnL,
		CumulativePnL: p.CumulativePnL,
		UpdatedAt:     p.UpdatedAt,
	}
	if err := tx.Save(&pm).Error; err != nil {
		return err
	}
	keep := make([]string, 0, len(l.Positions))
	for sym, pos := range l.Positions {
		keep = append(keep, sym)
		row := positionModel{UserID: p.UserID, Symbol: sym, Qty: pos.Qty, AvgPrice: pos.AvgPrice, CurrentPrice: pos.CurrentPrice, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"qty", "avg_price", "current_price", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}
	}
	del := tx.Where("user_id = ?", p.UserID)
	if len(keep) > 0 {
		del = del.Where("symbol NOT IN ?", keep)
	}
	return del.Delete(&positionModel{}).Error
}

func tradeToModel(t portfolio.Trade) *tradeModel {
	return &tradeModel{
		ID:          t.ID,
		UserID:      t.UserID,
		Symbol:      t.Symbol,
		Side:        string(t.Side),
		Intent:      string(t.Intent),
		Qty:         t.Qty,
		Price:       t.Price,
		RealizedPnL: t.RealizedPnL,
		Source:      t.Source,
		Confidence:  t.Confidence,
		Reason:      t.Reason,
		ExecutedAt:  t.ExecutedAt,
	}
}
