package portfolio

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 是进程内实现，用于测试与 dry-run。
type MemoryStore struct {
	mu          sync.Mutex
	initialCash float64
	ledgers     map[string]*Ledger
	trades      map[string][]Trade
	snapshots   map[string]map[string]DailySnapshot
	now         func() time.Time
}

func NewMemoryStore(initialCash float64) *MemoryStore {
	return &MemoryStore{
		initialCash: initialCash,
		ledgers:     make(map[string]*Ledger),
		trades:      make(map[string][]Trade),
		snapshots:   make(map[string]map[string]DailySnapshot),
		now:         time.Now,
	}
}

func (m *MemoryStore) ledger(userID string) *Ledger {
	l, ok := m.ledgers[userID]
	if !ok {
		l = &Ledger{
			Portfolio: Portfolio{UserID: userID, CashAvailable: m.initialCash, TotalValue: m.initialCash},
			Positions: make(map[string]Position),
		}
		m.ledgers[userID] = l
	}
	return l
}

func (m *MemoryStore) GetPortfolio(_ context.Context, userID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.ledger(userID)
	l.Revalue()
	return l.Snapshot(), nil
}

func (m *MemoryStore) ApplyTrade(_ context.Context, userID string, req TradeRequest) (TradeResult, error) {
	req.Symbol = NormalizeSymbol(req.Symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.ledger(userID)
	work := &Ledger{Portfolio: l.Portfolio, Positions: make(map[string]Position, len(l.Positions))}
	for k, v := range l.Positions {
		work.Positions[k] = v
	}
	realized, pos, err := work.Apply(req)
	if err != nil {
		return TradeResult{}, err
	}
	now := m.now()
	work.Portfolio.UpdatedAt = now
	m.ledgers[userID] = work
	tr := Trade{
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
	m.trades[userID] = append(m.trades[userID], tr)
	return TradeResult{Trade: tr, RealizedPnL: realized, Portfolio: work.Portfolio, Position: pos}, nil
}

func (m *MemoryStore) UpdatePrices(_ context.Context, userID string, prices map[string]float64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.ledger(userID)
	l.MarkPrices(prices)
	l.Portfolio.UpdatedAt = m.now()
	return l.Snapshot(), nil
}

func (m *MemoryStore) SnapshotDailyPnL(_ context.Context, userID string, day time.Time) (DailySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	date := day.Format(time.DateOnly)
	if prev, ok := m.snapshots[userID][date]; ok {
		return prev, nil
	}
	l := m.ledger(userID)
	l.Revalue()
	snap := DailySnapshot{
		UserID:        userID,
		Date:          date,
		RealizedPnL:   l.Portfolio.DailyPnL,
		UnrealizedPnL: l.Portfolio.UnrealizedPnL,
		TotalValue:    l.Portfolio.TotalValue,
		TakenAt:       m.now(),
	}
	if m.snapshots[userID] == nil {
		m.snapshots[userID] = make(map[string]DailySnapshot)
	}
	m.snapshots[userID][snap.Date] = snap
	l.Portfolio.DailyPnL = 0
	return snap, nil
}

// DailySnapshots 按日期倒序返回。
func (m *MemoryStore) DailySnapshots(_ context.Context, userID string, limit int) ([]DailySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DailySnapshot, 0, len(m.snapshots[userID]))
	for _, snap := range m.snapshots[userID] {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Trades 返回最近的成交，最新在前。
func (m *MemoryStore) Trades(_ context.Context, userID string, limit int) ([]Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.trades[userID]
	out := make([]Trade, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (m *MemoryStore) Reset(_ context.Context, userID string, initialCash float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trades, userID)
	delete(m.snapshots, userID)
	m.ledgers[userID] = &Ledger{
		Portfolio: Portfolio{UserID: userID, CashAvailable: initialCash, TotalValue: initialCash, UpdatedAt: m.now()},
		Positions: make(map[string]Position),
	}
	return nil
}
