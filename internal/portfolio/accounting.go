package portfolio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Ledger 是纯内存的记账结果，供各个 Store 实现共用。
type Ledger struct {
	Portfolio Portfolio
	Positions map[string]Position
}

// Apply 校验并应用一笔成交，失败时 Ledger 不变。
func (l *Ledger) Apply(req TradeRequest) (realized float64, pos *Position, err error) {
	sym := NormalizeSymbol(req.Symbol)
	if sym == "" || req.Qty <= 0 || req.Price <= 0 {
		return 0, nil, fmt.Errorf("%w: %s %v @ %v", ErrInvalidTrade, sym, req.Qty, req.Price)
	}
	if l.Positions == nil {
		l.Positions = make(map[string]Position)
	}
	qty := decimal.NewFromFloat(req.Qty)
	price := decimal.NewFromFloat(req.Price)
	cash := decimal.NewFromFloat(l.Portfolio.CashAvailable)
	cur, held := l.Positions[sym]

	switch req.Side {
	case SideBuy:
		cost := qty.Mul(price)
		if cost.GreaterThan(cash) {
			return 0, nil, fmt.Errorf("%w: cash %s < cost %s", ErrInsufficientFunds, cash.StringFixed(2), cost.StringFixed(2))
		}
		heldQty := decimal.NewFromFloat(cur.Qty)
		basis := heldQty.Mul(decimal.NewFromFloat(cur.AvgPrice)).Add(cost)
		newQty := heldQty.Add(qty)
		next := Position{
			Symbol:       sym,
			Qty:          newQty.InexactFloat64(),
			AvgPrice:     basis.Div(newQty).InexactFloat64(),
			CurrentPrice: req.Price,
		}
		l.Portfolio.CashAvailable = cash.Sub(cost).InexactFloat64()
		l.Positions[sym] = next
		pos = &next
	case SideSell:
		heldQty := decimal.NewFromFloat(cur.Qty)
		if !held || heldQty.LessThan(qty) {
			return 0, nil, fmt.Errorf("%w: holding %s < %s", ErrInsufficientPosition, heldQty.String(), qty.String())
		}
		pnl := price.Sub(decimal.NewFromFloat(cur.AvgPrice)).Mul(qty)
		l.Portfolio.CashAvailable = cash.Add(qty.Mul(price)).InexactFloat64()
		l.Portfolio.RealizedPnL = decimal.NewFromFloat(l.Portfolio.RealizedPnL).Add(pnl).InexactFloat64()
		l.Portfolio.DailyPnL = decimal.NewFromFloat(l.Portfolio.DailyPnL).Add(pnl).InexactFloat64()
		l.Portfolio.CumulativePnL = decimal.NewFromFloat(l.Portfolio.CumulativePnL).Add(pnl).InexactFloat64()
		left := heldQty.Sub(qty)
		if left.Sign() <= 0 {
			delete(l.Positions, sym)
		} else {
			next := cur
			next.Qty = left.InexactFloat64()
			next.CurrentPrice = req.Price
			l.Positions[sym] = next
			pos = &next
		}
		realized = pnl.InexactFloat64()
	default:
		return 0, nil, fmt.Errorf("%w: side %q", ErrInvalidTrade, req.Side)
	}
	l.Revalue()
	return realized, pos, nil
}

func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// MarkPrices 更新持仓现价后重新估值。
func (l *Ledger) MarkPrices(prices map[string]float64) {
	for sym, p := range prices {
		if p <= 0 {
			continue
		}
		if pos, ok := l.Positions[sym]; ok {
			pos.CurrentPrice = p
			l.Positions[sym] = pos
		}
	}
	l.Revalue()
}

// Revalue 保证 TotalValue = 现金 + Σ qty × 现价。
func (l *Ledger) Revalue() {
	total := decimal.NewFromFloat(l.Portfolio.CashAvailable)
	unrealized := decimal.Zero
	for _, p := range l.Positions {
		q := decimal.NewFromFloat(p.Qty)
		mark := decimal.NewFromFloat(p.MarkPrice())
		total = total.Add(q.Mul(mark))
		unrealized = unrealized.Add(mark.Sub(decimal.NewFromFloat(p.AvgPrice)).Mul(q))
	}
	l.Portfolio.TotalValue = total.InexactFloat64()
	l.Portfolio.UnrealizedPnL = unrealized.InexactFloat64()
}

func (l *Ledger) Snapshot() Snapshot {
	out := Snapshot{Portfolio: l.Portfolio, Positions: make([]Position, 0, len(l.Positions))}
	for _, p := range l.Positions {
		out.Positions = append(out.Positions, p)
	}
	sort.Slice(out.Positions, func(i, j int) bool { return out.Positions[i].Symbol < out.Positions[j].Symbol })
	return out
}
