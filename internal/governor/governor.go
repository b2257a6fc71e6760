package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"arbiter/internal/agent"
	"arbiter/internal/decision"
	"arbiter/internal/executor"
	"arbiter/internal/logger"
	"arbiter/internal/market"
	"arbiter/internal/portfolio"
)

const (
	msgDebounce     = "Loop debounce active."
	msgNotRunning   = "Agent is not running."
	msgIdle         = "No symbols to analyze."
	msgLossStreak   = "Risk Governor Triggered: %d Consecutive Losses. Agent Stopped to prevent further drawdown."
	msgProfitStreak = "Risk Governor Triggered: %d Consecutive Wins. Agent Stopped to lock in profits."
)

// SessionStore 持久化会话状态。LoadSession 在不存在时返回 ErrSessionNotFound。
type SessionStore interface {
	LoadSession(ctx context.Context, userID string) (State, error)
	SaveSession(ctx context.Context, st State) error
}

type Config struct {
	Debounce          time.Duration  `json:"debounce"`
	LossStreak        int            `json:"loss_streak"`
	WinStreak         int            `json:"win_streak"`
	SymbolConcurrency int            `json:"symbol_concurrency"`
	InitialCash       float64        `json:"initial_cash"`
	Location          *time.Location `json:"-"`
	Defaults          Defaults       `json:"defaults"`
}

func DefaultConfig() Config {
	return Config{
		Debounce:          10 * time.Second,
		LossStreak:        3,
		WinStreak:         3,
		SymbolConcurrency: 4,
		InitialCash:       10000,
		Location:          time.Local,
		Defaults:          DefaultDefaults(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.LossStreak <= 0 {
		c.LossStreak = d.LossStreak
	}
	if c.WinStreak <= 0 {
		c.WinStreak = d.WinStreak
	}
	if c.SymbolConcurrency <= 0 {
		c.SymbolConcurrency = d.SymbolConcurrency
	}
	if c.InitialCash <= 0 {
		c.InitialCash = d.InitialCash
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	return c
}

// Deps 是 Governor 的协作方，Journal 与 Notifier 可以为空。
type Deps struct {
	Portfolio portfolio.Store
	Sessions  SessionStore
	Quotes    market.QuoteSource
	Panel     *agent.Panel
	Judge     *decision.Judge
	Engine    *executor.Engine
	Journal   Journal
	Notifier  Notifier
}

type Governor struct {
	cfg      Config
	store    portfolio.Store
	sessions SessionStore
	quotes   market.QuoteSource
	panel    *agent.Panel
	judge    *decision.Judge
	engine   *executor.Engine
	journal  Journal
	notifier Notifier
	now      func() time.Time

	// mu 串行化会话的读改写；Step 本身在锁外运行，靠 claim 防止重入。
	mu sync.Mutex
}

func New(cfg Config, deps Deps) (*Governor, error) {
	switch {
	case deps.Portfolio == nil:
		return nil, errors.New("governor: portfolio store is required")
	case deps.Sessions == nil:
		return nil, errors.New("governor: session store is required")
	case deps.Quotes == nil:
		return nil, errors.New("governor: quote source is required")
	case deps.Panel == nil || deps.Judge == nil || deps.Engine == nil:
		return nil, errors.New("governor: panel, judge and engine are required")
	}
	return &Governor{
		cfg:      cfg.withDefaults(),
		store:    deps.Portfolio,
		sessions: deps.Sessions,
		quotes:   deps.Quotes,
		panel:    deps.Panel,
		judge:    deps.Judge,
		engine:   deps.Engine,
		journal:  deps.Journal,
		notifier: deps.Notifier,
		now:      time.Now,
	}, nil
}

func (g *Governor) Config() Config { return g.cfg }

// RunLoopOnce 读取会话、推进一步并保存。SKIPPED 与出错时不写回。
func (g *Governor) RunLoopOnce(ctx context.Context, userID string) (Report, error) {
	st, claimed, err := g.claim(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	if claimed.IsZero() {
		rep := Report{UserID: userID, At: g.now()}
		return g.finish(rep, st, OutcomeSkipped, msgDebounce), nil
	}
	next, rep, err := g.Step(ctx, st)
	if err != nil {
		g.release(ctx, userID, st, claimed)
		return rep, err
	}
	if rep.Outcome == OutcomeSkipped {
		return rep, nil
	}

	// 成交已经落库，保存不再受调用方取消影响。
	wctx := context.WithoutCancel(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	cur, err := g.sessions.LoadSession(wctx, userID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return rep, fmt.Errorf("reload session: %w", err)
	}
	if err == nil {
		next = mergeExternal(st, cur, next, rep.Outcome)
		rep.fill(next)
	}
	next.UpdatedAt = g.now()
	if err := g.sessions.SaveSession(wctx, next); err != nil {
		return rep, fmt.Errorf("save session: %w", err)
	}
	return rep, nil
}

// claim 在锁内做防抖检查，通过后先写入 LastLoopTime 占住本轮，并发触发会被防抖挡下。
// 返回占位前的会话；被防抖时占位时间为零值。
func (g *Governor) claim(ctx context.Context, userID string) (State, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.loadOrCreate(ctx, userID)
	if err != nil {
		return State{}, time.Time{}, err
	}
	now := g.now()
	if g.debounced(st, now) {
		return st, time.Time{}, nil
	}
	marker := st.clone()
	marker.LastLoopTime = now
	if err := g.sessions.SaveSession(ctx, marker); err != nil {
		return State{}, time.Time{}, fmt.Errorf("claim loop: %w", err)
	}
	return st, now, nil
}

// release 在循环失败时撤回占位，会话恢复原样。
func (g *Governor) release(ctx context.Context, userID string, before State, claimed time.Time) {
	wctx := context.WithoutCancel(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	cur, err := g.sessions.LoadSession(wctx, userID)
	if err != nil || !cur.LastLoopTime.Equal(claimed) {
		return
	}
	cur.LastLoopTime = before.LastLoopTime
	if err := g.sessions.SaveSession(wctx, cur); err != nil {
		logger.Warnf("release loop claim for %s failed: %v", userID, err)
	}
}

func (g *Governor) debounced(st State, now time.Time) bool {
	return !st.LastLoopTime.IsZero() && now.Sub(st.LastLoopTime) < g.cfg.Debounce
}

// mergeExternal 保留循环期间外部对会话做的修改：状态切换、账户重置与配置项。
func mergeExternal(before, cur, next State, outcome Outcome) State {
	if !cur.ResetAt.Equal(before.ResetAt) {
		// 账户在循环中被重置，计数以重置后的为准。
		next.Status = cur.Status
		next.StartedAt = cur.StartedAt
		next.StoppedAt = cur.StoppedAt
		next.ResetAt = cur.ResetAt
		next.TradesUsedToday = cur.TradesUsedToday
		next.ConsecutiveWins = cur.ConsecutiveWins
		next.ConsecutiveLosses = cur.ConsecutiveLosses
		next.LastTradePnL = cur.LastTradePnL
		next.SessionPnL = cur.SessionPnL
	} else if cur.Status != before.Status && outcome != OutcomeRiskStop {
		next.Status = cur.Status
		next.StartedAt = cur.StartedAt
		next.StoppedAt = cur.StoppedAt
		if cur.Status == StatusRunning {
			next.ConsecutiveWins = cur.ConsecutiveWins
			next.ConsecutiveLosses = cur.ConsecutiveLosses
			next.SessionPnL = cur.SessionPnL
		}
	}
	next.Wishlist = append([]string(nil), cur.Wishlist...)
	next.MaxCapital = cur.MaxCapital
	next.MaxTradesPerDay = cur.MaxTradesPerDay
	return next
}

// Step 是纯粹的状态推进：输入旧状态，返回新状态与报告。
// 返回 error 时新状态即原状态。
func (g *Governor) Step(ctx context.Context, st State) (State, Report, error) {
	now := g.now()
	rep := Report{UserID: st.UserID, At: now}

	if g.debounced(st, now) {
		return st, g.finish(rep, st, OutcomeSkipped, msgDebounce), nil
	}

	next := st.clone()
	if err := g.rollDay(ctx, &next, now); err != nil {
		return st, rep, err
	}
	if next.Status != StatusRunning {
		return next, g.finish(rep, next, OutcomeStopped, msgNotRunning), nil
	}
	if next.TradesUsedToday >= next.MaxTradesPerDay {
		return next, g.finish(rep, next, OutcomeLimitReached, executor.DailyLimitMessage), nil
	}

	snap, err := g.store.GetPortfolio(ctx, st.UserID)
	if err != nil {
		return st, rep, fmt.Errorf("load portfolio: %w", err)
	}
	symbols := loopSymbols(snap, next.Wishlist)
	if len(symbols) == 0 {
		return next, g.finish(rep, next, OutcomeIdle, msgIdle), nil
	}

	rep.LoopID = uuid.NewString()
	rep.Symbols = g.evaluate(ctx, symbols, snap.AgentContext())
	decisions := make([]decision.Decision, 0, len(rep.Symbols))
	prices := make(map[string]float64, len(rep.Symbols))
	for _, s := range rep.Symbols {
		decisions = append(decisions, s.Decision)
		if s.Decision.MarketPrice > 0 {
			prices[s.Symbol] = s.Decision.MarketPrice
		}
	}

	batch := g.engine.ExecuteBatch(ctx, st.UserID, decisions, prices, executor.Budget{
		MaxCapital:      next.MaxCapital,
		TradesUsedToday: next.TradesUsedToday,
		MaxTradesPerDay: next.MaxTradesPerDay,
	})
	rep.TradesExecuted = batch.TradesExecuted
	rep.Results = batch.Results
	attach(rep.Symbols, batch.Results)

	wctx := context.WithoutCancel(ctx)
	if after, err := g.store.UpdatePrices(wctx, st.UserID, prices); err != nil {
		logger.Warnf("update prices for %s failed: %v", st.UserID, err)
	} else {
		pf := after.Portfolio
		rep.Portfolio = &pf
	}

	next.TradesUsedToday += batch.TradesExecuted
	next.LastLoopTime = now
	applyStreaks(&next, batch.Results)

	outcome, msg := OutcomeSuccess, batch.Message
	switch {
	case next.ConsecutiveLosses >= g.cfg.LossStreak:
		outcome, msg = OutcomeRiskStop, fmt.Sprintf(msgLossStreak, next.ConsecutiveLosses)
	case next.ConsecutiveWins >= g.cfg.WinStreak:
		outcome, msg = OutcomeRiskStop, fmt.Sprintf(msgProfitStreak, next.ConsecutiveWins)
	}
	if outcome == OutcomeRiskStop {
		next.Status = StatusStopped
		next.StoppedAt = now
		logger.Warnf("session %s stopped: %s", st.UserID, msg)
	}
	rep = g.finish(rep, next, outcome, msg)

	if g.journal != nil {
		if err := g.journal.RecordLoop(wctx, rep); err != nil {
			logger.Warnf("journal loop %s failed: %v", rep.LoopID, err)
		}
	}
	g.announce(rep)
	return next, rep, nil
}

func (g *Governor) finish(rep Report, st State, outcome Outcome, msg string) Report {
	rep.Outcome = outcome
	rep.Message = msg
	rep.fill(st)
	logger.Infof("loop %s: %s %s (trades %d/%d)", st.UserID, outcome, msg, st.TradesUsedToday, st.MaxTradesPerDay)
	return rep
}

// rollDay 在进入新的自然日时清零交易计数，并为上一日做盈亏快照。
func (g *Governor) rollDay(ctx context.Context, st *State, now time.Time) error {
	today := now.In(g.cfg.Location).Format(time.DateOnly)
	prev := st.TradingDay
	if prev == "" && !st.LastLoopTime.IsZero() {
		prev = st.LastLoopTime.In(g.cfg.Location).Format(time.DateOnly)
	}
	if prev == today {
		st.TradingDay = today
		return nil
	}
	if prev != "" {
		day, err := time.ParseInLocation(time.DateOnly, prev, g.cfg.Location)
		if err != nil {
			day = now.AddDate(0, 0, -1)
		}
		if _, err := g.store.SnapshotDailyPnL(ctx, st.UserID, day); err != nil {
			return fmt.Errorf("snapshot daily pnl: %w", err)
		}
		logger.Infof("session %s: new trading day %s, counters reset", st.UserID, today)
	}
	st.TradingDay = today
	st.TradesUsedToday = 0
	return nil
}

// loopSymbols 是持仓与关注列表的并集，持仓在前。
func loopSymbols(snap portfolio.Snapshot, wishlist []string) []string {
	all := make([]string, 0, len(snap.Positions)+len(wishlist))
	for _, p := range snap.Positions {
		if p.Qty > 0 {
			all = append(all, p.Symbol)
		}
	}
	all = append(all, wishlist...)
	return NormalizeWishlist(all)
}

// evaluate 并发评估所有标的，结果顺序与 symbols 一致。
func (g *Governor) evaluate(ctx context.Context, symbols []string, pf *agent.PortfolioContext) []SymbolReport {
	out := make([]SymbolReport, len(symbols))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.SymbolConcurrency)
	for i, sym := range symbols {
		i, sym := i, sym
		eg.Go(func() error {
			out[i] = g.evaluateSymbol(ectx, sym, pf)
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (g *Governor) evaluateSymbol(ctx context.Context, symbol string, pf *agent.PortfolioContext) SymbolReport {
	results := g.panel.Evaluate(ctx, symbol, pf)
	price, err := g.quotes.LatestPrice(ctx, symbol)
	if err != nil {
		if !errors.Is(err, market.ErrNoQuote) {
			logger.Warnf("quote %s failed: %v", symbol, err)
		}
		price = 0
	}
	in := decision.Input{Symbol: symbol, Results: results, MarketPrice: price}
	if pos, ok := pf.Position(symbol); ok {
		in.Position = &pos
	}
	return SymbolReport{Symbol: symbol, Agents: results, Decision: g.judge.Judge(in)}
}

func attach(symbols []SymbolReport, results []executor.Result) {
	idx := make(map[string]int, len(symbols))
	for i, s := range symbols {
		idx[s.Symbol] = i
	}
	for i := range results {
		if j, ok := idx[results[i].Symbol]; ok {
			r := results[i]
			symbols[j].Execution = &r
		}
	}
}

// applyStreaks 按成交顺序更新连胜连亏；盈亏为零记为盈利。
func applyStreaks(st *State, results []executor.Result) {
	for _, r := range results {
		if r.Status != executor.StatusExecuted || r.Side != portfolio.SideSell {
			continue
		}
		st.LastTradePnL = r.RealizedPnL
		st.SessionPnL += r.RealizedPnL
		if r.RealizedPnL >= 0 {
			st.ConsecutiveWins++
			st.ConsecutiveLosses = 0
		} else {
			st.ConsecutiveLosses++
			st.ConsecutiveWins = 0
		}
	}
}

// Preview 只评估与裁决单个标的，不下单也不改动会话。
func (g *Governor) Preview(ctx context.Context, userID, symbol string) (SymbolReport, error) {
	syms := NormalizeWishlist([]string{symbol})
	if len(syms) == 0 {
		return SymbolReport{}, &ValidationError{Field: "symbol", Message: "must not be empty"}
	}
	snap, err := g.store.GetPortfolio(ctx, userID)
	if err != nil {
		return SymbolReport{}, fmt.Errorf("load portfolio: %w", err)
	}
	return g.evaluateSymbol(ctx, syms[0], snap.AgentContext()), nil
}
