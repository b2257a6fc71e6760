package governor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arbiter/internal/agent"
	"arbiter/internal/decision"
	"arbiter/internal/executor"
	"arbiter/internal/market"
	"arbiter/internal/portfolio"
)

const user = "demo"

type stubEvaluator struct {
	role  agent.Role
	calls atomic.Int32
	hook  func()
}

func (s *stubEvaluator) ID() agent.Role { return s.role }

func (s *stubEvaluator) Evaluate(_ context.Context, symbol string, _ *agent.PortfolioContext) (agent.Result, error) {
	s.calls.Add(1)
	if s.hook != nil {
		s.hook()
	}
	return agent.Result{
		AgentID:       s.role,
		Symbol:        symbol,
		PrimaryAction: agent.ActionHold,
		Decisions:     []agent.Action{agent.ActionHold},
		Confidence:    0.5,
	}, nil
}

type fixedQuotes map[string]float64

func (q fixedQuotes) LatestPrice(_ context.Context, symbol string) (float64, error) {
	if p, ok := q[symbol]; ok {
		return p, nil
	}
	return 0, market.ErrNoQuote
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetPortfolio(ctx context.Context, userID string) (portfolio.Snapshot, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(portfolio.Snapshot), args.Error(1)
}

func (m *mockStore) ApplyTrade(ctx context.Context, userID string, req portfolio.TradeRequest) (portfolio.TradeResult, error) {
	args := m.Called(ctx, userID, req)
	return args.Get(0).(portfolio.TradeResult), args.Error(1)
}

func (m *mockStore) UpdatePrices(ctx context.Context, userID string, prices map[string]float64) (portfolio.Snapshot, error) {
	args := m.Called(ctx, userID, prices)
	return args.Get(0).(portfolio.Snapshot), args.Error(1)
}

func (m *mockStore) SnapshotDailyPnL(ctx context.Context, userID string, day time.Time) (portfolio.DailySnapshot, error) {
	args := m.Called(ctx, userID, day)
	return args.Get(0).(portfolio.DailySnapshot), args.Error(1)
}

func (m *mockStore) Trades(ctx context.Context, userID string, limit int) ([]portfolio.Trade, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]portfolio.Trade), args.Error(1)
}

func (m *mockStore) Reset(ctx context.Context, userID string, initialCash float64) error {
	return m.Called(ctx, userID, initialCash).Error(0)
}

type recordingJournal struct {
	reports []Report
}

func (j *recordingJournal) RecordLoop(_ context.Context, rep Report) error {
	j.reports = append(j.reports, rep)
	return nil
}

type fixture struct {
	gov      *Governor
	store    portfolio.Store
	sessions *MemorySessionStore
	eval     *stubEvaluator
	journal  *recordingJournal
	clock    time.Time
}

func newFixture(t *testing.T, store portfolio.Store, quotes fixedQuotes) *fixture {
	t.Helper()
	f := &fixture{
		store:    store,
		sessions: NewMemorySessionStore(),
		eval:     &stubEvaluator{role: agent.RoleTechnical},
		journal:  &recordingJournal{},
		clock:    time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	gov, err := New(Config{Location: time.UTC}, Deps{
		Portfolio: store,
		Sessions:  f.sessions,
		Quotes:    quotes,
		Panel:     agent.NewPanel(time.Second, f.eval),
		Judge:     decision.NewJudge(decision.DefaultPolicy()),
		Engine:    executor.NewEngine(store, executor.Config{}),
		Journal:   f.journal,
	})
	require.NoError(t, err)
	gov.now = func() time.Time { return f.clock }
	f.gov = gov
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func running(wishlist ...string) State {
	st := NewState(user, Defaults{MaxCapital: 1000, MaxTradesPerDay: 5})
	st.Status = StatusRunning
	st.Wishlist = wishlist
	return st
}

func holdings(t *testing.T, symbols ...string) *portfolio.MemoryStore {
	t.Helper()
	store := portfolio.NewMemoryStore(10000)
	for _, sym := range symbols {
		_, err := store.ApplyTrade(context.Background(), user, portfolio.TradeRequest{Symbol: sym, Side: portfolio.SideBuy, Qty: 1, Price: 100})
		require.NoError(t, err)
	}
	return store
}

func TestStepDebounce(t *testing.T) {
	f := newFixture(t, portfolio.NewMemoryStore(10000), nil)
	st := running("IBM")
	st.LastLoopTime = f.clock.Add(-5 * time.Second)

	next, rep, err := f.gov.Step(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, rep.Outcome)
	assert.Equal(t, st, next)
	assert.Zero(t, f.eval.calls.Load())
}

func TestStepTerminalOutcomesSkipEvaluation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*State)
		outcome Outcome
		message string
	}{
		{"stopped", func(s *State) { s.Status = StatusStopped }, OutcomeStopped, msgNotRunning},
		{"paused", func(s *State) { s.Status = StatusPaused }, OutcomeStopped, msgNotRunning},
		{"limit", func(s *State) { s.TradesUsedToday = 5 }, OutcomeLimitReached, executor.DailyLimitMessage},
		{"idle", func(s *State) { s.Wishlist = nil }, OutcomeIdle, msgIdle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, portfolio.NewMemoryStore(10000), fixedQuotes{"IBM": 100})
			st := running("IBM")
			st.TradingDay = f.clock.Format(time.DateOnly)
			tc.mutate(&st)

			_, rep, err := f.gov.Step(context.Background(), st)
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, rep.Outcome)
			assert.Equal(t, tc.message, rep.Message)
			assert.Zero(t, f.eval.calls.Load())
			assert.Empty(t, f.journal.reports)
		})
	}
}

func TestStepNewDayResetsCounterAndSnapshots(t *testing.T) {
	store := new(mockStore)
	yesterday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	store.On("SnapshotDailyPnL", mock.Anything, user, yesterday).Return(portfolio.DailySnapshot{Date: "2026-03-09"}, nil).Once()

	f := newFixture(t, store, nil)
	st := running()
	st.Status = StatusStopped
	st.TradesUsedToday = 5
	st.LastLoopTime = time.Date(2026, 3, 9, 22, 0, 0, 0, time.UTC)

	next, rep, err := f.gov.Step(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStopped, rep.Outcome)
	assert.Zero(t, next.TradesUsedToday)
	assert.Equal(t, "2026-03-10", next.TradingDay)
	store.AssertExpectations(t)

	// 同一天再次调用不会重复快照
	next.Status = StatusStopped
	_, _, err = f.gov.Step(context.Background(), next)
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "SnapshotDailyPnL", 1)
}

func TestStepStoreFailureLeavesStateUntouched(t *testing.T) {
	store := new(mockStore)
	store.On("GetPortfolio", mock.Anything, user).Return(portfolio.Snapshot{}, errors.New("connection refused"))

	f := newFixture(t, store, nil)
	st := running("IBM")
	st.TradingDay = f.clock.Format(time.DateOnly)
	require.NoError(t, f.sessions.SaveSession(context.Background(), st))

	next, _, err := f.gov.Step(context.Background(), st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, st, next)

	_, err = f.gov.RunLoopOnce(context.Background(), user)
	require.Error(t, err)
	saved, _ := f.sessions.LoadSession(context.Background(), user)
	assert.Equal(t, st, saved)
}

// flakyPortfolio 让前 failures 次 GetPortfolio 失败。
type flakyPortfolio struct {
	*portfolio.MemoryStore
	failures int
}

func (s *flakyPortfolio) GetPortfolio(ctx context.Context, userID string) (portfolio.Snapshot, error) {
	if s.failures > 0 {
		s.failures--
		return portfolio.Snapshot{}, errors.New("store down")
	}
	return s.MemoryStore.GetPortfolio(ctx, userID)
}

func TestStepRolloverRetryKeepsDailySnapshot(t *testing.T) {
	ctx := context.Background()
	mem := portfolio.NewMemoryStore(10000)
	_, err := mem.ApplyTrade(ctx, user, portfolio.TradeRequest{Symbol: "IBM", Side: portfolio.SideBuy, Qty: 1, Price: 100})
	require.NoError(t, err)
	_, err = mem.ApplyTrade(ctx, user, portfolio.TradeRequest{Symbol: "IBM", Side: portfolio.SideSell, Qty: 1, Price: 150})
	require.NoError(t, err)
	store := &flakyPortfolio{MemoryStore: mem, failures: 1}

	f := newFixture(t, store, fixedQuotes{"IBM": 100})
	st := running("IBM")
	st.TradingDay = "2026-03-09"
	st.LastLoopTime = time.Date(2026, 3, 9, 22, 0, 0, 0, time.UTC)

	next, _, err := f.gov.Step(ctx, st)
	require.ErrorContains(t, err, "store down")
	assert.Equal(t, st, next)

	next, rep, err := f.gov.Step(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, rep.Outcome)
	assert.Equal(t, "2026-03-10", next.TradingDay)

	daily, err := mem.DailySnapshots(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "2026-03-09", daily[0].Date)
	assert.InDelta(t, 50, daily[0].RealizedPnL, 1e-9)
}

func TestRunLoopOnceFailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	store := &flakyPortfolio{MemoryStore: portfolio.NewMemoryStore(10000), failures: 1}
	f := newFixture(t, store, fixedQuotes{"IBM": 100})
	st := running("IBM")
	st.TradingDay = f.clock.Format(time.DateOnly)
	require.NoError(t, f.sessions.SaveSession(ctx, st))

	_, err := f.gov.RunLoopOnce(ctx, user)
	require.Error(t, err)
	saved, _ := f.sessions.LoadSession(ctx, user)
	assert.True(t, saved.LastLoopTime.IsZero())

	// 失败不占用防抖窗口，立即重试可以执行
	rep, err := f.gov.RunLoopOnce(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, rep.Outcome)
}

func TestRunLoopOnceOverlappingTriggerIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := holdings(t, "AAA")
	f := newFixture(t, store, fixedQuotes{"AAA": 80})
	require.NoError(t, f.sessions.SaveSession(ctx, running()))

	var inner Report
	var once atomic.Bool
	f.eval.hook = func() {
		if once.CompareAndSwap(false, true) {
			rep, err := f.gov.RunLoopOnce(ctx, user)
			assert.NoError(t, err)
			inner = rep
		}
	}

	rep, err := f.gov.RunLoopOnce(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, inner.Outcome)
	assert.Equal(t, OutcomeSuccess, rep.Outcome)
	assert.Equal(t, 1, rep.TradesExecuted)
	assert.EqualValues(t, 1, f.eval.calls.Load())

	st, _ := f.sessions.LoadSession(ctx, user)
	assert.Equal(t, 1, st.TradesUsedToday)
	assert.Equal(t, f.clock, st.LastLoopTime)
}

func TestRunLoopOnceKeepsExternalReset(t *testing.T) {
	ctx := context.Background()
	store := holdings(t, "AAA")
	f := newFixture(t, store, fixedQuotes{"AAA": 80})
	seed := running("AAA")
	seed.TradingDay = f.clock.Format(time.DateOnly)
	seed.TradesUsedToday = 3
	seed.ConsecutiveLosses = 2
	seed.LastTradePnL = -5
	require.NoError(t, f.sessions.SaveSession(ctx, seed))

	var once atomic.Bool
	f.eval.hook = func() {
		if once.CompareAndSwap(false, true) {
			_, err := f.gov.Reset(ctx, user)
			assert.NoError(t, err)
		}
	}

	rep, err := f.gov.RunLoopOnce(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, rep.Outcome)

	st, _ := f.sessions.LoadSession(ctx, user)
	assert.Equal(t, StatusStopped, st.Status)
	assert.Zero(t, st.TradesUsedToday)
	assert.Zero(t, st.ConsecutiveLosses)
	assert.Zero(t, st.LastTradePnL)
	assert.Empty(t, st.Wishlist)
	assert.False(t, st.ResetAt.IsZero())
	assert.Equal(t, f.clock, st.LastLoopTime)
}

func TestRunLoopOnceLossStreakStopsSession(t *testing.T) {
	ctx := context.Background()
	store := holdings(t, "AAA", "BBB", "CCC")
	f := newFixture(t, store, fixedQuotes{"AAA": 90, "BBB": 90, "CCC": 90})
	require.NoError(t, f.sessions.SaveSession(ctx, running()))

	rep, err := f.gov.RunLoopOnce(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, rep.Outcome)
	assert.Equal(t, 2, rep.TradesExecuted)
	assert.Equal(t, 2, rep.ConsecutiveLosses)
	require.Len(t, rep.Symbols, 3)
	for _, s := range rep.Symbols {
		assert.Equal(t, agent.ActionExit, s.Decision.FinalAction)
		require.NotNil(t, s.Execution)
	}
	assert.Equal(t, executor.StatusSkipped, rep.Symbols[2].Execution.Status)

	// 防抖窗口内的第二次触发
	f.advance(3 * time.Second)
	rep, err = f.gov.RunLoopOnce(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, rep.Outcome)

	f.advance(10 * time.Second)
	rep, err = f.gov.RunLoopOnce(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRiskStop, rep.Outcome)
	assert.Contains(t, rep.Message, "drawdown")
	assert.Equal(t, 3, rep.ConsecutiveLosses)

	st, _ := f.sessions.LoadSession(ctx, user)
	assert.Equal(t, StatusStopped, st.Status)
	assert.Equal(t, f.clock, st.StoppedAt)
	assert.Equal(t, 3, st.TradesUsedToday)
	assert.InDelta(t, 3*(89.82-100), st.SessionPnL, 1e-9)
	assert.Len(t, f.journal.reports, 2)

	snap, _ := store.GetPortfolio(ctx, user)
	assert.Empty(t, snap.Positions)
}

func TestRunLoopOnceWinStreakLocksProfit(t *testing.T) {
	ctx := context.Background()
	store := holdings(t, "AAA", "BBB", "CCC")
	f := newFixture(t, store, fixedQuotes{"AAA": 120, "BBB": 120, "CCC": 120})
	require.NoError(t, f.sessions.SaveSession(ctx, running()))

	_, err := f.gov.RunLoopOnce(ctx, user)
	require.NoError(t, err)
	f.advance(time.Minute)
	rep, err := f.gov.RunLoopOnce(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRiskStop, rep.Outcome)
	assert.Contains(t, rep.Message, "lock in profits")
	assert.Equal(t, StatusStopped, rep.SessionStatus)
	assert.InDelta(t, 119.76-100, rep.LastTradePnL, 1e-9)
}

func TestRunLoopOnceKeepsExternalStop(t *testing.T) {
	ctx := context.Background()
	store := holdings(t, "AAA")
	f := newFixture(t, store, fixedQuotes{"AAA": 80})
	require.NoError(t, f.sessions.SaveSession(ctx, running()))

	stopped := "STOPPED"
	var once atomic.Bool
	f.eval.hook = func() {
		if once.CompareAndSwap(false, true) {
			_, err := f.gov.Configure(ctx, user, Update{Status: &stopped})
			assert.NoError(t, err)
		}
	}

	rep, err := f.gov.RunLoopOnce(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, rep.Outcome)
	assert.Equal(t, 1, rep.TradesExecuted)

	st, _ := f.sessions.LoadSession(ctx, user)
	assert.Equal(t, StatusStopped, st.Status)
	assert.False(t, st.StoppedAt.IsZero())
	assert.Equal(t, 1, st.TradesUsedToday)
	assert.Equal(t, 1, st.ConsecutiveLosses)
}

func TestApplyStreaks(t *testing.T) {
	sell := func(pnl float64) executor.Result {
		return executor.Result{Status: executor.StatusExecuted, Side: portfolio.SideSell, RealizedPnL: pnl}
	}
	st := State{ConsecutiveWins: 2}
	applyStreaks(&st, []executor.Result{
		{Status: executor.StatusExecuted, Side: portfolio.SideBuy},
		{Status: executor.StatusSkipped, Side: portfolio.SideSell, RealizedPnL: -5},
		sell(-1),
		sell(0),
	})
	assert.Equal(t, 1, st.ConsecutiveWins)
	assert.Zero(t, st.ConsecutiveLosses)
	assert.Equal(t, 0.0, st.LastTradePnL)
	assert.Equal(t, -1.0, st.SessionPnL)
}

func TestLoopSymbolsUnionsHoldingsAndWishlist(t *testing.T) {
	snap := portfolio.Snapshot{Positions: []portfolio.Position{{Symbol: "MSFT", Qty: 2}, {Symbol: "IBM", Qty: 1}}}
	got := loopSymbols(snap, []string{"ibm", " aapl ", "AAPL"})
	assert.Equal(t, []string{"MSFT", "IBM", "AAPL"}, got)
}

func TestPreviewDoesNotTrade(t *testing.T) {
	ctx := context.Background()
	store := holdings(t, "IBM")
	f := newFixture(t, store, fixedQuotes{"IBM": 120})

	rep, err := f.gov.Preview(ctx, user, " ibm ")
	require.NoError(t, err)
	assert.Equal(t, "IBM", rep.Symbol)
	assert.Equal(t, 120.0, rep.Decision.MarketPrice)
	assert.Nil(t, rep.Execution)
	assert.Len(t, rep.Agents, 1)

	trades, err := store.Trades(ctx, user, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1, "only the seeded buy")

	_, err = f.gov.Preview(ctx, user, "  ")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
