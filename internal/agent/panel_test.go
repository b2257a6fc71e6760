package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockEvaluator struct {
	mock.Mock
	role Role
}

func (m *mockEvaluator) ID() Role { return m.role }

func (m *mockEvaluator) Evaluate(ctx context.Context, symbol string, pf *PortfolioContext) (Result, error) {
	args := m.Called(ctx, symbol, pf)
	return args.Get(0).(Result), args.Error(1)
}

type panicEvaluator struct{}

func (panicEvaluator) ID() Role { return RoleSentiment }

func (panicEvaluator) Evaluate(context.Context, string, *PortfolioContext) (Result, error) {
	panic("news feed exploded")
}

type slowEvaluator struct{}

func (slowEvaluator) ID() Role { return RoleQuant }

func (slowEvaluator) Evaluate(ctx context.Context, symbol string, _ *PortfolioContext) (Result, error) {
	<-ctx.Done()
	return Result{}, ctx.Err()
}

func TestPanelEvaluateKeepsOrderAndFallsBack(t *testing.T) {
	risk := &mockEvaluator{role: RoleRisk}
	risk.On("Evaluate", mock.Anything, "IBM", mock.Anything).Return(Result{
		PrimaryAction: ActionHold,
		Decisions:     []Action{ActionHold, ActionBuyMore},
		Confidence:    0.7,
		Metrics:       map[string]any{MetricExitRisk: "LOW"},
	}, nil)
	tech := &mockEvaluator{role: RoleTechnical}
	tech.On("Evaluate", mock.Anything, "IBM", mock.Anything).Return(Result{}, errors.New("history unavailable"))

	p := NewPanel(time.Second, risk, tech, panicEvaluator{})
	got := p.Evaluate(context.Background(), "IBM", nil)

	assert.Len(t, got, 3)
	assert.Equal(t, RoleRisk, got[0].AgentID)
	assert.Equal(t, "IBM", got[0].Symbol)
	assert.Equal(t, 0.7, got[0].Confidence)

	assert.Equal(t, RoleTechnical, got[1].AgentID)
	assert.Equal(t, []Action{ActionHold}, got[1].Decisions)
	assert.Zero(t, got[1].Confidence)
	assert.Contains(t, strings.Join(got[1].Notes, " "), "history unavailable")

	assert.Equal(t, RoleSentiment, got[2].AgentID)
	assert.Contains(t, strings.Join(got[2].Notes, " "), "panic")
	risk.AssertExpectations(t)
	tech.AssertExpectations(t)
}

func TestPanelEvaluateTimesOut(t *testing.T) {
	p := NewPanel(20*time.Millisecond, slowEvaluator{})
	got := p.Evaluate(context.Background(), "AAPL", nil)
	assert.Len(t, got, 1)
	assert.Equal(t, ActionHold, got[0].PrimaryAction)
	assert.Contains(t, strings.Join(got[0].Notes, " "), "timed out")
}

func TestPanelEvaluateEmptyDecisionsIsFailure(t *testing.T) {
	ev := &mockEvaluator{role: RoleQuant}
	ev.On("Evaluate", mock.Anything, "MSFT", mock.Anything).Return(Result{Confidence: 0.9}, nil)

	got := NewPanel(time.Second, ev).Evaluate(context.Background(), "MSFT", nil)
	assert.Equal(t, []Action{ActionHold}, got[0].Decisions)
	assert.Zero(t, got[0].Confidence)
}

func TestNormalizeClampsConfidenceAndTrims(t *testing.T) {
	r, ok := Result{Decisions: []Action{ActionBuyMore, ActionHold, ActionExit}, Confidence: 1.7}.Normalize(RoleQuant, "IBM")
	assert.True(t, ok)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Len(t, r.Decisions, 2)
	assert.Equal(t, ActionBuyMore, r.PrimaryAction)
	assert.NotNil(t, r.Metrics)
}
