// Package scheduler 按固定间隔触发交易循环。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"arbiter/internal/governor"
	"arbiter/internal/logger"
)

const minInterval = 10 * time.Second

// LoopRunner 是被调度的一轮循环。
type LoopRunner interface {
	RunLoopOnce(ctx context.Context, userID string) (governor.Report, error)
}

// LoopScheduler 用 cron 的 @every 表达式驱动循环，上一轮未结束时跳过本次触发。
type LoopScheduler struct {
	runner   LoopRunner
	userID   string
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	lastRep governor.Report
}

func New(runner LoopRunner, userID string, interval time.Duration) (*LoopScheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	if interval < minInterval {
		return nil, fmt.Errorf("scheduler: interval %s below %s", interval, minInterval)
	}
	return &LoopScheduler{
		runner:   runner,
		userID:   userID,
		interval: interval,
		timeout:  interval,
	}, nil
}

func (s *LoopScheduler) Spec() string {
	return "@every " + s.interval.String()
}

// Start 注册任务并启动 cron；ctx 取消时停止。
func (s *LoopScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	printf := cron.PrintfLogger(printfAdapter{})
	c := cron.New(cron.WithChain(cron.Recover(printf), cron.SkipIfStillRunning(printf)))
	if _, err := c.AddFunc(s.Spec(), s.tick); err != nil {
		s.cancel()
		return fmt.Errorf("scheduler: %w", err)
	}
	c.Start()
	s.cron = c
	logger.Infof("scheduler started: %s user=%s", s.Spec(), s.userID)
	go func() {
		<-s.ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop 等待正在运行的一轮结束。
func (s *LoopScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	cancel := s.cancel
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	if cancel != nil {
		cancel()
	}
	logger.Infof("scheduler stopped")
}

func (s *LoopScheduler) tick() {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	rep, err := s.runner.RunLoopOnce(ctx, s.userID)
	if err != nil {
		logger.Errorf("scheduled loop failed: %v", err)
		return
	}
	s.mu.Lock()
	s.lastRep = rep
	s.mu.Unlock()
	if rep.Outcome == governor.OutcomeSkipped {
		logger.Debugf("scheduled loop skipped: %s", rep.Message)
		return
	}
	logger.Infof("scheduled loop %s: %s (%s)", rep.LoopID, rep.Outcome, rep.Message)
}

// Last 返回最近一次调度得到的报告。
func (s *LoopScheduler) Last() governor.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRep
}

type printfAdapter struct{}

func (printfAdapter) Printf(format string, args ...interface{}) {
	logger.Debugf("cron: "+format, args...)
}
