package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"arbiter/internal/logger"
)

const defaultEvaluatorTimeout = 8 * time.Second

// Panel 并发调用全部评估器，单个评估器的失败只会降级为 Fallback。
type Panel struct {
	evaluators []Evaluator
	timeout    time.Duration
}

func NewPanel(timeout time.Duration, evaluators ...Evaluator) *Panel {
	if timeout <= 0 {
		timeout = defaultEvaluatorTimeout
	}
	return &Panel{evaluators: evaluators, timeout: timeout}
}

func (p *Panel) Evaluators() []Evaluator {
	return p.evaluators
}

// Evaluate 返回与评估器注册顺序一致的结果，长度恒等于评估器数量。
func (p *Panel) Evaluate(ctx context.Context, symbol string, pf *PortfolioContext) []Result {
	results := make([]Result, len(p.evaluators))
	g, gctx := errgroup.WithContext(ctx)
	for i, ev := range p.evaluators {
		i, ev := i, ev
		g.Go(func() error {
			results[i] = p.evaluateOne(gctx, ev, symbol, pf)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Panel) evaluateOne(ctx context.Context, ev Evaluator, symbol string, pf *PortfolioContext) Result {
	role := ev.ID()
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("evaluator %s panicked on %s: %v\n%s", role, symbol, r, debug.Stack())
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		r, err := ev.Evaluate(cctx, symbol, pf)
		done <- outcome{res: r, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			logger.Warnf("evaluator %s failed on %s: %v", role, symbol, out.err)
			return Fallback(role, symbol, out.err)
		}
		norm, ok := out.res.Normalize(role, symbol)
		if !ok {
			logger.Warnf("evaluator %s returned no decisions for %s", role, symbol)
			return Fallback(role, symbol, nil)
		}
		return norm
	case <-cctx.Done():
		err := cctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", p.timeout)
		}
		logger.Warnf("evaluator %s on %s: %v", role, symbol, err)
		return Fallback(role, symbol, err)
	}
}
