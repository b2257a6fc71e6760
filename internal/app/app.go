package app

import (
	"context"
	"errors"
	"fmt"

	"arbiter/internal/config"
	cfgloader "arbiter/internal/config/loader"
	"arbiter/internal/governor"
	"arbiter/internal/logger"
	"arbiter/internal/scheduler"
	"arbiter/internal/store/decisionlog"
	"arbiter/internal/store/gormstore"
	apihttp "arbiter/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 与定时循环。
type App struct {
	cfg       *config.Config
	store     *gormstore.GormStore
	journal   *decisionlog.Store
	governor  *governor.Governor
	server    *apihttp.Server
	scheduler *scheduler.LoopScheduler
	policy    *cfgloader.PolicyLoader
	Summary   *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务与定时循环，直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
		group.Go(func() error {
			<-ctx.Done()
			a.scheduler.Stop()
			return nil
		})
	}
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close 释放存储句柄，可重复调用。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
		a.journal = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}

func (a *App) Config() *config.Config { return a.cfg }
func (a *App) Governor() *governor.Governor { return a.governor }
func (a *App) Store() *gormstore.GormStore { return a.store }
func (a *App) Decisions() *decisionlog.Store { return a.journal }
func (a *App) Server() *apihttp.Server { return a.server }
func (a *App) UserID() string { return a.cfg.App.UserID }
