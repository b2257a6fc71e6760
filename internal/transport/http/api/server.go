// Package apihttp 暴露会话配置、循环触发与查询接口。
package apihttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"arbiter/internal/governor"
	"arbiter/internal/logger"
	"arbiter/internal/portfolio"
	"arbiter/internal/store/decisionlog"
)

// Agent 是 HTTP 层依赖的会话能力，由 *governor.Governor 实现。
type Agent interface {
	Session(ctx context.Context, userID string) (governor.State, error)
	Configure(ctx context.Context, userID string, u governor.Update) (governor.State, error)
	RunLoopOnce(ctx context.Context, userID string) (governor.Report, error)
	Reset(ctx context.Context, userID string, extra ...governor.Resetter) (governor.State, error)
	Preview(ctx context.Context, userID, symbol string) (governor.SymbolReport, error)
}

// DecisionReader 读取活动日志。
type DecisionReader interface {
	List(ctx context.Context, q decisionlog.Query) ([]decisionlog.Entry, error)
}

var _ Agent = (*governor.Governor)(nil)

type ServerConfig struct {
	Addr      string
	UserID    string
	Agent     Agent
	Portfolio portfolio.Store
	Decisions DecisionReader
	// Resetters 在账户重置时一并清理。
	Resetters []governor.Resetter
}

type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil || cfg.Portfolio == nil {
		return nil, errors.New("api server requires agent and portfolio store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	if cfg.UserID == "" {
		cfg.UserID = "demo"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h := &handlers{cfg: cfg}
	h.register(router.Group("/api"))
	return &Server{addr: cfg.Addr, router: router}, nil
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func (s *Server) Handler() http.Handler { return s.router }

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("HTTP 服务监听 %s", s.addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	}
}

func requestLogger() gin.HandlerFunc {
	log := logger.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.RequestURI(),
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"dur", time.Since(start))
	}
}
