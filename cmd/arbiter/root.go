package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"arbiter/internal/app"
	"arbiter/internal/config"
	"arbiter/internal/logger"
)

const defaultConfigPath = "configs/config.yaml"

// cliEnv 是各子命令共享的配置与日志句柄。
type cliEnv struct {
	configPath string
	userID     string
	cfg        *config.Config
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	rt := &cliEnv{}
	root := &cobra.Command{
		Use:           "arbiter",
		Short:         "Multi-agent paper trading arbiter",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.logCloser != nil {
				return rt.logCloser.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&rt.configPath, "config", "c", "", "config file (default $ARBITER_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&rt.userID, "user", "", "override app.user_id")

	root.AddCommand(
		newServeCmd(rt),
		newLoopCmd(rt),
		newJudgeCmd(rt),
		newSessionCmd(rt),
		newDecisionsCmd(rt),
		newResetCmd(rt),
		newConfigCmd(rt),
	)
	return root
}

func (rt *cliEnv) init() error {
	// .env 不存在时静默跳过
	_ = godotenv.Load()
	path := resolveConfigPath(rt.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("读取配置失败: %w", err)
	}
	if u := strings.TrimSpace(rt.userID); u != "" {
		cfg.App.UserID = u
	}
	closer, err := logger.SetupFile(logger.FileOptions{
		Path:       cfg.App.LogPath,
		MaxSizeMB:  cfg.App.LogMaxSizeMB,
		MaxBackups: cfg.App.LogMaxBackups,
		MaxAgeDays: cfg.App.LogMaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("初始化日志文件失败: %w", err)
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	rt.cfg = cfg
	rt.logCloser = closer
	if path != "" {
		logger.Debugf("✓ 配置加载成功（环境=%s，文件=%s）", cfg.App.Env, path)
	}
	return nil
}

// resolveConfigPath 依次使用 flag、ARBITER_CONFIG 与默认文件；都没有时只用内置默认。
func resolveConfigPath(flag string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("ARBITER_CONFIG")); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// withApp 构建应用、执行 fn 后释放存储。
func (rt *cliEnv) withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.NewApp(rt.cfg)
	if err != nil {
		return fmt.Errorf("初始化应用失败: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
