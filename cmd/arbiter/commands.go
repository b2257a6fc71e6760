package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"arbiter/internal/app"
	"arbiter/internal/governor"
	"arbiter/internal/logger"
	"arbiter/internal/store/decisionlog"
)

func newServeCmd(rt *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the loop scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.withApp(ctx, func(ctx context.Context, a *app.App) error {
				logger.Infof("arbiter 启动，用户=%s", a.UserID())
				return a.Run(ctx)
			})
		},
	}
}

func newLoopCmd(rt *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "loop",
		Short: "Run one agent loop and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rep, err := a.Governor().RunLoopOnce(ctx, a.UserID())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
}

func newJudgeCmd(rt *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "judge SYMBOL",
		Short: "Evaluate one symbol without trading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rep, err := a.Governor().Preview(ctx, a.UserID(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
}

// sessionFlags 只把显式传入的 flag 转成 Update。
type sessionFlags struct {
	status     string
	maxCapital float64
	maxTrades  int
	wishlist   string
}

func (f sessionFlags) update(cmd *cobra.Command) governor.Update {
	var u governor.Update
	flags := cmd.Flags()
	if flags.Changed("status") {
		s := f.status
		u.Status = &s
	}
	if flags.Changed("max-capital") {
		v := f.maxCapital
		u.MaxCapital = &v
	}
	if flags.Changed("max-trades") {
		v := f.maxTrades
		u.MaxTradesPerDay = &v
	}
	if flags.Changed("wishlist") {
		list := splitList(f.wishlist)
		u.Wishlist = &list
	}
	return u
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newSessionCmd(rt *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show or change the agent session",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Governor().Session(ctx, a.UserID())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
	var f sessionFlags
	set := &cobra.Command{
		Use:   "set",
		Short: "Update status, limits or wishlist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u := f.update(cmd)
			return rt.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Governor().Configure(ctx, a.UserID(), u)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
	set.Flags().StringVar(&f.status, "status", "", "RUNNING, PAUSED or STOPPED")
	set.Flags().Float64Var(&f.maxCapital, "max-capital", 0, "capital ceiling used for position sizing")
	set.Flags().IntVar(&f.maxTrades, "max-trades", 0, "daily trade limit")
	set.Flags().StringVar(&f.wishlist, "wishlist", "", "comma separated symbols")
	cmd.AddCommand(show, set)
	return cmd
}

func newDecisionsCmd(rt *cliEnv) *cobra.Command {
	var (
		symbol string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "List recent decisions from the activity log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entries, err := a.Decisions().List(ctx, decisionlog.Query{
					UserID: a.UserID(),
					Symbol: strings.ToUpper(strings.TrimSpace(symbol)),
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					fmt.Fprintf(out, "%s  %-6s %-10s %+.3f  %s\n",
						e.CreatedAt.Format("2006-01-02 15:04:05"), e.Symbol, e.Action, e.Score, e.Reasoning)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	return cmd
}

func newResetCmd(rt *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the paper account, session and activity log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Governor().Reset(ctx, a.UserID(), a.Decisions())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

func newConfigCmd(rt *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := rt.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	})
	return cmd
}
