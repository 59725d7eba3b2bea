package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nullspacelabs/stackup/internal/config"
	"github.com/nullspacelabs/stackup/internal/history"
	"github.com/nullspacelabs/stackup/internal/logger"
	"github.com/nullspacelabs/stackup/internal/stack"
)

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	Debug      bool
}

// UpFlags holds flags for the up command.
type UpFlags struct {
	Grace         time.Duration
	Listen        string
	MetricsListen string
	Env           []string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	upFlags := &UpFlags{}

	root := &cobra.Command{
		Use:   "stackup",
		Short: "Bring up a local multi-service development stack and tail its logs",
		Long: `Stackup starts the long-running services of a local development stack,
cleans up instances left over from earlier runs, merges all service logs
into one prefixed console stream, and tears everything down again on
Ctrl+C or SIGTERM.

Examples:
  stackup up                       # stack.toml in the current directory
  stackup up -c dev/stack.toml --listen 127.0.0.1:7070
  stackup down                     # stop a stack without starting a new one
  stackup status
  stackup history --limit 20`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(os.Stderr, globalFlags.Debug)
		},
	}
	root.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "stack.toml", "path to the stack file")
	root.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "enable debug logging")

	root.AddCommand(
		createUpCommand(globalFlags, upFlags),
		createDownCommand(globalFlags),
		createStatusCommand(globalFlags),
		createHistoryCommand(globalFlags),
	)
	return root
}

func loadStack(flags *GlobalFlags) (*config.Stack, error) {
	return config.Load(flags.ConfigPath)
}

func createUpCommand(globalFlags *GlobalFlags, upFlags *UpFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start the stack and stream its logs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadStack(globalFlags)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return stack.Up(ctx, st, stack.Options{
				Listen:        upFlags.Listen,
				MetricsListen: upFlags.MetricsListen,
				Grace:         upFlags.Grace,
				ExtraEnv:      upFlags.Env,
			})
		},
	}
	cmd.Flags().DurationVar(&upFlags.Grace, "grace", 0, "graceful stop window before a forced kill (default 1s)")
	cmd.Flags().StringVar(&upFlags.Listen, "listen", "", "serve the local status API on this address")
	cmd.Flags().StringVar(&upFlags.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringArrayVar(&upFlags.Env, "env", nil, "extra KEY=VALUE environment overrides (repeatable)")
	return cmd
}

func createDownCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Stop a previously started stack without starting a new one",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadStack(globalFlags)
			if err != nil {
				return err
			}
			stack.Down(st)
			return nil
		},
	}
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show recorded pid and liveness of each service",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadStack(globalFlags)
			if err != nil {
				return err
			}
			for _, s := range stack.Statuses(st) {
				state := "stopped"
				if s.Running {
					state = "running"
				}
				pid := "-"
				if s.PID > 0 {
					pid = fmt.Sprintf("%d", s.PID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-8s pid=%s\n", s.Name, state, pid)
			}
			return nil
		},
	}
}

func createHistoryCommand(globalFlags *GlobalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent service start/stop events",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadStack(globalFlags)
			if err != nil {
				return err
			}
			if st.HistoryPath == "" {
				return fmt.Errorf("history is disabled in %s", globalFlags.ConfigPath)
			}
			store, err := history.Open(st.HistoryPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			events, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, e := range events {
				line := fmt.Sprintf("%s  %-5s %-20s pid=%d", e.At.Local().Format(time.RFC3339), e.Kind, e.Name, e.PID)
				if e.Detail != "" {
					line += "  " + e.Detail
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events to show")
	return cmd
}
