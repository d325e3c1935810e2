// This file contains the hidden daemon subcommand. The session manager
// re-executes this binary with `daemon <session-id> [initial-url]` as a
// detached process; the daemon owns the browser until it is signalled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"webpilot/internal/daemon"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var daemonCmd = &cobra.Command{
	Use:    "daemon <session-id> [initial-url]",
	Short:  "Run the session daemon (internal)",
	Hidden: true,
	Args:   cobra.RangeArgs(1, 2),
	RunE:   runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	initialURL := ""
	if len(args) > 1 {
		initialURL = args[1]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	// The daemon runs detached with stdio discarded, so its logs go to a
	// per-session file instead.
	dlog, err := daemonLogger(sessionID)
	if err != nil {
		dlog = logger
	}
	defer func() { _ = dlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return daemon.Run(ctx, daemon.Options{
		SessionID:  sessionID,
		InitialURL: initialURL,
		Store:      st,
		Config:     cfg,
		Logger:     dlog,
	})
}

func daemonLogger(sessionID string) (*zap.Logger, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".webpilot", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{filepath.Join(dir, fmt.Sprintf("daemon-%s.log", sessionID))}
	zcfg.ErrorOutputPaths = zcfg.OutputPaths
	return zcfg.Build()
}
