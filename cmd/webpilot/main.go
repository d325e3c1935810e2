// Package main implements the webpilot CLI: a browser-automation driver that
// manages daemon-owned browser sessions and executes page actions, streaming
// NDJSON progress records and a single JSON result on stdout.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"webpilot/internal/config"
	"webpilot/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	storePath  string

	// Logger
	logger *zap.Logger
)

// errFailed signals a reported failure whose JSON result has already been
// written; the process still exits non-zero as a secondary signal.
var errFailed = errors.New("action failed")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "webpilot",
	Short: "webpilot - daemon-backed browser automation driver",
	Long: `webpilot drives a Chromium browser for connector actions.

Persistent sessions are owned by a detached daemon process and shared through
a remote-debugging endpoint, so separate invocations (and a human watching
the window) all see the same pages. Every invocation writes exactly one JSON
result to stdout; flow execution additionally streams NDJSON input-action
records for the OS-level input injector.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		// Keep stdout clean for the JSON contract.
		zcfg.OutputPaths = []string{"stderr"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.webpilot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "session registry file (default ~/.webpilot/sessions.json)")
}

// loadConfig resolves the effective configuration for this invocation.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path)
}

// openStore resolves the session registry, honoring the --store flag, then
// the config override, then the default location.
func openStore(cfg config.Config) (*store.Store, error) {
	path := storePath
	if path == "" {
		path = cfg.SessionStore
	}
	if path == "" {
		var err error
		path, err = store.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return store.New(path), nil
}

// envDefault returns the PARAM_* environment fallback used when a flag is
// not set, per the host runtime's invocation contract.
func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
