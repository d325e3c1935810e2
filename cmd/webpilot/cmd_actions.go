// This file contains the page action commands. Each command resolves a page
// (attaching to a session or launching an ephemeral browser), runs one
// operation through the executor, and writes a single JSON result to stdout.
package main

import (
	"context"
	"os"
	"time"

	"webpilot/internal/executor"
	"webpilot/internal/stream"

	"github.com/go-rod/rod"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Action parameters, flag-settable with PARAM_* environment fallbacks per
// the host runtime contract.
var (
	paramURL        string
	paramSelector   string
	paramText       string
	paramScript     string
	paramSessionID  string
	paramActions    string
	paramWaitMs     int
	paramScreenshot bool
)

func addActionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&paramURL, "url", envDefault("PARAM_URL", ""), "address to open before the action")
	f.StringVar(&paramSessionID, "session", envDefault("PARAM_SESSION_ID", ""), "attach to an existing session")
	f.IntVar(&paramWaitMs, "wait-ms", envIntDefault("PARAM_WAIT_MS", 1000), "settle delay after navigation or interaction")
	f.BoolVar(&paramScreenshot, "screenshot", os.Getenv("PARAM_SCREENSHOT") == "true", "attach a screenshot to the result")
}

func addSelectorFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&paramSelector, "selector", envDefault("PARAM_SELECTOR", ""), "CSS selector")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Diagnostic overview of the page without a screenshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, "inspect", func(ctx context.Context, x *executor.Executor) (executor.Result, error) {
			return x.Inspect(ctx)
		})
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Show captured console logs and errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, "console", func(ctx context.Context, x *executor.Executor) (executor.Result, error) {
			return x.Console(ctx)
		})
	},
}

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Show captured network activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, "network", func(ctx context.Context, x *executor.Executor) (executor.Result, error) {
			return x.Network(ctx)
		})
	},
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture the page or a single element",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, "screenshot", func(ctx context.Context, x *executor.Executor) (executor.Result, error) {
			return x.Screenshot(ctx, paramSelector)
		})
	},
}

var clickCmd = &cobra.Command{
	Use:   "click",
	Short: "Click the first element matching a selector",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, "click", func(ctx context.Context, x *executor.Executor) (executor.Result, error) {
			if paramSelector == "" {
				return nil, errRequired("selector", "click")
			}
			return x.Click(ctx, paramSelector, waitDuration())
		})
	},
}

var typeCmd = &cobra.Command{
	Use:   "type",
	Short: "Type text into the first element matching a selector",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, "type", func(ctx context.Context, x *executor.Executor) (executor.Result, error) {
			if paramSelector == "" {
				return nil, errRequired("selector", "type")
			}
			if paramText == "" {
				return nil, errRequired("text", "type")
			}
			return x.Type(ctx, paramSelector, paramText, waitDuration())
		})
	},
}

var getTextCmd = &cobra.Command{
	Use:   "get-text",
	Short: "Extract text content of all matching elements",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, "get_text", func(ctx context.Context, x *executor.Executor) (executor.Result, error) {
			if paramSelector == "" {
				return nil, errRequired("selector", "get_text")
			}
			return x.GetText(ctx, paramSelector)
		})
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a script in the page",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, "evaluate", func(ctx context.Context, x *executor.Executor) (executor.Result, error) {
			if paramScript == "" {
				return nil, errRequired("script", "evaluate")
			}
			return x.Evaluate(ctx, paramScript)
		})
	},
}

var getHTMLCmd = &cobra.Command{
	Use:   "get-html",
	Short: "Return the page HTML, or one element's inner HTML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, "get_html", func(ctx context.Context, x *executor.Executor) (executor.Result, error) {
			return x.GetHTML(ctx, paramSelector)
		})
	},
}

var runFlowCmd = &cobra.Command{
	Use:   "run-flow",
	Short: "Execute a multi-step flow, streaming input actions as NDJSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, "run_flow", func(ctx context.Context, x *executor.Executor) (executor.Result, error) {
			steps, err := executor.ParseFlowSteps(paramActions)
			if err != nil {
				return nil, err
			}
			return x.RunFlow(ctx, steps), nil
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{
		inspectCmd, consoleCmd, networkCmd, screenshotCmd,
		clickCmd, typeCmd, getTextCmd, evaluateCmd, getHTMLCmd, runFlowCmd,
	} {
		addActionFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{screenshotCmd, clickCmd, typeCmd, getTextCmd, getHTMLCmd} {
		addSelectorFlag(cmd)
	}
	typeCmd.Flags().StringVar(&paramText, "text", envDefault("PARAM_TEXT", ""), "text to type")
	evaluateCmd.Flags().StringVar(&paramScript, "script", envDefault("PARAM_SCRIPT", ""), "script to evaluate")
	runFlowCmd.Flags().StringVar(&paramActions, "actions", envDefault("PARAM_ACTIONS", ""), "JSON array of flow steps")
}

func waitDuration() time.Duration {
	return time.Duration(paramWaitMs) * time.Millisecond
}

type paramError struct{ msg string }

func (e paramError) Error() string { return e.msg }

func errRequired(param, action string) error {
	return paramError{msg: param + " is required for " + action + " action"}
}

// runAction resolves the page, wires diagnostics, runs op, and writes the
// terminal result. Failures are rendered into the result record; the
// returned errFailed only drives the non-zero exit code.
func runAction(cmd *cobra.Command, action string, op func(context.Context, *executor.Executor) (executor.Result, error)) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	var page *rod.Page
	if paramSessionID != "" {
		// Attach to the daemon-owned browser. The daemon keeps the browser
		// alive after this process exits, so there is nothing to close.
		_, page, err = mgr.Attach(ctx, paramSessionID, paramURL)
		if err != nil {
			return writeFailure(executor.Result{"success": false, "error": err.Error()})
		}
	} else {
		// Flows need a visible window for OS-level input injection.
		headless := cfg.Headless && action != "run_flow"
		var cleanup func()
		page, cleanup, err = mgr.LaunchEphemeral(ctx, headless, paramURL)
		if err != nil {
			return writeFailure(executor.Result{"success": false, "error": err.Error()})
		}
		defer cleanup()
	}

	diag := executor.NewDiagnostics()
	diag.Watch(ctx, page)

	// Let the freshly opened page settle before inspecting it.
	if paramURL != "" && action != "run_flow" {
		time.Sleep(waitDuration())
	}

	emitter := stream.NewEmitter(os.Stdout)
	x := executor.New(page, diag, cfg, emitter, logger)

	res, err := op(ctx, x)
	if err != nil {
		fail := executor.Result{"success": false, "error": err.Error()}
		if errs := diag.ConsoleErrors(10); len(errs) > 0 {
			fail["console_errors"] = errs
		}
		if errs := diag.NetworkErrors(10); len(errs) > 0 {
			fail["network_errors"] = errs
		}
		return writeFailure(fail)
	}

	if paramSessionID != "" {
		res["session_id"] = paramSessionID
	}
	if paramScreenshot && res["screenshot"] == nil && action != "run_flow" {
		if path, err := x.CaptureScreenshot(ctx, action); err == nil {
			res["screenshot"] = path
		} else {
			logger.Debug("optional screenshot failed", zap.Error(err))
		}
	}

	if err := stream.WriteResult(os.Stdout, res); err != nil {
		return err
	}
	if success, ok := res["success"].(bool); ok && !success {
		return errFailed
	}
	return nil
}

func writeFailure(res executor.Result) error {
	if err := stream.WriteResult(os.Stdout, res); err != nil {
		return err
	}
	return errFailed
}
