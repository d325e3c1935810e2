// Package executor performs single page operations and multi-step flows
// against a live browser page, collecting console and network diagnostics
// throughout the invocation. Flow steps are translated into OS-level input
// actions and streamed to the caller as NDJSON records.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webpilot/internal/config"
	"webpilot/internal/stream"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Result is the flat JSON object returned as the invocation's terminal
// record. Field sets vary per operation, matching the driver contract.
type Result map[string]any

// Executor runs one user-requested operation against a page.
type Executor struct {
	page *rod.Page
	diag *Diagnostics
	cfg  config.Config
	emit *stream.Emitter
	log  *zap.Logger
}

// New returns an Executor for the given page. The diagnostics collector
// should already be watching the page.
func New(page *rod.Page, diag *Diagnostics, cfg config.Config, emitter *stream.Emitter, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{page: page, diag: diag, cfg: cfg, emit: emitter, log: logger}
}

// Inspect returns a diagnostic overview of the page: title, URL, text
// preview, headings, interactive elements, form inputs, and recent console
// and network activity.
func (x *Executor) Inspect(ctx context.Context) (Result, error) {
	page := x.page.Context(ctx)
	res := Result{"success": true}
	x.addTitleURL(page, res)

	if body, err := page.Element("body"); err == nil {
		if text, err := body.Text(); err == nil {
			res["text_preview"] = preview(strings.TrimSpace(text), 500)
		}
	}

	if headings := elementTexts(page, "h1, h2, h3", 10); len(headings) > 0 {
		res["headings"] = headings
	}
	if buttons := elementTexts(page, `button, [role="button"]`, 15); len(buttons) > 0 {
		res["buttons"] = buttons
	}
	if inputs := x.formInputs(page); len(inputs) > 0 {
		res["inputs"] = inputs
	}

	if logs := x.diag.ConsoleLogs(15); len(logs) > 0 {
		res["console_logs"] = logs
	}
	res["network_requests"] = x.diag.Requests(20)
	x.addDiagnostics(res)
	return res, nil
}

// Console returns the captured console messages and errors.
func (x *Executor) Console(ctx context.Context) (Result, error) {
	res := Result{"success": true}
	x.addTitleURL(x.page.Context(ctx), res)
	res["console_logs"] = x.diag.ConsoleLogs(0)
	res["console_errors"] = x.diag.ConsoleErrors(0)
	if res["console_logs"] == nil {
		res["console_logs"] = []ConsoleEntry{}
	}
	if res["console_errors"] == nil {
		res["console_errors"] = []ConsoleEntry{}
	}
	return res, nil
}

// Network returns the captured request log and network errors.
func (x *Executor) Network(ctx context.Context) (Result, error) {
	res := Result{"success": true}
	x.addTitleURL(x.page.Context(ctx), res)
	res["requests"] = x.diag.Requests(0)
	res["errors"] = x.diag.NetworkErrors(0)
	if res["requests"] == nil {
		res["requests"] = []NetworkRequest{}
	}
	if res["errors"] == nil {
		res["errors"] = []NetworkError{}
	}
	return res, nil
}

// Screenshot captures the page (or a single element when selector is given)
// into the downloads directory and returns the file path.
func (x *Executor) Screenshot(ctx context.Context, selector string) (Result, error) {
	path, err := x.capture(ctx, "screenshot", selector)
	if err != nil {
		return nil, err
	}
	res := Result{"success": true, "screenshot": path}
	x.addTitleURL(x.page.Context(ctx), res)
	x.addDiagnostics(res)
	return res, nil
}

// Click clicks the first element matching selector, then waits for the page
// to settle.
func (x *Executor) Click(ctx context.Context, selector string, wait time.Duration) (Result, error) {
	page := x.page.Context(ctx)
	el, err := page.Timeout(x.cfg.Timeout()).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("click %s: %w", selector, err)
	}
	sleepCtx(ctx, wait)

	res := Result{"success": true, "clicked": selector}
	x.addTitleURL(page, res)
	x.addDiagnostics(res)
	return res, nil
}

// Type fills the first element matching selector with text.
func (x *Executor) Type(ctx context.Context, selector, text string, wait time.Duration) (Result, error) {
	page := x.page.Context(ctx)
	el, err := page.Timeout(x.cfg.Timeout()).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := el.Input(text); err != nil {
		return nil, fmt.Errorf("type into %s: %w", selector, err)
	}
	sleepCtx(ctx, wait)

	res := Result{"success": true, "typed": map[string]string{"selector": selector, "text": text}}
	x.addTitleURL(page, res)
	x.addDiagnostics(res)
	return res, nil
}

// GetText returns the trimmed text content of every element matching
// selector.
func (x *Executor) GetText(ctx context.Context, selector string) (Result, error) {
	page := x.page.Context(ctx)
	els, err := page.Timeout(x.cfg.Timeout()).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(text); t != "" {
			texts = append(texts, t)
		}
	}
	return Result{"success": true, "texts": texts, "count": len(texts)}, nil
}

// Evaluate runs a script in the page and returns its value. Bare expressions
// are wrapped into a function for the evaluation protocol.
func (x *Executor) Evaluate(ctx context.Context, script string) (Result, error) {
	page := x.page.Context(ctx)
	obj, err := page.Evaluate(&rod.EvalOptions{
		JS:           normalizeScript(script),
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate script: %w", err)
	}
	res := Result{"success": true, "result": obj.Value.Val()}
	x.addDiagnostics(res)
	return res, nil
}

// GetHTML returns the page HTML, or a single element's inner HTML when
// selector is given.
func (x *Executor) GetHTML(ctx context.Context, selector string) (Result, error) {
	page := x.page.Context(ctx)
	var html string
	var err error
	if selector != "" {
		var el *rod.Element
		el, err = page.Timeout(x.cfg.Timeout()).Element(selector)
		if err != nil {
			return nil, fmt.Errorf("element not found: %s: %w", selector, err)
		}
		html, err = el.HTML()
	} else {
		html, err = page.HTML()
	}
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}
	return Result{"success": true, "html": html}, nil
}

// RunFlow executes an ordered list of flow steps against the page, streaming
// input actions as they are produced. The returned Result always carries the
// flow counters, success or failure.
func (x *Executor) RunFlow(ctx context.Context, steps []FlowStep) Result {
	drv := &rodDriver{page: x.page.Context(ctx), timeout: x.cfg.Timeout()}
	flow := RunFlow(drv, x.emit.Emit, steps)

	res := Result{
		"success":                flow.Success,
		"flow_actions_processed": flow.FlowActionsProcessed,
		"input_actions_executed": flow.InputActionsExecuted,
	}
	if flow.Error != "" {
		res["error"] = flow.Error
	}
	x.addDiagnostics(res)
	return res
}

// ParseFlowSteps decodes the JSON-encoded actions array of a run-flow
// invocation.
func ParseFlowSteps(raw string) ([]FlowStep, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("actions parameter is required for run_flow")
	}
	var steps []FlowStep
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, fmt.Errorf("invalid actions JSON: %w", err)
	}
	return steps, nil
}

// CaptureScreenshot writes an optional screenshot for an operation that was
// invoked with the screenshot flag, returning the file path.
func (x *Executor) CaptureScreenshot(ctx context.Context, prefix string) (string, error) {
	return x.capture(ctx, prefix, "")
}

func (x *Executor) capture(ctx context.Context, prefix, selector string) (string, error) {
	page := x.page.Context(ctx)

	var data []byte
	var err error
	if selector != "" {
		var el *rod.Element
		el, err = page.Timeout(x.cfg.Timeout()).Element(selector)
		if err != nil {
			return "", fmt.Errorf("element not found: %s: %w", selector, err)
		}
		data, err = el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	} else {
		data, err = page.Screenshot(false, nil)
	}
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}

	dir := x.cfg.DownloadsDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create downloads directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("browser-%s-%d.png", prefix, time.Now().UnixMilli()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	x.log.Debug("screenshot written", zap.String("path", path))
	return path, nil
}

// addDiagnostics attaches the bounded console and network error slices to a
// result. Applied to every operation, not just flows.
func (x *Executor) addDiagnostics(res Result) {
	if errs := x.diag.ConsoleErrors(maxDiagnostics); len(errs) > 0 {
		res["console_errors"] = errs
	}
	if errs := x.diag.NetworkErrors(maxDiagnostics); len(errs) > 0 {
		res["network_errors"] = errs
	}
}

func (x *Executor) addTitleURL(page *rod.Page, res Result) {
	info, err := page.Info()
	if err != nil {
		x.log.Debug("page info unavailable", zap.Error(err))
		return
	}
	res["title"] = info.Title
	res["url"] = info.URL
}

// formInputs lists named form controls with truncated values.
func (x *Executor) formInputs(page *rod.Page) []map[string]any {
	obj, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => Array.from(document.querySelectorAll('input, textarea, select')).map(el => ({
			type: el.type || el.tagName.toLowerCase(),
			name: el.name || el.id || el.placeholder || null,
			value: el.value ? (el.value.length > 50 ? el.value.substring(0, 50) + '...' : el.value) : null
		})).filter(i => i.name).slice(0, 10)`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil
	}
	raw, err := obj.Value.MarshalJSON()
	if err != nil {
		return nil
	}
	var inputs []map[string]any
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil
	}
	return inputs
}

func elementTexts(page *rod.Page, selector string, limit int) []string {
	els, err := page.Elements(selector)
	if err != nil {
		return nil
	}
	texts := make([]string, 0, limit)
	for _, el := range els {
		if len(texts) >= limit {
			break
		}
		text, err := el.Text()
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// normalizeScript wraps bare expressions so the evaluation protocol always
// receives a function.
func normalizeScript(script string) string {
	t := strings.TrimSpace(script)
	if strings.HasPrefix(t, "function") || strings.HasPrefix(t, "async ") || strings.Contains(t, "=>") {
		return t
	}
	return "() => (" + t + ")"
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
