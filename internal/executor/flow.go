package executor

import (
	"fmt"
	"time"
)

// FlowStep is one high-level step of a multi-step automation sequence, as
// supplied by the caller in the run-flow actions array.
type FlowStep struct {
	Action   string `json:"action"`
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Key      string `json:"key,omitempty"`

	Keys []string `json:"keys,omitempty"`

	Anchor    string `json:"anchor,omitempty"`
	Button    string `json:"button,omitempty"`
	Direction string `json:"direction,omitempty"`

	Ms          int `json:"ms,omitempty"`
	TimeoutMs   int `json:"timeout_ms,omitempty"`
	DurationMs  int `json:"duration_ms,omitempty"`
	DelayMs     int `json:"delay_ms,omitempty"`
	WaitAfterMs int `json:"wait_after_ms,omitempty"`
	HoverMs     int `json:"hover_ms,omitempty"`
	Amount      int `json:"amount,omitempty"`
}

// InputAction is one low-level input event expressed in absolute screen
// coordinates (or key codes) for execution by the external input injector.
type InputAction struct {
	Input string `json:"input"`

	X          int    `json:"x,omitempty"`
	Y          int    `json:"y,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`
	Easing     string `json:"easing,omitempty"`

	Ms int `json:"ms,omitempty"`

	Button string `json:"button,omitempty"`

	Text    string `json:"text,omitempty"`
	DelayMs int    `json:"delay_ms,omitempty"`

	DeltaX int `json:"delta_x,omitempty"`
	DeltaY int `json:"delta_y,omitempty"`

	Key  string   `json:"key,omitempty"`
	Keys []string `json:"keys,omitempty"`
}

// FlowResult is the terminal outcome of a flow invocation.
type FlowResult struct {
	Success              bool   `json:"success"`
	Error                string `json:"error,omitempty"`
	FlowActionsProcessed int    `json:"flow_actions_processed"`
	InputActionsExecuted int    `json:"input_actions_executed"`
}

// Stream record types. One InputRecord is emitted per flow step that produces
// input events; ErrorRecord and DoneRecord terminate the stream.
type InputRecord struct {
	Type    string        `json:"type"`
	Actions []InputAction `json:"actions"`
}

type ErrorRecord struct {
	Type             string `json:"type"`
	Message          string `json:"message"`
	ActionsProcessed int    `json:"actions_processed"`
}

type DoneRecord struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

// pageDriver is the slice of page behavior a flow needs. The production
// implementation wraps a rod page; tests substitute a fake.
type pageDriver interface {
	Navigate(url string) error
	WaitVisible(selector string, timeout time.Duration) error
	ScrollIntoView(selector string) error
	ScreenPoint(selector, anchor string) (Point, error)
	Sleep(d time.Duration)
}

// stepPacingBuffer is added after every step's estimated input duration so
// the page has time to react before the next step's element lookups run.
const stepPacingBuffer = 100 * time.Millisecond

// RunFlow executes steps strictly in order, streaming each step's input
// events through emit as they are produced. On step failure it emits an error
// record and a failed done record, then stops; prior steps are not rolled
// back.
func RunFlow(drv pageDriver, emit func(any) error, steps []FlowStep) FlowResult {
	processed := 0
	executed := 0

	for i, step := range steps {
		actions, err := translateStep(drv, step)
		if err != nil {
			msg := fmt.Sprintf("Action %d (%s) failed: %v", i, step.Action, err)
			_ = emit(ErrorRecord{Type: "error", Message: msg, ActionsProcessed: processed})
			_ = emit(DoneRecord{Type: "done", Success: false})
			return FlowResult{
				Success:              false,
				Error:                msg,
				FlowActionsProcessed: processed,
				InputActionsExecuted: executed,
			}
		}

		if len(actions) > 0 {
			_ = emit(InputRecord{Type: "input", Actions: actions})
			executed += len(actions)

			// Pace execution: the injector runs the actions while we wait.
			if d := estimateDuration(actions); d > 0 {
				drv.Sleep(d + stepPacingBuffer)
			}
		}

		processed++
	}

	_ = emit(DoneRecord{Type: "done", Success: true})
	return FlowResult{
		Success:              true,
		FlowActionsProcessed: processed,
		InputActionsExecuted: executed,
	}
}

// translateStep resolves one flow step into zero or more input actions,
// performing any in-page work (navigation, waits, coordinate resolution) as a
// side effect.
func translateStep(drv pageDriver, step FlowStep) ([]InputAction, error) {
	switch step.Action {
	case "goto":
		if err := drv.Navigate(step.URL); err != nil {
			return nil, err
		}
		drv.Sleep(500 * time.Millisecond)
		return nil, nil

	case "wait":
		ms := step.Ms
		if ms <= 0 {
			ms = 1000
		}
		return []InputAction{{Input: "wait", Ms: ms}}, nil

	case "wait_for":
		timeout := time.Duration(step.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return nil, drv.WaitVisible(step.Selector, timeout)

	case "click":
		pt, err := drv.ScreenPoint(step.Selector, anchorOrCenter(step.Anchor))
		if err != nil {
			return nil, fmt.Errorf("failed to get coordinates for %s: %w", step.Selector, err)
		}
		actions := []InputAction{
			moveTo(pt, durationOr(step.DurationMs, 500)),
			{Input: "wait", Ms: 50},
			{Input: "click", Button: buttonOrLeft(step.Button)},
		}
		if step.WaitAfterMs > 0 {
			actions = append(actions, InputAction{Input: "wait", Ms: step.WaitAfterMs})
		}
		return actions, nil

	case "double_click":
		pt, err := drv.ScreenPoint(step.Selector, anchorOrCenter(step.Anchor))
		if err != nil {
			return nil, fmt.Errorf("failed to get coordinates for %s: %w", step.Selector, err)
		}
		return []InputAction{
			moveTo(pt, durationOr(step.DurationMs, 500)),
			{Input: "wait", Ms: 50},
			{Input: "double_click", Button: "left"},
		}, nil

	case "hover":
		pt, err := drv.ScreenPoint(step.Selector, anchorOrCenter(step.Anchor))
		if err != nil {
			return nil, fmt.Errorf("failed to get coordinates for %s: %w", step.Selector, err)
		}
		actions := []InputAction{moveTo(pt, durationOr(step.DurationMs, 500))}
		if step.HoverMs > 0 {
			actions = append(actions, InputAction{Input: "wait", Ms: step.HoverMs})
		}
		return actions, nil

	case "type":
		pt, err := drv.ScreenPoint(step.Selector, "center")
		if err != nil {
			return nil, fmt.Errorf("failed to get coordinates for %s: %w", step.Selector, err)
		}
		return []InputAction{
			moveTo(pt, durationOr(step.DurationMs, 300)),
			{Input: "wait", Ms: 50},
			{Input: "click", Button: "left"},
			{Input: "wait", Ms: 100},
			{Input: "type", Text: step.Text, DelayMs: durationOr(step.DelayMs, 50)},
		}, nil

	case "scroll":
		amount := step.Amount
		if amount <= 0 {
			amount = 300
		}
		deltaY := amount
		if step.Direction == "up" {
			deltaY = -amount
		}
		return []InputAction{{Input: "scroll", DeltaY: deltaY}}, nil

	case "scroll_to":
		if err := drv.ScrollIntoView(step.Selector); err != nil {
			return nil, err
		}
		drv.Sleep(300 * time.Millisecond)
		return nil, nil

	case "key":
		return []InputAction{{Input: "key", Key: step.Key}}, nil

	case "key_combo":
		return []InputAction{{Input: "key_combo", Keys: step.Keys}}, nil

	default:
		return nil, fmt.Errorf("unknown flow action: %s", step.Action)
	}
}

// estimateDuration approximates how long the injector will take to execute a
// batch of input actions, for pacing between steps.
func estimateDuration(actions []InputAction) time.Duration {
	total := 0
	for _, a := range actions {
		switch a.Input {
		case "move":
			if a.DurationMs > 0 {
				total += a.DurationMs
			} else {
				total += 500
			}
		case "wait":
			total += a.Ms
		case "type":
			delay := a.DelayMs
			if delay <= 0 {
				delay = 50
			}
			total += len(a.Text) * delay
		case "click", "double_click":
			total += 100
		default:
			total += 50
		}
	}
	return time.Duration(total) * time.Millisecond
}

func moveTo(pt Point, durationMs int) InputAction {
	return InputAction{Input: "move", X: pt.X, Y: pt.Y, DurationMs: durationMs, Easing: "ease_out"}
}

func anchorOrCenter(anchor string) string {
	if anchor == "" {
		return "center"
	}
	return anchor
}

func buttonOrLeft(button string) string {
	if button == "" {
		return "left"
	}
	return button
}

func durationOr(ms, fallback int) int {
	if ms > 0 {
		return ms
	}
	return fallback
}
