package executor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
)

// metricsJS probes an element's viewport rect and the window geometry needed
// to translate it to absolute screen coordinates.
const metricsJS = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return null;
	const r = el.getBoundingClientRect();
	return {
		x: r.x, y: r.y, width: r.width, height: r.height,
		screenX: window.screenX, screenY: window.screenY,
		outerWidth: window.outerWidth, innerWidth: window.innerWidth,
		outerHeight: window.outerHeight, innerHeight: window.innerHeight
	};
}`

// rodDriver implements pageDriver over a live rod page.
type rodDriver struct {
	page    *rod.Page
	timeout time.Duration
}

func (d *rodDriver) Navigate(url string) error {
	page := d.page.Timeout(d.timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return nil
}

func (d *rodDriver) WaitVisible(selector string, timeout time.Duration) error {
	el, err := d.page.Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait for %s to become visible: %w", selector, err)
	}
	return nil
}

func (d *rodDriver) ScrollIntoView(selector string) error {
	el, err := d.page.Timeout(5 * time.Second).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found or not scrollable: %s: %w", selector, err)
	}
	return el.ScrollIntoView()
}

// ScreenPoint scrolls the element into view, lets the scroll settle, then
// resolves the element to an absolute screen coordinate.
func (d *rodDriver) ScreenPoint(selector, anchor string) (Point, error) {
	if err := d.ScrollIntoView(selector); err != nil {
		return Point{}, err
	}
	d.Sleep(100 * time.Millisecond)

	obj, err := d.page.Evaluate(&rod.EvalOptions{
		JS:           metricsJS,
		JSArgs:       []interface{}{selector},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return Point{}, fmt.Errorf("probe element %s: %w", selector, err)
	}
	if obj.Value.Nil() {
		return Point{}, fmt.Errorf("element not found: %s", selector)
	}

	raw, err := obj.Value.MarshalJSON()
	if err != nil {
		return Point{}, fmt.Errorf("decode element metrics: %w", err)
	}
	var m elementMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return Point{}, fmt.Errorf("decode element metrics: %w", err)
	}
	return screenPoint(m, anchor)
}

func (d *rodDriver) Sleep(dur time.Duration) {
	time.Sleep(dur)
}
