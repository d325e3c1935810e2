package executor

import (
	"errors"
	"math"
)

// Point is an absolute screen coordinate handed to the OS-level input
// injector.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ErrNoSize is returned when a target element has zero rendered width or
// height, typically because it is hidden or collapsed.
var ErrNoSize = errors.New("element has no size (hidden or collapsed)")

// elementMetrics is the in-page probe result: the element's viewport-relative
// bounding rect plus the window geometry needed to translate it to screen
// coordinates.
type elementMetrics struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	ScreenX float64 `json:"screenX"`
	ScreenY float64 `json:"screenY"`

	OuterWidth  float64 `json:"outerWidth"`
	InnerWidth  float64 `json:"innerWidth"`
	OuterHeight float64 `json:"outerHeight"`
	InnerHeight float64 `json:"innerHeight"`
}

// anchorInset keeps corner anchors a few pixels inside the element edge.
const anchorInset = 5

// anchorOffset returns the click point within an element of the given size.
func anchorOffset(anchor string, width, height float64) (float64, float64) {
	switch anchor {
	case "top-left":
		return anchorInset, anchorInset
	case "top-right":
		return width - anchorInset, anchorInset
	case "bottom-left":
		return anchorInset, height - anchorInset
	case "bottom-right":
		return width - anchorInset, height - anchorInset
	default: // center
		return width / 2, height / 2
	}
}

// screenPoint combines the element rect, the window's screen position, and
// the browser chrome insets into an absolute screen coordinate. Input events
// are injected at the OS level, outside the page, so in-page coordinates are
// not enough. The vertical chrome (tabs, toolbars, bookmark bar) is the full
// outer/inner height difference; horizontal chrome is assumed to be a window
// frame split evenly between both sides.
func screenPoint(m elementMetrics, anchor string) (Point, error) {
	if m.Width == 0 || m.Height == 0 {
		return Point{}, ErrNoSize
	}

	chromeHeight := m.OuterHeight - m.InnerHeight
	chromeWidth := (m.OuterWidth - m.InnerWidth) / 2

	offX, offY := anchorOffset(anchor, m.Width, m.Height)

	return Point{
		X: int(math.Round(m.ScreenX + chromeWidth + m.X + offX)),
		Y: int(math.Round(m.ScreenY + chromeHeight + m.Y + offY)),
	}, nil
}
