package executor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleMetrics() elementMetrics {
	return elementMetrics{
		X: 100, Y: 200, Width: 80, Height: 40,
		ScreenX: 50, ScreenY: 25,
		OuterWidth: 1296, InnerWidth: 1280,
		OuterHeight: 900, InnerHeight: 800,
	}
}

func TestScreenPoint_Center(t *testing.T) {
	// chrome height = 900-800 = 100, chrome width = (1296-1280)/2 = 8.
	pt, err := screenPoint(sampleMetrics(), "center")
	require.NoError(t, err)
	require.Equal(t, Point{X: 50 + 8 + 100 + 40, Y: 25 + 100 + 200 + 20}, pt)
}

func TestScreenPoint_Anchors(t *testing.T) {
	m := sampleMetrics()
	baseX := 50.0 + 8 + 100
	baseY := 25.0 + 100 + 200

	tests := []struct {
		anchor string
		want   Point
	}{
		{"top-left", Point{X: int(baseX) + 5, Y: int(baseY) + 5}},
		{"top-right", Point{X: int(baseX) + 75, Y: int(baseY) + 5}},
		{"bottom-left", Point{X: int(baseX) + 5, Y: int(baseY) + 35}},
		{"bottom-right", Point{X: int(baseX) + 75, Y: int(baseY) + 35}},
		{"center", Point{X: int(baseX) + 40, Y: int(baseY) + 20}},
		{"", Point{X: int(baseX) + 40, Y: int(baseY) + 20}},
	}
	for _, tt := range tests {
		t.Run(tt.anchor, func(t *testing.T) {
			pt, err := screenPoint(m, tt.anchor)
			require.NoError(t, err)
			require.Equal(t, tt.want, pt)
		})
	}
}

func TestScreenPoint_ZeroSizeElement(t *testing.T) {
	m := sampleMetrics()
	m.Width = 0
	_, err := screenPoint(m, "center")
	require.ErrorIs(t, err, ErrNoSize)

	m = sampleMetrics()
	m.Height = 0
	_, err = screenPoint(m, "center")
	require.ErrorIs(t, err, ErrNoSize)
}

func TestScreenPoint_Rounds(t *testing.T) {
	m := elementMetrics{
		X: 10.4, Y: 20.6, Width: 11, Height: 11,
		ScreenX: 0, ScreenY: 0,
		OuterWidth: 1280, InnerWidth: 1280,
		OuterHeight: 800, InnerHeight: 800,
	}
	pt, err := screenPoint(m, "center")
	require.NoError(t, err)
	// 10.4+5.5=15.9 rounds to 16; 20.6+5.5=26.1 rounds to 26.
	require.Equal(t, Point{X: 16, Y: 26}, pt)
}

func TestAnchorOffset(t *testing.T) {
	x, y := anchorOffset("center", 100, 60)
	require.Equal(t, 50.0, x)
	require.Equal(t, 30.0, y)

	x, y = anchorOffset("bottom-right", 100, 60)
	require.Equal(t, 95.0, x)
	require.Equal(t, 55.0, y)
}
