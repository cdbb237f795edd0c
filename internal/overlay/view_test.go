package overlay

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tarkov-map/tracker/pkg/core"
)

func TestFit_Letterbox(t *testing.T) {
	v := fit(1000, 500, 800, 800)
	assert.InDelta(t, 0.8, v.scale, 1e-9)
	assert.InDelta(t, 0, v.offX, 1e-9)
	assert.InDelta(t, 200, v.offY, 1e-9)

	x, y := v.toScreen(core.Point{X: 500, Y: 250})
	assert.InDelta(t, 400, x, 1e-4)
	assert.InDelta(t, 400, y, 1e-4)
}

func TestFit_Degenerate(t *testing.T) {
	assert.Equal(t, view{scale: 1}, fit(0, 10, 100, 100))
	assert.Equal(t, view{scale: 1}, fit(10, 10, 0, 100))
}

func TestHeadingTip(t *testing.T) {
	x, y := headingTip(10, 10, 0, 5)
	assert.InDelta(t, 10, x, 1e-5)
	assert.InDelta(t, 5, y, 1e-5)

	x, y = headingTip(10, 10, math.Pi/2, 5)
	assert.InDelta(t, 15, x, 1e-5)
	assert.InDelta(t, 10, y, 1e-5)
}

func TestMarkerColor(t *testing.T) {
	assert.Equal(t, freshColor, markerColor(core.TrackedPosition{State: core.StateTracking}))
	assert.Equal(t, staleColor, markerColor(core.TrackedPosition{State: core.StateTracking, Stale: true}))
	assert.Equal(t, lostColor, markerColor(core.TrackedPosition{State: core.StateLost, Stale: true}))
}

func TestStatusLine(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)
	assert.Equal(t, "Customs  no position", statusLine("Customs", core.TrackedPosition{}, false, now))

	p := core.TrackedPosition{
		World:        core.Point{X: 100, Y: 200},
		Confidence:   0.9,
		State:        core.StateTracking,
		Stale:        true,
		Extrapolated: true,
		Timestamp:    now.Add(-500 * time.Millisecond),
	}
	assert.Equal(t, "Customs  extrapolated  x=100 y=200  conf=0.90  age=500ms", statusLine("Customs", p, true, now))
}
