package overlay

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/tarkov-map/tracker/pkg/core"
)

// view maps map-image coordinates into the window, preserving aspect.
type view struct {
	scale      float64
	offX, offY float64
}

// fit centres an imgW x imgH image inside a winW x winH window.
func fit(imgW, imgH float64, winW, winH int) view {
	if imgW <= 0 || imgH <= 0 || winW <= 0 || winH <= 0 {
		return view{scale: 1}
	}
	s := math.Min(float64(winW)/imgW, float64(winH)/imgH)
	return view{
		scale: s,
		offX:  (float64(winW) - imgW*s) / 2,
		offY:  (float64(winH) - imgH*s) / 2,
	}
}

func (v view) toScreen(p core.Point) (float32, float32) {
	return float32(p.X*v.scale + v.offX), float32(p.Y*v.scale + v.offY)
}

// headingTip is the end of a length-r arrow from (x, y) along heading
// (0 up, clockwise).
func headingTip(x, y float32, heading float64, r float32) (float32, float32) {
	sin, cos := math.Sincos(heading)
	return x + r*float32(sin), y - r*float32(cos)
}

var (
	freshColor   = color.RGBA{R: 60, G: 220, B: 90, A: 255}
	staleColor   = color.RGBA{R: 240, G: 170, B: 30, A: 255}
	lostColor    = color.RGBA{R: 220, G: 50, B: 50, A: 255}
	spawnColor   = color.RGBA{R: 80, G: 200, B: 255, A: 200}
	extractColor = color.RGBA{R: 200, G: 90, B: 255, A: 200}
	labelColor   = color.RGBA{R: 220, G: 220, B: 220, A: 160}
)

func markerColor(p core.TrackedPosition) color.RGBA {
	switch {
	case p.State == core.StateLost:
		return lostColor
	case p.Stale:
		return staleColor
	default:
		return freshColor
	}
}

func annotationColor(kind string) color.RGBA {
	switch kind {
	case "spawn":
		return spawnColor
	case "extract":
		return extractColor
	default:
		return labelColor
	}
}

// statusLine is the text drawn in the top-left corner.
func statusLine(mapName string, p core.TrackedPosition, ok bool, now time.Time) string {
	if !ok {
		return fmt.Sprintf("%s  no position", mapName)
	}
	age := now.Sub(p.Timestamp).Round(100 * time.Millisecond)
	return fmt.Sprintf("%s  %s  x=%.0f y=%.0f  conf=%.2f  age=%s",
		mapName, stateLabel(p), p.World.X, p.World.Y, p.Confidence, age)
}

func stateLabel(p core.TrackedPosition) string {
	switch {
	case p.State == core.StateLost:
		return "lost"
	case p.Extrapolated:
		return "extrapolated"
	case p.Stale:
		return "stale"
	default:
		return p.State.String()
	}
}
