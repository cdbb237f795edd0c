// Package overlay is a debug window drawing the map, its annotations and
// the tracked marker. It polls the position source on every frame.
package overlay

import (
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/tarkov-map/tracker/internal/maps"
	"github.com/tarkov-map/tracker/pkg/core"
)

// Source is the position poll API.
type Source interface {
	Latest(now time.Time) (core.TrackedPosition, bool)
}

// Config describes the window.
type Config struct {
	Title  string
	Width  int
	Height int
	// MapImage is optional; without it a blank canvas of the map's
	// image size is used.
	MapImage string
}

// Overlay implements ebiten.Game.
type Overlay struct {
	cfg         Config
	source      Source
	mapName     string
	imgW, imgH  float64
	background  *ebiten.Image
	annotations []maps.Annotation

	winW, winH int
	trail      []core.Point
}

const trailLength = 200

// New prepares the overlay for m.
func New(cfg Config, m *core.Map, source Source) (*Overlay, error) {
	o := &Overlay{
		cfg:         cfg,
		source:      source,
		mapName:     m.Name,
		imgW:        m.ImageSize[0],
		imgH:        m.ImageSize[1],
		annotations: maps.Annotations(m),
	}
	if cfg.MapImage != "" {
		img, _, err := ebitenutil.NewImageFromFile(cfg.MapImage)
		if err != nil {
			return nil, fmt.Errorf("loading map image: %w", err)
		}
		b := img.Bounds()
		o.background = img
		o.imgW, o.imgH = float64(b.Dx()), float64(b.Dy())
	}
	if o.imgW <= 0 || o.imgH <= 0 {
		return nil, fmt.Errorf("map %q has no image size", m.NormalizedName)
	}
	return o, nil
}

// Run opens the window and blocks until it is closed. It must be called
// from the main goroutine.
func (o *Overlay) Run() error {
	ebiten.SetWindowSize(o.cfg.Width, o.cfg.Height)
	ebiten.SetWindowTitle(o.cfg.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(o)
}

// Update implements ebiten.Game.
func (o *Overlay) Update() error {
	if pos, ok := o.source.Latest(time.Now()); ok && pos.State == core.StateTracking && !pos.Stale {
		if n := len(o.trail); n == 0 || o.trail[n-1] != pos.World {
			o.trail = append(o.trail, pos.World)
			if len(o.trail) > trailLength {
				o.trail = o.trail[len(o.trail)-trailLength:]
			}
		}
	}
	return nil
}

// Draw implements ebiten.Game.
func (o *Overlay) Draw(screen *ebiten.Image) {
	v := fit(o.imgW, o.imgH, o.winW, o.winH)

	if o.background != nil {
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(v.scale, v.scale)
		op.GeoM.Translate(v.offX, v.offY)
		op.Filter = ebiten.FilterLinear
		screen.DrawImage(o.background, op)
	} else {
		x, y := v.toScreen(core.Point{})
		vector.StrokeRect(screen, x, y, float32(o.imgW*v.scale), float32(o.imgH*v.scale), 1, labelColor, false)
	}

	for _, a := range o.annotations {
		x, y := v.toScreen(a.World)
		c := annotationColor(a.Kind)
		if a.Kind == "label" {
			ebitenutil.DebugPrintAt(screen, a.Name, int(x), int(y))
			continue
		}
		vector.DrawFilledCircle(screen, x, y, 4, c, true)
	}

	for i := 1; i < len(o.trail); i++ {
		x0, y0 := v.toScreen(o.trail[i-1])
		x1, y1 := v.toScreen(o.trail[i])
		vector.StrokeLine(screen, x0, y0, x1, y1, 2, freshColor, true)
	}

	now := time.Now()
	pos, ok := o.source.Latest(now)
	if ok {
		x, y := v.toScreen(pos.World)
		c := markerColor(pos)
		vector.DrawFilledCircle(screen, x, y, 6, c, true)
		tx, ty := headingTip(x, y, pos.WorldHeading, 16)
		vector.StrokeLine(screen, x, y, tx, ty, 2, c, true)
	}
	ebitenutil.DebugPrintAt(screen, statusLine(o.mapName, pos, ok, now), 8, 8)
}

// Layout implements ebiten.Game.
func (o *Overlay) Layout(outsideWidth, outsideHeight int) (int, int) {
	o.winW, o.winH = outsideWidth, outsideHeight
	return outsideWidth, outsideHeight
}
