// Package report renders a recorded session as a path plot.
package report

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/tarkov-map/tracker/internal/maps"
	"github.com/tarkov-map/tracker/internal/storage/memory"
	"github.com/tarkov-map/tracker/pkg/core"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	pathColor        = color.RGBA{R: 30, G: 110, B: 220, A: 255}
	extrapolateColor = color.RGBA{R: 240, G: 160, B: 20, A: 255}
	lostColor        = color.RGBA{R: 210, G: 40, B: 40, A: 255}
	spawnColor       = color.RGBA{R: 40, G: 160, B: 60, A: 255}
	extractColor     = color.RGBA{R: 120, G: 40, B: 180, A: 255}
)

// Options controls the rendered plot.
type Options struct {
	Width, Height vg.Length
	Annotations   []maps.Annotation
}

// DefaultOptions renders a 20cm square.
func DefaultOptions() Options {
	return Options{Width: 20 * vg.Centimeter, Height: 20 * vg.Centimeter}
}

// Segments splits fresh positions into continuous runs. A run ends at a
// non-fresh position or an epoch change.
func Segments(positions []core.TrackedPosition) [][]core.Point {
	var out [][]core.Point
	var run []core.Point
	var epoch uint64
	flush := func() {
		if len(run) > 0 {
			out = append(out, run)
			run = nil
		}
	}
	for _, p := range positions {
		fresh := p.State == core.StateTracking && !p.Stale
		if !fresh || (len(run) > 0 && p.Epoch != epoch) {
			flush()
		}
		if fresh {
			run = append(run, p.World)
			epoch = p.Epoch
		}
	}
	flush()
	return out
}

// Build assembles the plot for exp.
func Build(exp *memory.Export, opts Options) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title(exp)
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	// map image space has y growing downwards
	p.Y.Scale = plot.InvertedScale{Normalizer: p.Y.Scale}
	p.Add(plotter.NewGrid())

	for i, seg := range Segments(exp.Positions) {
		line, err := plotter.NewLine(toXYs(seg))
		if err != nil {
			return nil, fmt.Errorf("path segment: %w", err)
		}
		line.LineStyle.Color = pathColor
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		if i == 0 {
			p.Legend.Add("path", line)
		}
	}

	var extrapolated, lost []core.Point
	for _, pos := range exp.Positions {
		switch {
		case pos.State == core.StateLost:
			lost = append(lost, pos.World)
		case pos.Extrapolated:
			extrapolated = append(extrapolated, pos.World)
		}
	}
	if err := addScatter(p, "extrapolated", extrapolated, extrapolateColor, draw.CircleGlyph{}); err != nil {
		return nil, err
	}
	if err := addScatter(p, "lost", lost, lostColor, draw.CrossGlyph{}); err != nil {
		return nil, err
	}

	var spawns, extracts []core.Point
	var labels plotter.XYLabels
	for _, a := range opts.Annotations {
		switch a.Kind {
		case "spawn":
			spawns = append(spawns, a.World)
		case "extract":
			extracts = append(extracts, a.World)
			labels.XYs = append(labels.XYs, plotter.XY{X: a.World.X, Y: a.World.Y})
			labels.Labels = append(labels.Labels, a.Name)
		}
	}
	if err := addScatter(p, "spawn", spawns, spawnColor, draw.TriangleGlyph{}); err != nil {
		return nil, err
	}
	if err := addScatter(p, "extract", extracts, extractColor, draw.SquareGlyph{}); err != nil {
		return nil, err
	}
	if len(labels.Labels) > 0 {
		l, err := plotter.NewLabels(labels)
		if err != nil {
			return nil, fmt.Errorf("labels: %w", err)
		}
		p.Add(l)
	}
	return p, nil
}

// Render builds the plot and saves it to out. The format follows the
// file extension (png, svg, pdf, ...).
func Render(exp *memory.Export, out string, opts Options) error {
	p, err := Build(exp, opts)
	if err != nil {
		return err
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		d := DefaultOptions()
		opts.Width, opts.Height = d.Width, d.Height
	}
	if err := p.Save(opts.Width, opts.Height, out); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}

// Describe returns a short text summary of the session.
func Describe(exp *memory.Export) string {
	var b strings.Builder
	s := exp.Session
	fmt.Fprintf(&b, "session %s\n", s.ID)
	fmt.Fprintf(&b, "map       %s\n", mapLabel(s))
	fmt.Fprintf(&b, "detector  %s\n", s.Detector)
	fmt.Fprintf(&b, "started   %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "duration  %s\n", time.Duration(exp.Summary.Duration*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(&b, "path      %.1f\n", exp.Summary.PathLength)
	fmt.Fprintf(&b, "positions %d (fresh %d, extrapolated %d, lost %d)\n",
		exp.Summary.Positions, exp.Summary.Fresh, exp.Summary.Extrapolated, exp.Summary.Lost)
	fmt.Fprintf(&b, "events    %d\n", len(exp.Events))
	return b.String()
}

func title(exp *memory.Export) string {
	return fmt.Sprintf("%s %s", mapLabel(exp.Session), exp.Session.StartedAt.Format("2006-01-02 15:04"))
}

func mapLabel(s core.Session) string {
	if s.MapName != "" {
		return s.MapName
	}
	return s.MapID
}

func addScatter(p *plot.Plot, name string, pts []core.Point, c color.Color, shape draw.GlyphDrawer) error {
	if len(pts) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(toXYs(pts))
	if err != nil {
		return fmt.Errorf("%s points: %w", name, err)
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = shape
	s.GlyphStyle.Radius = vg.Points(3)
	p.Add(s)
	p.Legend.Add(name, s)
	return nil
}

func toXYs(pts []core.Point) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		xys[i].X, xys[i].Y = pt.X, pt.Y
	}
	return xys
}
