package detect

import (
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"math"
	"os"
	"sort"

	"github.com/tarkov-map/tracker/pkg/core"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// TemplateBank matches a bank of pre-rotated marker templates using
// normalized cross-correlation. A rotation averaged template finds
// candidate locations on a coarse grid; every rotation is then scored in a
// small window around each candidate.
type TemplateBank struct {
	size      int
	step      float64 // radians
	stride    int
	refine    int
	maxPeaks  int
	rotations []nccTemplate
	coarse    nccTemplate
}

// nccTemplate is a zero-mean template with its L2 norm.
type nccTemplate struct {
	w, h int
	px   []float64
	norm float64
}

// NewTemplateBank builds the bank from the configured template image or
// the generated marker.
func NewTemplateBank(cfg Config) (*TemplateBank, error) {
	var base image.Image
	if cfg.TemplatePath != "" {
		img, err := loadTemplate(cfg.TemplatePath)
		if err != nil {
			return nil, err
		}
		base = img
	} else {
		if cfg.MarkerSize < 7 {
			return nil, fmt.Errorf("marker size too small: %d", cfg.MarkerSize)
		}
		base = MarkerTemplate(cfg.MarkerSize|1, DefaultMarkerColor, color.RGBA{A: 255})
	}
	return NewTemplateBankFromImage(base, cfg)
}

func loadTemplate(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening template: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding template %s: %w", path, err)
	}
	return img, nil
}

// NewTemplateBankFromImage rotates base (marker pointing up, centered)
// through a full turn at cfg.AngleStepDeg.
func NewTemplateBankFromImage(base image.Image, cfg Config) (*TemplateBank, error) {
	b := base.Bounds()
	if b.Dx() != b.Dy() {
		return nil, fmt.Errorf("template must be square, got %dx%d", b.Dx(), b.Dy())
	}
	if cfg.AngleStepDeg <= 0 || cfg.AngleStepDeg > 90 {
		return nil, fmt.Errorf("angle step must be in (0,90], got %v", cfg.AngleStepDeg)
	}

	n := int(math.Round(360 / cfg.AngleStepDeg))
	tb := &TemplateBank{
		size:     b.Dx(),
		step:     2 * math.Pi / float64(n),
		stride:   max(cfg.Stride, 1),
		refine:   max(cfg.Stride, 1) + 1,
		maxPeaks: max(cfg.Candidates, 1),
	}

	avg := make([]float64, tb.size*tb.size)
	for i := 0; i < n; i++ {
		rotated := rotate(base, float64(i)*tb.step)
		g := toGray(rotated)
		for j, v := range g.px {
			avg[j] += v / float64(n)
		}
		t, ok := newNCCTemplate(g)
		if !ok {
			return nil, fmt.Errorf("template has no contrast")
		}
		tb.rotations = append(tb.rotations, t)
	}

	coarse, ok := newNCCTemplate(&grayImage{w: tb.size, h: tb.size, px: avg})
	if !ok {
		return nil, fmt.Errorf("template has no contrast")
	}
	tb.coarse = coarse
	return tb, nil
}

// rotate turns src clockwise by angle radians about its center. Uncovered
// corners take the color of the top-left source pixel.
func rotate(src image.Image, angle float64) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(src.At(b.Min.X, b.Min.Y)), image.Point{}, draw.Src)

	sin, cos := math.Sincos(angle)
	cx := float64(b.Dx()) / 2
	cy := float64(b.Dy()) / 2
	ox, oy := float64(b.Min.X), float64(b.Min.Y)
	// dst = R * (src - origin - c) + c
	s2d := f64.Aff3{
		cos, -sin, cx - cos*(ox+cx) + sin*(oy+cy),
		sin, cos, cy - sin*(ox+cx) - cos*(oy+cy),
	}
	draw.BiLinear.Transform(dst, s2d, src, b, draw.Over, nil)
	return dst
}

func newNCCTemplate(g *grayImage) (nccTemplate, bool) {
	var mean float64
	for _, v := range g.px {
		mean += v
	}
	mean /= float64(len(g.px))

	t := nccTemplate{w: g.w, h: g.h, px: make([]float64, len(g.px))}
	var sq float64
	for i, v := range g.px {
		d := v - mean
		t.px[i] = d
		sq += d * d
	}
	t.norm = math.Sqrt(sq)
	return t, t.norm > 1e-9
}

// Name implements Detector.
func (tb *TemplateBank) Name() string { return "template" }

// Angles returns the number of rotations in the bank.
func (tb *TemplateBank) Angles() int { return len(tb.rotations) }

type peak struct {
	x, y  int
	score float64
}

// Detect implements Detector.
func (tb *TemplateBank) Detect(frame *core.CaptureFrame) core.MarkerObservation {
	miss := core.NotFound(frame, tb.Name())
	g := toGray(frame.Image)
	if g.w < tb.size || g.h < tb.size {
		return miss
	}
	in := newIntegral(g)

	peaks := tb.coarsePeaks(g, in)
	if len(peaks) == 0 {
		return miss
	}

	best := peak{score: math.Inf(-1)}
	bestRot := 0
	for _, p := range peaks {
		for r := range tb.rotations {
			for y := p.y - tb.refine; y <= p.y+tb.refine; y++ {
				for x := p.x - tb.refine; x <= p.x+tb.refine; x++ {
					if x < 0 || y < 0 || x+tb.size > g.w || y+tb.size > g.h {
						continue
					}
					s := ncc(g, in, &tb.rotations[r], x, y)
					if s > best.score {
						best = peak{x: x, y: y, score: s}
						bestRot = r
					}
				}
			}
		}
	}
	if best.score <= 0 {
		return miss
	}

	t := &tb.rotations[bestRot]
	dx := tb.subpixel(g, in, t, best, 1, 0)
	dy := tb.subpixel(g, in, t, best, 0, 1)

	n := len(tb.rotations)
	prev := ncc(g, in, &tb.rotations[(bestRot+n-1)%n], best.x, best.y)
	next := ncc(g, in, &tb.rotations[(bestRot+1)%n], best.x, best.y)
	dr := parabolicOffset(prev, best.score, next)

	c := float64(tb.size-1) / 2
	return core.MarkerObservation{
		Found:      true,
		Pixel:      core.Point{X: float64(best.x) + c + dx, Y: float64(best.y) + c + dy},
		Heading:    wrapAngle((float64(bestRot) + dr) * tb.step),
		Confidence: core.ClampConfidence(best.score),
		Source:     tb.Name(),
		Seq:        frame.Seq,
		At:         frame.CapturedAt,
	}
}

func (tb *TemplateBank) coarsePeaks(g *grayImage, in *integral) []peak {
	var peaks []peak
	for y := 0; y+tb.size <= g.h; y += tb.stride {
		for x := 0; x+tb.size <= g.w; x += tb.stride {
			s := ncc(g, in, &tb.coarse, x, y)
			if s > 0 {
				peaks = append(peaks, peak{x: x, y: y, score: s})
			}
		}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].score > peaks[j].score })

	// non-maximum suppression at one template radius
	var kept []peak
	minDist := tb.size / 2
	for _, p := range peaks {
		if len(kept) == tb.maxPeaks {
			break
		}
		near := false
		for _, k := range kept {
			if abs(p.x-k.x) <= minDist && abs(p.y-k.y) <= minDist {
				near = true
				break
			}
		}
		if !near {
			kept = append(kept, p)
		}
	}
	return kept
}

func (tb *TemplateBank) subpixel(g *grayImage, in *integral, t *nccTemplate, p peak, ux, uy int) float64 {
	x0, y0 := p.x-ux, p.y-uy
	x1, y1 := p.x+ux, p.y+uy
	if x0 < 0 || y0 < 0 || x1+tb.size > g.w || y1+tb.size > g.h {
		return 0
	}
	return parabolicOffset(ncc(g, in, t, x0, y0), p.score, ncc(g, in, t, x1, y1))
}

// ncc scores template t against the window with top-left (x, y).
func ncc(g *grayImage, in *integral, t *nccTemplate, x, y int) float64 {
	n := float64(t.w * t.h)
	sum, sum2 := in.window(x, y, t.w, t.h)
	variance := sum2 - sum*sum/n
	if variance <= 1e-9 {
		return 0
	}
	var dot float64
	for ty := 0; ty < t.h; ty++ {
		row := g.px[(y+ty)*g.w+x:]
		tr := t.px[ty*t.w:]
		for tx := 0; tx < t.w; tx++ {
			dot += row[tx] * tr[tx]
		}
	}
	return dot / (math.Sqrt(variance) * t.norm)
}

// parabolicOffset fits a parabola through three equally spaced samples and
// returns the vertex offset from the middle one, within [-0.5, 0.5].
func parabolicOffset(a, b, c float64) float64 {
	den := a - 2*b + c
	if den >= 0 {
		return 0
	}
	off := 0.5 * (a - c) / den
	return math.Max(-0.5, math.Min(0.5, off))
}

func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
