package detect

import (
	"fmt"
	"image"
	"math"

	"github.com/tarkov-map/tracker/pkg/core"
)

// Signature finds the marker by its colour: pixels inside the hue band
// are grouped into blobs, the largest blob's centroid is the position and
// the direction to its farthest pixel is the heading.
type Signature struct {
	hue, hueTol      float64
	minSat, minValue float64
	autoValue        bool
	radius           float64
	expectedArea     float64
}

// NewSignature builds a colour signature detector.
func NewSignature(cfg Config) (*Signature, error) {
	if cfg.MarkerSize < 5 {
		return nil, fmt.Errorf("marker size too small: %d", cfg.MarkerSize)
	}
	if cfg.HueTolerance <= 0 || cfg.HueTolerance > 180 {
		return nil, fmt.Errorf("hue tolerance must be in (0,180], got %v", cfg.HueTolerance)
	}
	r := markerRadius(cfg.MarkerSize | 1)
	return &Signature{
		hue:          cfg.MarkerHue,
		hueTol:       cfg.HueTolerance,
		minSat:       cfg.MinSaturation,
		minValue:     cfg.MinValue,
		autoValue:    cfg.AutoValue,
		radius:       r,
		expectedArea: markerArea * r * r,
	}, nil
}

// Name implements Detector.
func (s *Signature) Name() string { return "signature" }

// Detect implements Detector.
func (s *Signature) Detect(frame *core.CaptureFrame) core.MarkerObservation {
	miss := core.NotFound(frame, s.Name())
	img := frame.Image
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return miss
	}

	minValue := s.minValue
	if s.autoValue {
		minValue = math.Max(minValue, float64(otsuThreshold(valueHistogram(img)))/255)
	}

	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hh, ss, vv := hsv(img.RGBAAt(b.Min.X+x, b.Min.Y+y))
			mask[y*w+x] = ss >= s.minSat && vv >= minValue && hueDiff(hh, s.hue) <= s.hueTol
		}
	}

	blob := largestBlob(mask, w, h)
	if len(blob) == 0 {
		return miss
	}

	var cx, cy float64
	for _, i := range blob {
		cx += float64(i % w)
		cy += float64(i / w)
	}
	cx /= float64(len(blob))
	cy /= float64(len(blob))

	var tipX, tipY, tipDist float64
	for _, i := range blob {
		dx, dy := float64(i%w)-cx, float64(i/w)-cy
		if d := math.Hypot(dx, dy); d > tipDist {
			tipDist, tipX, tipY = d, dx, dy
		}
	}
	if tipDist == 0 {
		return miss
	}

	area := float64(len(blob))
	areaScore := math.Min(area, s.expectedArea) / math.Max(area, s.expectedArea)
	// the tip pixel center sits up to half a pixel inside the true tip
	expectedTip := math.Max(s.radius-0.5, 1)
	tipScore := math.Min(tipDist, expectedTip) / math.Max(tipDist, expectedTip)

	return core.MarkerObservation{
		Found:      true,
		Pixel:      core.Point{X: cx, Y: cy},
		Heading:    math.Atan2(tipX, -tipY),
		Confidence: core.ClampConfidence(areaScore * tipScore),
		Source:     s.Name(),
		Seq:        frame.Seq,
		At:         frame.CapturedAt,
	}
}

func valueHistogram(img *image.RGBA) [256]int {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			hist[max(c.R, c.G, c.B)]++
		}
	}
	return hist
}

// largestBlob returns the pixel indices of the biggest 4-connected region.
func largestBlob(mask []bool, w, h int) []int {
	seen := make([]bool, len(mask))
	var best []int
	stack := make([]int, 0, 64)

	for start := range mask {
		if !mask[start] || seen[start] {
			continue
		}
		var blob []int
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			blob = append(blob, i)
			x, y := i%w, i/w
			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if n[0] < 0 || n[1] < 0 || n[0] >= w || n[1] >= h {
					continue
				}
				j := n[1]*w + n[0]
				if mask[j] && !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		if len(blob) > len(best) {
			best = blob
		}
	}
	return best
}
