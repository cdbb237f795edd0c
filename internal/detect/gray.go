package detect

import (
	"image"
	"image/color"
	"math"
)

// grayImage is a float luminance buffer in [0,255].
type grayImage struct {
	w, h int
	px   []float64
}

func (g *grayImage) at(x, y int) float64 { return g.px[y*g.w+x] }

// toGray converts img using Y = 0.299*R + 0.587*G + 0.114*B.
func toGray(img image.Image) *grayImage {
	b := img.Bounds()
	g := &grayImage{w: b.Dx(), h: b.Dy(), px: make([]float64, b.Dx()*b.Dy())}
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < g.h; y++ {
			row := rgba.Pix[(y+b.Min.Y-rgba.Rect.Min.Y)*rgba.Stride:]
			for x := 0; x < g.w; x++ {
				i := (x + b.Min.X - rgba.Rect.Min.X) * 4
				g.px[y*g.w+x] = 0.299*float64(row[i]) + 0.587*float64(row[i+1]) + 0.114*float64(row[i+2])
			}
		}
		return g
	}
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			r, gg, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			g.px[y*g.w+x] = 0.299*float64(r>>8) + 0.587*float64(gg>>8) + 0.114*float64(bb>>8)
		}
	}
	return g
}

// integral holds summed area tables of values and squared values.
type integral struct {
	w    int
	sum  []float64
	sum2 []float64
}

func newIntegral(g *grayImage) *integral {
	w := g.w + 1
	in := &integral{w: w, sum: make([]float64, w*(g.h+1)), sum2: make([]float64, w*(g.h+1))}
	for y := 0; y < g.h; y++ {
		var rs, rs2 float64
		for x := 0; x < g.w; x++ {
			v := g.at(x, y)
			rs += v
			rs2 += v * v
			in.sum[(y+1)*w+x+1] = in.sum[y*w+x+1] + rs
			in.sum2[(y+1)*w+x+1] = in.sum2[y*w+x+1] + rs2
		}
	}
	return in
}

// window returns the sum and squared sum over [x, x+tw) x [y, y+th).
func (in *integral) window(x, y, tw, th int) (float64, float64) {
	a, b := y*in.w+x, y*in.w+x+tw
	c, d := (y+th)*in.w+x, (y+th)*in.w+x+tw
	return in.sum[d] - in.sum[b] - in.sum[c] + in.sum[a],
		in.sum2[d] - in.sum2[b] - in.sum2[c] + in.sum2[a]
}

// hsv returns hue [0,360), saturation and value [0,1].
func hsv(c color.RGBA) (float64, float64, float64) {
	fr, fg, fb := float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0

	maxC := math.Max(fr, math.Max(fg, fb))
	minC := math.Min(fr, math.Min(fg, fb))
	delta := maxC - minC

	var h float64
	switch {
	case delta == 0:
		h = 0
	case maxC == fr:
		h = 60 * math.Mod((fg-fb)/delta, 6)
	case maxC == fg:
		h = 60 * ((fb-fr)/delta + 2)
	default:
		h = 60 * ((fr-fg)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	s := 0.0
	if maxC != 0 {
		s = delta / maxC
	}
	return h, s, maxC
}

// hueDiff is the circular distance between two hues in degrees.
func hueDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// otsuThreshold picks the cut maximising between-class variance of a
// 256 bin histogram.
func otsuThreshold(histogram [256]int) int {
	total := 0
	var totalSum float64
	for i, n := range histogram {
		total += n
		totalSum += float64(i) * float64(n)
	}
	if total == 0 {
		return 128
	}

	var sumBackground, maxVariance float64
	var weightBackground int
	best := 0
	for t := 0; t < 256; t++ {
		weightBackground += histogram[t]
		if weightBackground == 0 {
			continue
		}
		weightForeground := total - weightBackground
		if weightForeground == 0 {
			break
		}
		sumBackground += float64(t) * float64(histogram[t])

		meanBackground := sumBackground / float64(weightBackground)
		meanForeground := (totalSum - sumBackground) / float64(weightForeground)
		variance := float64(weightBackground) * float64(weightForeground) *
			(meanBackground - meanForeground) * (meanBackground - meanForeground)
		if variance > maxVariance {
			maxVariance = variance
			best = t
		}
	}
	return best
}
