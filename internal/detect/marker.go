package detect

import (
	"image"
	"image/color"
	"math"

	"github.com/tarkov-map/tracker/pkg/core"
)

// markerShape is a triangle in marker units, centroid at the origin,
// tip pointing up (heading 0).
var markerShape = [3]core.Point{
	{X: 0, Y: -1},
	{X: 0.6, Y: 0.5},
	{X: -0.6, Y: 0.5},
}

// markerArea is the area of markerShape for a unit radius.
const markerArea = 0.9

// DefaultMarkerColor is the fill used by the generated marker.
var DefaultMarkerColor = color.RGBA{R: 235, G: 205, B: 40, A: 255}

// DrawMarker paints the marker at center (in img coordinates) with radius r
// rotated clockwise by heading radians, using 4x4 supersampling.
func DrawMarker(img *image.RGBA, center core.Point, r, heading float64, fill color.RGBA) {
	sin, cos := math.Sincos(heading)
	var tri [3]core.Point
	for i, p := range markerShape {
		tri[i] = core.Point{
			X: center.X + r*(cos*p.X-sin*p.Y),
			Y: center.Y + r*(sin*p.X+cos*p.Y),
		}
	}

	minX, maxX := math.Floor(math.Min(tri[0].X, math.Min(tri[1].X, tri[2].X))), math.Ceil(math.Max(tri[0].X, math.Max(tri[1].X, tri[2].X)))
	minY, maxY := math.Floor(math.Min(tri[0].Y, math.Min(tri[1].Y, tri[2].Y))), math.Ceil(math.Max(tri[0].Y, math.Max(tri[1].Y, tri[2].Y)))
	b := img.Bounds()

	const ss = 4
	for y := int(minY); y <= int(maxY); y++ {
		for x := int(minX); x <= int(maxX); x++ {
			if !(image.Point{X: x, Y: y}).In(b) {
				continue
			}
			hits := 0
			for sy := 0; sy < ss; sy++ {
				for sx := 0; sx < ss; sx++ {
					p := core.Point{
						X: float64(x) + (float64(sx)+0.5)/ss - 0.5,
						Y: float64(y) + (float64(sy)+0.5)/ss - 0.5,
					}
					if inTriangle(p, tri) {
						hits++
					}
				}
			}
			if hits == 0 {
				continue
			}
			a := float64(hits) / (ss * ss)
			bg := img.RGBAAt(x, y)
			img.SetRGBA(x, y, color.RGBA{
				R: blend(bg.R, fill.R, a),
				G: blend(bg.G, fill.G, a),
				B: blend(bg.B, fill.B, a),
				A: 255,
			})
		}
	}
}

func blend(bg, fg uint8, a float64) uint8 {
	return uint8(math.Round(float64(bg)*(1-a) + float64(fg)*a))
}

func inTriangle(p core.Point, t [3]core.Point) bool {
	d1 := cross(p, t[0], t[1])
	d2 := cross(p, t[1], t[2])
	d3 := cross(p, t[2], t[0])
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

func cross(p, a, b core.Point) float64 {
	return (p.X-b.X)*(a.Y-b.Y) - (a.X-b.X)*(p.Y-b.Y)
}

// MarkerTemplate renders the marker pointing up on a flat background.
// The marker centroid sits at the image center.
func MarkerTemplate(size int, fill, background color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = background.R, background.G, background.B, 255
	}
	c := float64(size-1) / 2
	DrawMarker(img, core.Point{X: c, Y: c}, markerRadius(size), 0, fill)
	return img
}

// markerRadius keeps the rotated triangle inside the template square.
func markerRadius(size int) float64 {
	return float64(size) * 0.42
}
