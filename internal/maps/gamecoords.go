package maps

import (
	"math"

	"github.com/tarkov-map/tracker/pkg/core"
)

// rotatePoint rotates (x, y) counter-clockwise by deg degrees.
func rotatePoint(p core.Point, deg float64) core.Point {
	if deg == 0 {
		return p
	}
	sin, cos := math.Sincos(deg * math.Pi / 180)
	return core.Point{X: p.X*cos - p.Y*sin, Y: p.X*sin + p.Y*cos}
}

// usesTransform reports whether m maps through its SVG transform rather
// than its bounds. Only 270 degree maps carry the padding the transform
// accounts for.
func usesTransform(m *core.Map) bool {
	return m.Rotation() == 270 && m.Transform != nil && m.ImageSize[0] > 0 && m.ImageSize[1] > 0
}

// rotatedBounds returns the extent of the map bounds after rotation.
func rotatedBounds(m *core.Map) (minX, minY, maxX, maxY float64) {
	b := m.Bounds
	corners := [4]core.Point{
		{X: b[0][0], Y: b[0][1]},
		{X: b[0][0], Y: b[1][1]},
		{X: b[1][0], Y: b[0][1]},
		{X: b[1][0], Y: b[1][1]},
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		r := rotatePoint(c, m.Rotation())
		minX, maxX = math.Min(minX, r.X), math.Max(maxX, r.X)
		minY, maxY = math.Min(minY, r.Y), math.Max(maxY, r.Y)
	}
	return minX, minY, maxX, maxY
}

// GameToImage projects a game position (x, z) into map image pixels.
// It returns false when the map carries neither bounds nor a usable
// transform.
func GameToImage(m *core.Map, game core.Point) (core.Point, bool) {
	r := rotatePoint(game, m.Rotation())

	if usesTransform(m) {
		t := m.Transform
		return core.Point{
			X: t[0]*r.X + t[1],
			Y: -t[2]*r.Y + t[3],
		}, true
	}

	if m.Bounds == nil || m.ImageSize[0] <= 0 || m.ImageSize[1] <= 0 {
		return core.Point{}, false
	}
	minX, minY, maxX, maxY := rotatedBounds(m)
	w, h := maxX-minX, maxY-minY
	if w == 0 || h == 0 {
		return core.Point{}, false
	}
	return core.Point{
		X: (r.X - minX) / w * m.ImageSize[0],
		Y: (maxY - r.Y) / h * m.ImageSize[1],
	}, true
}

// ImageToGame is the inverse of GameToImage.
func ImageToGame(m *core.Map, img core.Point) (core.Point, bool) {
	var r core.Point
	switch {
	case usesTransform(m):
		t := m.Transform
		if t[0] == 0 || t[2] == 0 {
			return core.Point{}, false
		}
		r = core.Point{X: (img.X - t[1]) / t[0], Y: (img.Y - t[3]) / -t[2]}
	case m.Bounds != nil && m.ImageSize[0] > 0 && m.ImageSize[1] > 0:
		minX, minY, maxX, maxY := rotatedBounds(m)
		r = core.Point{
			X: minX + img.X/m.ImageSize[0]*(maxX-minX),
			Y: maxY - img.Y/m.ImageSize[1]*(maxY-minY),
		}
	default:
		return core.Point{}, false
	}
	return rotatePoint(r, -m.Rotation()), true
}

// GameHeadingToImage converts a game yaw (radians, clockwise from the
// game's +z axis when viewed from above) into an image heading (0 = up,
// clockwise positive).
func GameHeadingToImage(m *core.Map, yaw float64) (float64, bool) {
	origin, ok := GameToImage(m, core.Point{})
	if !ok {
		return 0, false
	}
	sin, cos := math.Sincos(yaw)
	tip, _ := GameToImage(m, core.Point{X: sin, Y: cos})
	d := tip.Sub(origin)
	if d.X == 0 && d.Y == 0 {
		return 0, false
	}
	return math.Atan2(d.X, -d.Y), true
}

// Annotation is a named point of interest in image space.
type Annotation struct {
	Kind  string // "spawn", "extract" or "label"
	Name  string
	World core.Point
}

// Annotations projects the map's spawns, extracts and labels into image
// space, skipping entries without a position.
func Annotations(m *core.Map) []Annotation {
	var out []Annotation
	for _, s := range m.Spawns {
		if p, ok := GameToImage(m, core.Point{X: s.Position[0], Y: s.Position[2]}); ok {
			name := "spawn"
			if len(s.Sides) > 0 {
				name = s.Sides[0]
			}
			out = append(out, Annotation{Kind: "spawn", Name: name, World: p})
		}
	}
	for _, e := range m.Extracts {
		if e.Position == nil {
			continue
		}
		if p, ok := GameToImage(m, core.Point{X: e.Position[0], Y: e.Position[2]}); ok {
			out = append(out, Annotation{Kind: "extract", Name: e.Name, World: p})
		}
	}
	for _, l := range m.Labels {
		if p, ok := GameToImage(m, core.Point{X: l.Position[0], Y: l.Position[1]}); ok {
			out = append(out, Annotation{Kind: "label", Name: l.Text, World: p})
		}
	}
	return out
}
