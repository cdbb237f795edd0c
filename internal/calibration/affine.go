package calibration

import (
	"math"

	"github.com/tarkov-map/tracker/pkg/core"
)

// Affine maps p to (A*x + B*y + C, D*x + E*y + F).
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity is the identity transform.
var Identity = Affine{A: 1, E: 1}

// Apply transforms a point.
func (t Affine) Apply(p core.Point) core.Point {
	return core.Point{
		X: t.A*p.X + t.B*p.Y + t.C,
		Y: t.D*p.X + t.E*p.Y + t.F,
	}
}

// ApplyVector transforms a direction, ignoring translation.
func (t Affine) ApplyVector(v core.Point) core.Point {
	return core.Point{
		X: t.A*v.X + t.B*v.Y,
		Y: t.D*v.X + t.E*v.Y,
	}
}

// Det returns the determinant of the linear part.
func (t Affine) Det() float64 {
	return t.A*t.E - t.B*t.D
}

// Inverse returns the inverse transform. ok is false when t is singular.
func (t Affine) Inverse() (Affine, bool) {
	det := t.Det()
	if math.Abs(det) < singularEpsilon || math.IsNaN(det) || math.IsInf(det, 0) {
		return Affine{}, false
	}
	ia := t.E / det
	ib := -t.B / det
	id := -t.D / det
	ie := t.A / det
	return Affine{
		A: ia, B: ib, C: -(ia*t.C + ib*t.F),
		D: id, E: ie, F: -(id*t.C + ie*t.F),
	}, true
}

// Compose returns the transform that applies u after t.
func (t Affine) Compose(u Affine) Affine {
	return Affine{
		A: u.A*t.A + u.B*t.D, B: u.A*t.B + u.B*t.E, C: u.A*t.C + u.B*t.F + u.C,
		D: u.D*t.A + u.E*t.D, E: u.D*t.B + u.E*t.E, F: u.D*t.C + u.E*t.F + u.F,
	}
}

const singularEpsilon = 1e-12

// headingVector converts a heading (0 = up, clockwise) to a unit vector in
// image space where y grows downward.
func headingVector(h float64) core.Point {
	return core.Point{X: math.Sin(h), Y: -math.Cos(h)}
}

// vectorHeading is the inverse of headingVector.
func vectorHeading(v core.Point) float64 {
	return math.Atan2(v.X, -v.Y)
}
