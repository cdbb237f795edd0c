package calibration

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/tarkov-map/tracker/internal/geo"
	"github.com/tarkov-map/tracker/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// Kind describes how a calibration was fitted.
type Kind string

const (
	KindSimilarity Kind = "similarity"
	KindAffine     Kind = "affine"
)

// Pair is one pixel to world correspondence.
type Pair struct {
	Pixel core.Point
	World core.Point
}

// Calibration is an invertible pixel <-> world transform for one map.
type Calibration struct {
	kind     Kind
	forward  Affine
	inverse  Affine
	bounds   geom.Envelope
	residual float64
}

// Fit computes a calibration from reference pairs. Two pairs give a
// similarity transform; three or more give a least squares affine fit.
// Degenerate inputs wrap core.ErrCalibrationMissing.
func Fit(pairs []Pair) (*Calibration, error) {
	var (
		fwd  Affine
		kind Kind
		err  error
	)

	switch {
	case len(pairs) < 2:
		return nil, fmt.Errorf("need at least 2 reference pairs, got %d: %w", len(pairs), core.ErrCalibrationMissing)
	case len(pairs) == 2:
		fwd, err = fitSimilarity(pairs[0], pairs[1])
		kind = KindSimilarity
	default:
		fwd, err = fitAffine(pairs)
		kind = KindAffine
	}
	if err != nil {
		return nil, fmt.Errorf("fitting %s calibration: %w", kind, errors.Join(err, core.ErrCalibrationMissing))
	}

	inv, ok := fwd.Inverse()
	if !ok {
		return nil, fmt.Errorf("calibration is not invertible: %w", core.ErrCalibrationMissing)
	}

	worlds := make([]core.Point, len(pairs))
	var sq float64
	for i, p := range pairs {
		worlds[i] = p.World
		sq += fwd.Apply(p.Pixel).Dist(p.World) * fwd.Apply(p.Pixel).Dist(p.World)
	}

	bounds, err := geo.Bounds(worlds)
	if err != nil {
		return nil, fmt.Errorf("reference bounds: %w", errors.Join(err, core.ErrCalibrationMissing))
	}

	return &Calibration{
		kind:     kind,
		forward:  fwd,
		inverse:  inv,
		bounds:   bounds,
		residual: math.Sqrt(sq / float64(len(pairs))),
	}, nil
}

// fitSimilarity treats points as complex numbers: w = a*p + b.
func fitSimilarity(p0, p1 Pair) (Affine, error) {
	dp := complex(p1.Pixel.X-p0.Pixel.X, p1.Pixel.Y-p0.Pixel.Y)
	dw := complex(p1.World.X-p0.World.X, p1.World.Y-p0.World.Y)
	if dp == 0 || dw == 0 {
		return Affine{}, errors.New("reference points coincide")
	}
	a := dw / dp
	b := complex(p0.World.X, p0.World.Y) - a*complex(p0.Pixel.X, p0.Pixel.Y)
	return Affine{
		A: real(a), B: -imag(a), C: real(b),
		D: imag(a), E: real(a), F: imag(b),
	}, nil
}

func fitAffine(pairs []Pair) (Affine, error) {
	n := len(pairs)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewDense(n, 2, nil)
	for i, p := range pairs {
		a.SetRow(i, []float64{p.Pixel.X, p.Pixel.Y, 1})
		b.SetRow(i, []float64{p.World.X, p.World.Y})
	}

	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return Affine{}, fmt.Errorf("least squares: %w", err)
	}

	t := Affine{
		A: x.At(0, 0), B: x.At(1, 0), C: x.At(2, 0),
		D: x.At(0, 1), E: x.At(1, 1), F: x.At(2, 1),
	}
	for _, v := range []float64{t.A, t.B, t.C, t.D, t.E, t.F} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Affine{}, errors.New("non-finite solution")
		}
	}
	return t, nil
}

// Kind returns the fit type.
func (c *Calibration) Kind() Kind { return c.kind }

// Residual returns the RMS error of the reference pairs in world units.
func (c *Calibration) Residual() float64 { return c.residual }

// Forward returns the pixel to world transform.
func (c *Calibration) Forward() Affine { return c.forward }

// WorldFromPixel maps a detector pixel to world coordinates.
func (c *Calibration) WorldFromPixel(p core.Point) core.Point {
	return c.forward.Apply(p)
}

// PixelFromWorld maps a world coordinate back to detector pixels.
func (c *Calibration) PixelFromWorld(w core.Point) core.Point {
	return c.inverse.Apply(w)
}

// HeadingToWorld rotates a pixel space heading into world space.
func (c *Calibration) HeadingToWorld(h float64) float64 {
	return vectorHeading(c.forward.ApplyVector(headingVector(h)))
}

// HeadingToPixel rotates a world space heading into pixel space.
func (c *Calibration) HeadingToPixel(h float64) float64 {
	return vectorHeading(c.inverse.ApplyVector(headingVector(h)))
}

// VelocityToWorld maps a pixel velocity to world units.
func (c *Calibration) VelocityToWorld(v core.Point) core.Point {
	return c.forward.ApplyVector(v)
}

// Bounds returns the world envelope of the reference points.
func (c *Calibration) Bounds() geom.Envelope { return c.bounds }

// WithBounds returns a copy whose envelope covers the given world points,
// e.g. the full map extent.
func (c *Calibration) WithBounds(points []core.Point) (*Calibration, error) {
	env, err := geo.Bounds(points)
	if err != nil {
		return nil, fmt.Errorf("map extent: %w", err)
	}
	cp := *c
	cp.bounds = env
	return &cp, nil
}

// Contains reports whether w falls inside the calibrated bounds.
func (c *Calibration) Contains(w core.Point) bool {
	return geo.Contains(c.bounds, w)
}
