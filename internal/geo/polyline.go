package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/tarkov-map/tracker/pkg/core"
)

// Path builds a line string through the given points.
func Path(points []core.Point) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("path must have at least 2 points, got %d", len(points))
	}

	flatCoords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flatCoords = append(flatCoords, p.X, p.Y)
	}

	ls, err := geom.NewLineString(geom.NewSequence(flatCoords, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("invalid path: %w", err)
	}
	return ls, nil
}

// PathLength returns the total length of the path, 0 for fewer than 2 points.
func PathLength(points []core.Point) float64 {
	ls, err := Path(points)
	if err != nil {
		return 0
	}
	return ls.Length()
}

// Bounds returns the envelope covering all points. Non-finite points are
// rejected.
func Bounds(points []core.Point) (geom.Envelope, error) {
	xys := make([]geom.XY, len(points))
	for i, p := range points {
		xys[i] = geom.XY{X: p.X, Y: p.Y}
	}
	env, err := geom.NewEnvelope(xys)
	if err != nil {
		return geom.Envelope{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return env, nil
}

// Contains reports whether p lies inside env. An empty envelope contains nothing.
func Contains(env geom.Envelope, p core.Point) bool {
	return env.Contains(geom.XY{X: p.X, Y: p.Y})
}
