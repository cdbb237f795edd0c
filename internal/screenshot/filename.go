package screenshot

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/tarkov-map/tracker/pkg/core"
)

// ErrNoPosition is returned for filenames without embedded coordinates.
var ErrNoPosition = errors.New("filename carries no position")

// Game screenshots are named like
// 2026-01-07[19-56]_-198.89, 22.74, -345.97_0.32263, 0.47266, -0.18602, 0.79869_15.61 (0).png
var positionPattern = regexp.MustCompile(
	`_(-?\d+\.\d+), (-?\d+\.\d+), (-?\d+\.\d+)_(-?\d+\.\d+), (-?\d+\.\d+), (-?\d+\.\d+), (-?\d+\.\d+)_`)

// Fix is a player position read from a screenshot filename.
type Fix struct {
	Position [3]float64 // game x, y (height), z
	Yaw      float64    // radians
	Path     string
	At       time.Time
}

// Game returns the horizontal game position (x, z).
func (f Fix) Game() core.Point {
	return core.Point{X: f.Position[0], Y: f.Position[2]}
}

// ParseFilename extracts the position and facing from a screenshot path.
func ParseFilename(path string) (Fix, error) {
	m := positionPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return Fix{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoPosition)
	}
	var v [7]float64
	for i := range v {
		f, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return Fix{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		v[i] = f
	}
	return Fix{
		Position: [3]float64{v[0], v[1], v[2]},
		Yaw:      QuaternionYaw(v[3], v[4], v[5], v[6]),
		Path:     path,
	}, nil
}

// QuaternionYaw returns the rotation about the vertical (y) axis of the
// game's quaternion (x, y, z, w).
func QuaternionYaw(x, y, z, w float64) float64 {
	sinyCosp := 2 * (w*y + x*z)
	cosyCosp := 1 - 2*(z*z+y*y)
	return math.Atan2(sinyCosp, cosyCosp)
}
