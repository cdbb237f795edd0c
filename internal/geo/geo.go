package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tarkov-map/tracker/pkg/core"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// RegionFromString parses "x,y,w,h" into a capture region on the given monitor.
func RegionFromString(s string, monitor int) (core.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.Region{}, ErrInvalidCoordinates
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return core.Region{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	r := core.Region{Monitor: monitor, X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	if r.Empty() {
		return core.Region{}, ErrInvalidCoordinates
	}
	return r, nil
}
