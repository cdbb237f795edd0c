// pkg/core/types.go
package core

import (
	"image"
	"math"
	"time"
)

// Point is a 2D coordinate. Depending on context it is either a pixel
// position in the capture region or a world position on the map image.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Scale returns p scaled by k.
func (p Point) Scale(k float64) Point { return Point{X: p.X * k, Y: p.Y * k} }

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Region describes the screen area handed to the capturer.
type Region struct {
	Monitor int `json:"monitor"`
	X       int `json:"x"`
	Y       int `json:"y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// Rect returns the region as an image.Rectangle in screen coordinates.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// CaptureFrame is a timestamped pixel buffer plus the region it came from.
// A frame is immutable once it leaves the capture stage.
type CaptureFrame struct {
	Image      *image.RGBA
	Region     Region
	Seq        uint64
	CapturedAt time.Time
}

// MarkerObservation is the detector output for a single frame.
// Found=false is the NotFound observation.
type MarkerObservation struct {
	Found      bool
	Pixel      Point
	Heading    float64 // radians, 0 = up on screen, clockwise positive
	Confidence float64
	Source     string
	Seq        uint64
	At         time.Time
}

// NotFound returns a miss observation for the given frame.
func NotFound(frame *CaptureFrame, source string) MarkerObservation {
	obs := MarkerObservation{Source: source}
	if frame != nil {
		obs.Seq = frame.Seq
		obs.At = frame.CapturedAt
	}
	return obs
}

// ClampConfidence bounds c to [0,1]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// TrackingState is the position tracker state.
type TrackingState int

const (
	StateSearching TrackingState = iota
	StateTracking
	StateLost
)

func (s TrackingState) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateTracking:
		return "tracking"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// ParseTrackingState is the inverse of String. Unknown names map to
// StateSearching.
func ParseTrackingState(s string) TrackingState {
	switch s {
	case "tracking":
		return StateTracking
	case "lost":
		return StateLost
	default:
		return StateSearching
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s TrackingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *TrackingState) UnmarshalText(b []byte) error {
	*s = ParseTrackingState(string(b))
	return nil
}

// TrackedPosition is the authoritative position estimate. World,
// WorldHeading and Velocity (world units per second) are filled in once
// the active calibration has been applied.
type TrackedPosition struct {
	MapID        string        `json:"mapId"`
	Epoch        uint64        `json:"epoch"`
	World        Point         `json:"world"`
	WorldHeading float64       `json:"worldHeading"`
	Pixel        Point         `json:"pixel"`
	Heading      float64       `json:"heading"`
	Velocity     Point         `json:"velocity"`
	Confidence   float64       `json:"confidence"`
	Timestamp    time.Time     `json:"timestamp"`
	State        TrackingState `json:"state"`
	Stale        bool          `json:"stale"`
	Extrapolated bool          `json:"extrapolated"`
	Source       string        `json:"source,omitempty"`
}
