package tracker

import "math"

// headingFilter smooths angles on the circle by averaging unit vectors.
type headingFilter struct {
	sin, cos float64
	ok       bool
}

func (h *headingFilter) reset(angle float64) {
	h.sin, h.cos = math.Sincos(angle)
	h.ok = true
}

func (h *headingFilter) update(angle, alpha float64) float64 {
	if !h.ok {
		h.reset(angle)
		return h.value()
	}
	s, c := math.Sincos(angle)
	h.sin = (1-alpha)*h.sin + alpha*s
	h.cos = (1-alpha)*h.cos + alpha*c
	// opposite headings cancel out; keep the newest
	if math.Hypot(h.sin, h.cos) < 1e-9 {
		h.reset(angle)
	}
	return h.value()
}

func (h *headingFilter) value() float64 {
	if !h.ok {
		return 0
	}
	return math.Atan2(h.sin, h.cos)
}

// WrapAngle maps a to (-π, π].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
