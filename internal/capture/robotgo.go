//go:build cgo

package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
)

// Robotgo captures the live screen.
type Robotgo struct{}

// NewRobotgo prepares screen capture, enabling per-monitor DPI awareness
// where the platform needs it.
func NewRobotgo() (*Robotgo, error) {
	if err := enableDPIAwareness(); err != nil {
		return nil, fmt.Errorf("enabling DPI awareness: %w", err)
	}
	return &Robotgo{}, nil
}

// Name implements Capturer.
func (*Robotgo) Name() string { return "robotgo" }

// Capture implements Capturer. robotgo cannot be interrupted, so ctx is
// only checked before the call.
func (*Robotgo) Capture(ctx context.Context, rect image.Rectangle) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := robotgo.CaptureImg(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy())
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}

// MonitorOrigin implements MonitorLocator. Monitors are numbered from 1.
func (*Robotgo) MonitorOrigin(monitor int) (image.Point, error) {
	n := robotgo.DisplaysNum()
	if monitor < 1 || monitor > n {
		return image.Point{}, fmt.Errorf("monitor %d not found, %d connected", monitor, n)
	}
	x, y, _, _ := robotgo.GetDisplayBounds(monitor - 1)
	return image.Pt(x, y), nil
}
