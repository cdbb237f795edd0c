//go:build !cgo

package capture

import (
	"context"
	"image"
)

// Robotgo is unavailable without cgo.
type Robotgo struct{}

// NewRobotgo always fails in builds without cgo.
func NewRobotgo() (*Robotgo, error) {
	return nil, ErrUnsupportedPlatform
}

// Name implements Capturer.
func (*Robotgo) Name() string { return "robotgo" }

// Capture implements Capturer.
func (*Robotgo) Capture(context.Context, image.Rectangle) (*image.RGBA, error) {
	return nil, ErrUnsupportedPlatform
}
