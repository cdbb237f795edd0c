package capture

import (
	"context"
	"fmt"
	"image"
	"sync"

	vidio "github.com/AlexEidt/Vidio"
)

// Video serves frames of a recorded gameplay video, restarting at the end.
// Frames are read in sequence regardless of the capture rate.
type Video struct {
	path string

	mu    sync.Mutex
	video *vidio.Video
}

// NewVideo opens the video at path. ffmpeg must be on PATH.
func NewVideo(path string) (*Video, error) {
	video, err := vidio.NewVideo(path)
	if err != nil {
		return nil, fmt.Errorf("opening video: %w", err)
	}
	return &Video{path: path, video: video}, nil
}

// Name implements Capturer.
func (*Video) Name() string { return "video" }

// FPS returns the source frame rate.
func (v *Video) FPS() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.video.FPS()
}

// Capture implements Capturer. rect is relative to the frame origin.
func (v *Video) Capture(ctx context.Context, rect image.Rectangle) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.video.Read() {
		v.video.Close()
		video, err := vidio.NewVideo(v.path)
		if err != nil {
			return nil, fmt.Errorf("reopening video: %w", err)
		}
		v.video = video
		if !v.video.Read() {
			return nil, fmt.Errorf("video %s has no frames", v.path)
		}
	}

	w, h := v.video.Width(), v.video.Height()
	frame := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(frame.Pix, v.video.FrameBuffer())
	return crop(frame, rect)
}

// Close releases the decoder.
func (v *Video) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.video.Close()
	return nil
}
