package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var replayExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".webp"}

// Replay serves screenshots from a directory in name order, looping at
// the end. It stands in for the screen when developing or testing.
type Replay struct {
	dir   string
	files []string

	mu   sync.Mutex
	next int
}

// NewReplay indexes the images in dir.
func NewReplay(dir string) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading replay directory: %w", err)
	}
	r := &Replay{dir: dir}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(replayExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			r.files = append(r.files, filepath.Join(dir, e.Name()))
		}
	}
	if len(r.files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	slices.Sort(r.files)
	return r, nil
}

// Name implements Capturer.
func (*Replay) Name() string { return "replay" }

// Len returns the number of indexed images.
func (r *Replay) Len() int { return len(r.files) }

// Capture implements Capturer. rect is relative to the image origin.
func (r *Replay) Capture(ctx context.Context, rect image.Rectangle) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	path := r.files[r.next]
	r.next = (r.next + 1) % len(r.files)
	r.mu.Unlock()

	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return crop(toRGBA(img), rect)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}
