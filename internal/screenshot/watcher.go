package screenshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tarkov-map/tracker/internal/handoff"
)

// DefaultDir returns the game's screenshot folder under the user's
// Documents directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Documents", "Escape from Tarkov", "Screenshots"), nil
}

// Watcher follows a screenshot folder and keeps the newest fix.
type Watcher struct {
	dir    string
	logger *slog.Logger
	fixes  *handoff.Slot[Fix]
	fsw    *fsnotify.Watcher
}

// NewWatcher starts watching dir. The newest screenshot already present is
// published immediately.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("screenshot folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("screenshot folder %s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &Watcher{
		dir:    dir,
		logger: logger.With("component", "screenshot"),
		fixes:  handoff.New[Fix](),
		fsw:    fsw,
	}

	if path, mod, ok := Newest(dir); ok {
		if fix, err := ParseFilename(path); err == nil {
			fix.At = mod
			w.fixes.Publish(fix)
			w.logger.Info("initial position from screenshot", "position", fix.Position, "yaw", fix.Yaw)
		}
	}
	w.logger.Info("watching screenshot folder", "dir", dir)
	return w, nil
}

// Fixes returns the slot holding the newest fix.
func (w *Watcher) Fixes() *handoff.Slot[Fix] { return w.fixes }

// Run forwards new screenshots until ctx is cancelled, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) || !isPNG(ev.Name) {
				continue
			}
			fix, err := ParseFilename(ev.Name)
			if err != nil {
				w.logger.Debug("ignoring screenshot", "file", filepath.Base(ev.Name), "error", err)
				continue
			}
			fix.At = time.Now()
			w.fixes.Publish(fix)
			w.logger.Info("new position from screenshot", "position", fix.Position, "yaw", fix.Yaw)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("screenshot watcher error", "error", err)
		}
	}
}

// Newest returns the most recently modified PNG in dir.
func Newest(dir string) (string, time.Time, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", time.Time{}, false
	}
	var (
		best    string
		bestMod time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isPNG(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best, bestMod = filepath.Join(dir, e.Name()), info.ModTime()
		}
	}
	return best, bestMod, best != ""
}

func isPNG(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".png")
}
