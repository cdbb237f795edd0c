// Package recorder polls the published position and writes changes to a
// storage backend, one session per selected map.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tarkov-map/tracker/internal/storage"
	"github.com/tarkov-map/tracker/internal/timeutil"
	"github.com/tarkov-map/tracker/pkg/core"
)

// Source is the position poll API.
type Source interface {
	Latest(now time.Time) (core.TrackedPosition, bool)
}

// Uploader sends a finished session file to a web viewer.
type Uploader interface {
	Upload(filePath string, meta core.UploadMetadata) error
}

// Config controls what gets recorded.
type Config struct {
	RateHz  float64
	MinMove float64 // world units
}

// Recorder writes sessions, positions and events to a backend.
type Recorder struct {
	cfg     Config
	source  Source
	backend storage.Backend
	logger  *slog.Logger
	clock   timeutil.Clock

	mu      sync.Mutex
	session *core.Session
	last    core.TrackedPosition
	hasLast bool

	uploader Uploader
	uploads  sync.WaitGroup

	recorded atomic.Uint64
	failed   atomic.Uint64
}

// New creates a recorder. The backend must already be initialised.
func New(cfg Config, source Source, backend storage.Backend, logger *slog.Logger, clock timeutil.Clock) (*Recorder, error) {
	if cfg.RateHz <= 0 {
		return nil, fmt.Errorf("record rate must be positive, got %v", cfg.RateHz)
	}
	if cfg.MinMove < 0 {
		return nil, fmt.Errorf("min move must not be negative, got %v", cfg.MinMove)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{
		cfg:     cfg,
		source:  source,
		backend: backend,
		logger:  logger.With("component", "recorder"),
		clock:   clock,
	}, nil
}

// SetUploader enables uploading session files exported by the backend.
// It must be called before Run.
func (r *Recorder) SetUploader(u Uploader) {
	r.uploader = u
}

// StartSession ends the current session, if any, and opens a new one.
func (r *Recorder) StartSession(mapID, mapName, detector string) (*core.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		if err := r.endLocked(); err != nil {
			r.logger.Warn("ending previous session", "error", err)
		}
	}

	host, _ := os.Hostname()
	s := &core.Session{
		ID:        uuid.NewString(),
		MapID:     mapID,
		MapName:   mapName,
		Detector:  detector,
		Host:      host,
		StartedAt: r.clock.Now(),
	}
	if err := r.backend.StartSession(s); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	r.session = s
	r.hasLast = false
	r.logger.Info("session started", "session", s.ID, "map", mapID)
	return s, nil
}

// EndSession closes the current session.
func (r *Recorder) EndSession() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	return r.endLocked()
}

func (r *Recorder) endLocked() error {
	s := *r.session
	r.session = nil
	r.hasLast = false
	if err := r.backend.EndSession(); err != nil {
		return err
	}
	e, ok := r.backend.(storage.Exporter)
	if !ok || e.ExportedFilePath() == "" {
		r.logger.Info("session ended", "session", s.ID)
		return nil
	}
	path := e.ExportedFilePath()
	r.logger.Info("session ended", "session", s.ID, "file", path)
	if r.uploader != nil {
		meta := core.UploadMetadata{
			MapID:    s.MapID,
			MapName:  s.MapName,
			Detector: s.Detector,
			Duration: r.clock.Now().Sub(s.StartedAt).Seconds(),
		}
		r.uploads.Add(1)
		go r.upload(path, meta)
	}
	return nil
}

func (r *Recorder) upload(path string, meta core.UploadMetadata) {
	defer r.uploads.Done()
	if err := r.uploader.Upload(path, meta); err != nil {
		r.logger.Error("Failed to upload session", "file", path, "error", err)
		return
	}
	r.logger.Info("Session uploaded", "file", path)
}

// WaitUploads blocks until pending uploads finish.
func (r *Recorder) WaitUploads() {
	r.uploads.Wait()
}

// Session returns a copy of the open session.
func (r *Recorder) Session() (core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return core.Session{}, false
	}
	return *r.session, true
}

// Event records a session event stamped now. It is dropped when no
// session is open.
func (r *Recorder) Event(eventType, message string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventLocked(eventType, message, data)
}

func (r *Recorder) eventLocked(eventType, message string, data map[string]any) {
	if r.session == nil {
		return
	}
	e := &core.SessionEvent{Time: r.clock.Now(), Type: eventType, Message: message, Data: data}
	if err := r.backend.RecordEvent(e); err != nil {
		r.logger.Debug("recording event", "type", eventType, "error", err)
	}
}

// Recorded returns the number of positions written.
func (r *Recorder) Recorded() uint64 { return r.recorded.Load() }

// Failed returns the number of positions the backend rejected.
func (r *Recorder) Failed() uint64 { return r.failed.Load() }

// Run polls at the configured rate until ctx is cancelled, then ends the
// open session.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / r.cfg.RateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			err := r.EndSession()
			r.WaitUploads()
			return err
		case <-ticker.C:
			r.Poll()
		}
	}
}

// Poll records the current position if it differs from the last one.
func (r *Recorder) Poll() {
	pos, ok := r.source.Latest(r.clock.Now())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil || !ok || pos.MapID != r.session.MapID {
		return
	}
	if r.hasLast && !r.changed(pos) {
		return
	}

	r.transitions(pos)
	if err := r.backend.RecordPosition(&pos); err != nil {
		r.failed.Add(1)
		r.logger.Debug("recording position", "error", err)
		return
	}
	r.recorded.Add(1)
	r.last, r.hasLast = pos, true
}

// changed reports whether pos is worth recording after r.last.
func (r *Recorder) changed(pos core.TrackedPosition) bool {
	last := r.last
	switch {
	case pos.Epoch != last.Epoch, pos.State != last.State, pos.Stale != last.Stale:
		return true
	case pos.Timestamp.Equal(last.Timestamp):
		return false
	}
	return pos.World.Dist(last.World) >= r.cfg.MinMove
}

// transitions emits acquired/lost events on state changes.
func (r *Recorder) transitions(pos core.TrackedPosition) {
	prev := core.StateSearching
	if r.hasLast {
		prev = r.last.State
	}
	switch {
	case pos.State == core.StateTracking && prev != core.StateTracking:
		r.eventLocked(core.EventAcquired, "", map[string]any{"source": pos.Source})
	case pos.State == core.StateLost && prev != core.StateLost:
		r.eventLocked(core.EventLost, "", map[string]any{"x": pos.World.X, "y": pos.World.Y})
	}
}
