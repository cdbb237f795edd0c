// Package memory keeps a session in memory and exports it as JSON when
// the session ends.
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/tarkov-map/tracker/internal/config"
	"github.com/tarkov-map/tracker/pkg/core"
)

// ErrNoSession is returned when recording without an active session.
var ErrNoSession = errors.New("no active session")

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	positions []core.TrackedPosition
	events    []core.SessionEvent
	statuses  []core.PipelineStatus

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports an unfinished session.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	return b.endLocked()
}

// StartSession begins recording a new session, discarding any previous
// unexported data.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	copied := *s
	b.session = &copied
	b.positions = nil
	b.events = nil
	b.statuses = nil
	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return ErrNoSession
	}
	return b.endLocked()
}

func (b *Backend) endLocked() error {
	if b.session.EndedAt.IsZero() {
		b.session.EndedAt = b.lastTime()
	}
	err := b.exportJSON()
	b.session = nil
	return err
}

// lastTime is the newest recorded timestamp, or the session start.
func (b *Backend) lastTime() time.Time {
	t := b.session.StartedAt
	if n := len(b.positions); n > 0 && b.positions[n-1].Timestamp.After(t) {
		t = b.positions[n-1].Timestamp
	}
	if n := len(b.events); n > 0 && b.events[n-1].Time.After(t) {
		t = b.events[n-1].Time
	}
	return t
}

// RecordPosition appends a position to the session.
func (b *Backend) RecordPosition(p *core.TrackedPosition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return ErrNoSession
	}
	b.positions = append(b.positions, *p)
	return nil
}

// RecordEvent appends an event to the session.
func (b *Backend) RecordEvent(e *core.SessionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return ErrNoSession
	}
	b.events = append(b.events, *e)
	return nil
}

// RecordStatus appends a pipeline snapshot to the session.
func (b *Backend) RecordStatus(s *core.PipelineStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return ErrNoSession
	}
	b.statuses = append(b.statuses, *s)
	return nil
}

// Session returns a copy of the active session.
func (b *Backend) Session() (core.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return core.Session{}, false
	}
	return *b.session, true
}

// Positions returns a copy of the recorded positions.
func (b *Backend) Positions() []core.TrackedPosition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.TrackedPosition(nil), b.positions...)
}

// ExportedFilePath returns the path of the last export.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
