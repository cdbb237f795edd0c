package storage

import "github.com/tarkov-map/tracker/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Recording
	RecordPosition(p *core.TrackedPosition) error
	RecordEvent(e *core.SessionEvent) error
	RecordStatus(s *core.PipelineStatus) error
}

// Exporter is an optional interface for backends that write a session
// file when the session ends.
type Exporter interface {
	ExportedFilePath() string
}

// Pending is an optional interface for backends with a write queue.
type Pending interface {
	QueueLen() int
}
