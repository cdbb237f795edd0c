package core

import "time"

// Session is one recording run, from start-up or map selection until the
// map changes or the tracker exits.
type Session struct {
	ID        string    `json:"id"`
	MapID     string    `json:"mapId"`
	MapName   string    `json:"mapName,omitempty"`
	Detector  string    `json:"detector"`
	Host      string    `json:"host,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
}

// Session event types.
const (
	EventMapSelected  = "map_selected"
	EventPaused       = "paused"
	EventResumed      = "resumed"
	EventAcquired     = "acquired"
	EventLost         = "lost"
	EventCaptureError = "capture_error"
	EventScreenshot   = "screenshot_fix"
	EventRegion       = "region_changed"
	EventThreshold    = "threshold_changed"
)

// SessionEvent is a discrete occurrence recorded alongside positions.
type SessionEvent struct {
	Time    time.Time      `json:"time"`
	Type    string         `json:"type"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// PipelineStatus is a periodic snapshot of pipeline counters.
type PipelineStatus struct {
	Time       time.Time `json:"time"`
	MapID      string    `json:"mapId"`
	State      string    `json:"state"`
	Paused     bool      `json:"paused"`
	Captured   uint64    `json:"captured"`
	Dropped    uint64    `json:"dropped"`
	Detections uint64    `json:"detections"`
	Misses     uint64    `json:"misses"`
	Outliers   uint64    `json:"outliers"`
	Published  uint64    `json:"published"`
	Fixes      uint64    `json:"fixes"`
	Recorded   uint64    `json:"recorded"`
	QueueLen   int       `json:"queueLen"`
	LastError  string    `json:"lastError,omitempty"`
}

// UploadMetadata describes a session file sent to a web viewer.
type UploadMetadata struct {
	MapID    string
	MapName  string
	Detector string
	Duration float64 // seconds
}
