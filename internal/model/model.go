package model

import (
	"time"

	"gorm.io/datatypes"
)

// DatabaseModels lists every table of the recording schema.
var DatabaseModels = []interface{}{
	&Session{},
	&Position{},
	&Event{},
	&Status{},
}

// Session is one recording run on a single map.
type Session struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"` // uuid
	MapID     string     `json:"mapId" gorm:"size:64;index:idx_session_map"`
	MapName   string     `json:"mapName" gorm:"size:128"`
	Detector  string     `json:"detector" gorm:"size:32"`
	Host      string     `json:"host" gorm:"size:128"`
	StartedAt time.Time  `json:"startedAt" gorm:"NOT NULL;index:idx_session_started"`
	EndedAt   *time.Time `json:"endedAt" gorm:"default:NULL"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Position is one recorded TrackedPosition.
type Position struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID    string    `json:"sessionId" gorm:"size:36;index:idx_position_session"`
	Session      Session   `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time         time.Time `json:"time" gorm:"NOT NULL;index:idx_position_time"`
	MapID        string    `json:"mapId" gorm:"size:64"`
	Epoch        uint64    `json:"epoch"`
	WorldX       float64   `json:"worldX"`
	WorldY       float64   `json:"worldY"`
	WorldHeading float64   `json:"worldHeading"`
	PixelX       float64   `json:"pixelX"`
	PixelY       float64   `json:"pixelY"`
	VelocityX    float64   `json:"velocityX"`
	VelocityY    float64   `json:"velocityY"`
	Confidence   float32   `json:"confidence"`
	State        string    `json:"state" gorm:"size:16"`
	Stale        bool      `json:"stale"`
	Extrapolated bool      `json:"extrapolated"`
	Source       string    `json:"source" gorm:"size:32"`
}

func (*Position) TableName() string {
	return "positions"
}

// Event is a discrete session occurrence.
type Event struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID string         `json:"sessionId" gorm:"size:36;index:idx_event_session"`
	Session   Session        `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time      time.Time      `json:"time" gorm:"NOT NULL"`
	Type      string         `json:"type" gorm:"size:32;index:idx_event_type"`
	Message   string         `json:"message" gorm:"size:255"`
	Data      datatypes.JSON `json:"data" gorm:"default:'{}'"`
}

func (*Event) TableName() string {
	return "events"
}

// Status is a periodic pipeline counter snapshot.
type Status struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID  string    `json:"sessionId" gorm:"size:36;index:idx_status_session"`
	Time       time.Time `json:"time" gorm:"NOT NULL"`
	MapID      string    `json:"mapId" gorm:"size:64"`
	State      string    `json:"state" gorm:"size:16"`
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
	LastError  string    `json:"lastError" gorm:"size:255"`
}

func (*Status) TableName() string {
	return "pipeline_status"
}
