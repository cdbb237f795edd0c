// Package convert maps between core types and GORM models.
package convert

import (
	"encoding/json"
	"time"

	"github.com/tarkov-map/tracker/internal/model"
	"github.com/tarkov-map/tracker/pkg/core"
	"gorm.io/datatypes"
)

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	out := model.Session{
		ID:        s.ID,
		MapID:     s.MapID,
		MapName:   s.MapName,
		Detector:  s.Detector,
		Host:      s.Host,
		StartedAt: s.StartedAt,
	}
	if !s.EndedAt.IsZero() {
		ended := s.EndedAt
		out.EndedAt = &ended
	}
	return out
}

// SessionToCore converts a GORM model.Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	out := core.Session{
		ID:        s.ID,
		MapID:     s.MapID,
		MapName:   s.MapName,
		Detector:  s.Detector,
		Host:      s.Host,
		StartedAt: s.StartedAt,
	}
	if s.EndedAt != nil {
		out.EndedAt = *s.EndedAt
	}
	return out
}

// CoreToPosition converts a tracked position recorded in sessionID.
func CoreToPosition(sessionID string, p core.TrackedPosition) model.Position {
	return model.Position{
		SessionID:    sessionID,
		Time:         p.Timestamp,
		MapID:        p.MapID,
		Epoch:        p.Epoch,
		WorldX:       p.World.X,
		WorldY:       p.World.Y,
		WorldHeading: p.WorldHeading,
		PixelX:       p.Pixel.X,
		PixelY:       p.Pixel.Y,
		VelocityX:    p.Velocity.X,
		VelocityY:    p.Velocity.Y,
		Confidence:   float32(p.Confidence),
		State:        p.State.String(),
		Stale:        p.Stale,
		Extrapolated: p.Extrapolated,
		Source:       p.Source,
	}
}

// PositionToCore converts a GORM model.Position back to a core.TrackedPosition.
func PositionToCore(p model.Position) core.TrackedPosition {
	return core.TrackedPosition{
		MapID:        p.MapID,
		Epoch:        p.Epoch,
		World:        core.Point{X: p.WorldX, Y: p.WorldY},
		WorldHeading: p.WorldHeading,
		Pixel:        core.Point{X: p.PixelX, Y: p.PixelY},
		Velocity:     core.Point{X: p.VelocityX, Y: p.VelocityY},
		Confidence:   float64(p.Confidence),
		Timestamp:    p.Time,
		State:        core.ParseTrackingState(p.State),
		Stale:        p.Stale,
		Extrapolated: p.Extrapolated,
		Source:       p.Source,
	}
}

// CoreToEvent converts a core.SessionEvent to a GORM model.Event.
func CoreToEvent(sessionID string, e core.SessionEvent) model.Event {
	data := datatypes.JSON("{}")
	if len(e.Data) > 0 {
		if raw, err := json.Marshal(e.Data); err == nil {
			data = raw
		}
	}
	return model.Event{
		SessionID: sessionID,
		Time:      e.Time,
		Type:      e.Type,
		Message:   e.Message,
		Data:      data,
	}
}

// EventToCore converts a GORM model.Event to a core.SessionEvent.
func EventToCore(e model.Event) core.SessionEvent {
	var data map[string]any
	if len(e.Data) > 0 {
		_ = json.Unmarshal(e.Data, &data)
	}
	if len(data) == 0 {
		data = nil
	}
	return core.SessionEvent{
		Time:    e.Time,
		Type:    e.Type,
		Message: e.Message,
		Data:    data,
	}
}

// CoreToStatus converts a pipeline snapshot to a GORM model.Status.
func CoreToStatus(sessionID string, s core.PipelineStatus) model.Status {
	t := s.Time
	if t.IsZero() {
		t = time.Now()
	}
	return model.Status{
		SessionID:  sessionID,
		Time:       t,
		MapID:      s.MapID,
		State:      s.State,
		Paused:     s.Paused,
		Captured:   s.Captured,
		Dropped:    s.Dropped,
		Detections: s.Detections,
		Misses:     s.Misses,
		Outliers:   s.Outliers,
		Published:  s.Published,
		Fixes:      s.Fixes,
		Recorded:   s.Recorded,
		QueueLen:   s.QueueLen,
		LastError:  s.LastError,
	}
}

// StatusToCore converts a GORM model.Status back to a pipeline snapshot.
func StatusToCore(s model.Status) core.PipelineStatus {
	return core.PipelineStatus{
		Time:       s.Time,
		MapID:      s.MapID,
		State:      s.State,
		Paused:     s.Paused,
		Captured:   s.Captured,
		Dropped:    s.Dropped,
		Detections: s.Detections,
		Misses:     s.Misses,
		Outliers:   s.Outliers,
		Published:  s.Published,
		Fixes:      s.Fixes,
		Recorded:   s.Recorded,
		QueueLen:   s.QueueLen,
		LastError:  s.LastError,
	}
}
