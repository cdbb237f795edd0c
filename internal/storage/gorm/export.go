package gormstorage

import (
	"fmt"

	"github.com/tarkov-map/tracker/internal/model"
	"github.com/tarkov-map/tracker/internal/model/convert"
	"github.com/tarkov-map/tracker/internal/storage/memory"
	"github.com/tarkov-map/tracker/pkg/core"
	"gorm.io/gorm"
)

// ListSessions returns recorded sessions, newest first.
func ListSessions(db *gorm.DB) ([]core.Session, error) {
	var rows []model.Session
	if err := db.Model(&model.Session{}).Order("started_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error getting sessions: %w", err)
	}
	out := make([]core.Session, len(rows))
	for i, r := range rows {
		out[i] = convert.SessionToCore(r)
	}
	return out, nil
}

// LoadExport reads one session with its positions, events and status rows
// into the session file structure.
func LoadExport(db *gorm.DB, sessionID string) (*memory.Export, error) {
	var session model.Session
	if err := db.Model(&model.Session{}).Where("id = ?", sessionID).First(&session).Error; err != nil {
		return nil, fmt.Errorf("error getting session %s: %w", sessionID, err)
	}

	var positions []model.Position
	err := db.Model(&model.Position{}).
		Where("session_id = ?", sessionID).
		Order("time ASC, id ASC").
		Find(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("error getting positions: %w", err)
	}

	var events []model.Event
	err = db.Model(&model.Event{}).
		Where("session_id = ?", sessionID).
		Order("time ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("error getting events: %w", err)
	}

	var statuses []model.Status
	err = db.Model(&model.Status{}).
		Where("session_id = ?", sessionID).
		Order("time ASC, id ASC").
		Find(&statuses).Error
	if err != nil {
		return nil, fmt.Errorf("error getting status rows: %w", err)
	}

	exp := &memory.Export{
		Version:   memory.ExportVersion,
		Session:   convert.SessionToCore(session),
		Positions: make([]core.TrackedPosition, len(positions)),
		Events:    make([]core.SessionEvent, len(events)),
	}
	for i, p := range positions {
		exp.Positions[i] = convert.PositionToCore(p)
	}
	for i, e := range events {
		exp.Events[i] = convert.EventToCore(e)
	}
	for _, s := range statuses {
		exp.Status = append(exp.Status, convert.StatusToCore(s))
	}

	end := exp.Session.EndedAt
	if end.IsZero() && len(exp.Positions) > 0 {
		end = exp.Positions[len(exp.Positions)-1].Timestamp
	}
	exp.Summary = memory.Summarize(exp.Positions, exp.Session.StartedAt, end)
	return exp, nil
}
