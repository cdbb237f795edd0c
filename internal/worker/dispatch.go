package worker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tarkov-map/tracker/internal/dispatcher"
	"github.com/tarkov-map/tracker/internal/geo"
	"github.com/tarkov-map/tracker/pkg/core"
)

// MapSelection is the reply to map:select.
type MapSelection struct {
	MapID     string `json:"mapId"`
	Epoch     uint64 `json:"epoch"`
	Tracking  bool   `json:"tracking"`
	SessionID string `json:"sessionId,omitempty"`
}

// toggleDebounce absorbs key repeat on a held pause hotkey.
const toggleDebounce = 250 * time.Millisecond

// RegisterHandlers registers all command handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Map switches and session boundaries - sync so the caller sees the new epoch
	d.Register(CmdMapSelect, m.handleMapSelect, dispatcher.Logged())
	d.Register(CmdMapList, m.handleMapList)

	d.Register(CmdPause, m.handlePause, dispatcher.Logged())
	d.Register(CmdResume, m.handleResume, dispatcher.Logged())
	d.Register(CmdToggle, m.handleToggle, dispatcher.Logged(), dispatcher.Debounce(toggleDebounce))

	d.Register(CmdCaptureRegion, m.handleCaptureRegion, dispatcher.Logged())
	d.Register(CmdDetectorThresh, m.handleThreshold, dispatcher.Logged())

	d.Register(CmdStatus, m.handleStatus)
	if m.deps.LogLevel != nil {
		d.Register(CmdLogLevel, m.handleLogLevel, dispatcher.Logged())
	}
}

func (m *Manager) handleMapSelect(e dispatcher.Event) (any, error) {
	if len(e.Args) == 0 || strings.TrimSpace(e.Args[0]) == "" {
		return nil, fmt.Errorf("%s: %w: map id", CmdMapSelect, ErrMissingArgument)
	}
	mapID := strings.TrimSpace(e.Args[0])

	mapName := mapID
	if m.deps.Catalog != nil {
		rec, err := m.deps.Catalog.Get(mapID)
		if err != nil {
			return nil, err
		}
		mapName = rec.Name
	}

	active, selErr := m.deps.Pipeline.SelectMap(mapID)
	reply := MapSelection{MapID: mapID, Epoch: active.Epoch, Tracking: active.Usable()}

	if m.deps.Sessions != nil {
		s, err := m.deps.Sessions.StartSession(mapID, mapName, m.deps.Pipeline.DetectorName())
		if err != nil {
			m.logger.Warn("session not started", "map", mapID, "error", err)
		} else {
			reply.SessionID = s.ID
		}
		m.event(core.EventMapSelected, mapName, map[string]any{
			"epoch":    active.Epoch,
			"tracking": reply.Tracking,
		})
	}

	if selErr != nil && !errors.Is(selErr, core.ErrCalibrationMissing) {
		return reply, selErr
	}
	return reply, nil
}

func (m *Manager) handleMapList(dispatcher.Event) (any, error) {
	if m.deps.Catalog == nil {
		return []string{}, nil
	}
	return m.deps.Catalog.IDs(), nil
}

func (m *Manager) handlePause(dispatcher.Event) (any, error) {
	m.deps.Pipeline.Pause()
	m.event(core.EventPaused, "", nil)
	return "paused", nil
}

func (m *Manager) handleResume(dispatcher.Event) (any, error) {
	m.deps.Pipeline.Resume()
	m.event(core.EventResumed, "", nil)
	return "resumed", nil
}

func (m *Manager) handleToggle(dispatcher.Event) (any, error) {
	if m.deps.Pipeline.TogglePause() {
		m.event(core.EventPaused, "toggle", nil)
		return "paused", nil
	}
	m.event(core.EventResumed, "toggle", nil)
	return "resumed", nil
}

// handleCaptureRegion accepts "x,y,w,h" as one argument or as four.
func (m *Manager) handleCaptureRegion(e dispatcher.Event) (any, error) {
	if len(e.Args) == 0 {
		return nil, fmt.Errorf("%s: %w: x,y,w,h", CmdCaptureRegion, ErrMissingArgument)
	}
	current := m.deps.Pipeline.CaptureRegion()
	r, err := geo.RegionFromString(strings.Join(e.Args, ","), current.Monitor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CmdCaptureRegion, err)
	}
	if err := m.deps.Pipeline.SetRegion(r); err != nil {
		return nil, err
	}
	m.event(core.EventRegion, "", map[string]any{"x": r.X, "y": r.Y, "width": r.Width, "height": r.Height})
	return r, nil
}

func (m *Manager) handleThreshold(e dispatcher.Event) (any, error) {
	if len(e.Args) == 0 {
		return nil, fmt.Errorf("%s: %w: value", CmdDetectorThresh, ErrMissingArgument)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(e.Args[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid value %q: %w", CmdDetectorThresh, e.Args[0], err)
	}
	if err := m.deps.Pipeline.SetThreshold(v); err != nil {
		return nil, err
	}
	m.event(core.EventThreshold, "", map[string]any{"threshold": v})
	return v, nil
}

func (m *Manager) handleStatus(dispatcher.Event) (any, error) {
	if m.deps.Status == nil {
		return nil, errors.New("status not available")
	}
	_, status := m.deps.Status()
	return status, nil
}

func (m *Manager) handleLogLevel(e dispatcher.Event) (any, error) {
	level := strings.TrimSpace(e.Arg(0))
	if level == "" {
		return nil, fmt.Errorf("%s: %w: level", CmdLogLevel, ErrMissingArgument)
	}
	return m.deps.LogLevel(level).String(), nil
}
