// Package worker executes control commands against the running pipeline.
package worker

import (
	"errors"
	"log/slog"

	"github.com/tarkov-map/tracker/internal/calibration"
	"github.com/tarkov-map/tracker/pkg/core"
)

// Command names accepted by the dispatcher.
const (
	CmdMapSelect      = "map:select"
	CmdMapList        = "map:list"
	CmdPause          = "tracking:pause"
	CmdResume         = "tracking:resume"
	CmdToggle         = "tracking:toggle"
	CmdCaptureRegion  = "capture:region"
	CmdDetectorThresh = "detector:threshold"
	CmdStatus         = "status"
	CmdLogLevel       = "log:level"
)

// ErrMissingArgument is returned when a command is sent without its argument.
var ErrMissingArgument = errors.New("missing argument")

// Controller is the pipeline surface commands act on.
type Controller interface {
	SelectMap(mapID string) (*calibration.Active, error)
	Pause()
	Resume()
	TogglePause() bool
	CaptureRegion() core.Region
	SetRegion(r core.Region) error
	SetThreshold(v float64) error
	DetectorName() string
}

// Sessions receives session boundaries and events, normally the recorder.
type Sessions interface {
	StartSession(mapID, mapName, detector string) (*core.Session, error)
	Event(eventType, message string, data map[string]any)
}

// Catalog resolves map ids.
type Catalog interface {
	Get(id string) (*core.Map, error)
	IDs() []string
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Pipeline Controller
	Sessions Sessions // optional
	Catalog  Catalog
	Status   func() ([]string, core.PipelineStatus)
	LogLevel func(level string) slog.Level // optional
	Logger   *slog.Logger
}

// Manager runs command handlers
type Manager struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		deps:   deps,
		logger: logger.With("component", "commands"),
	}
}

// event forwards to the session recorder when there is one.
func (m *Manager) event(eventType, message string, data map[string]any) {
	if m.deps.Sessions != nil {
		m.deps.Sessions.Event(eventType, message, data)
	}
}
