package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkov-map/tracker/internal/calibration"
	"github.com/tarkov-map/tracker/internal/dispatcher"
	"github.com/tarkov-map/tracker/pkg/core"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) { l.add(msg) }
func (l *mockLogger) Info(msg string, keysAndValues ...any)  { l.add(msg) }
func (l *mockLogger) Warn(msg string, keysAndValues ...any)  { l.add(msg) }
func (l *mockLogger) Error(msg string, keysAndValues ...any) { l.add(msg) }

func (l *mockLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// mockPipeline implements Controller for testing
type mockPipeline struct {
	epoch     uint64
	calibrate bool
	paused    bool
	region    core.Region
	threshold float64
	selected  []string
}

func (p *mockPipeline) SelectMap(mapID string) (*calibration.Active, error) {
	p.epoch++
	p.selected = append(p.selected, mapID)
	a := &calibration.Active{MapID: mapID, Epoch: p.epoch}
	if !p.calibrate {
		return a, fmt.Errorf("map %q: %w", mapID, core.ErrCalibrationMissing)
	}
	a.Calibration = &calibration.Calibration{}
	return a, nil
}

func (p *mockPipeline) Pause()                     { p.paused = true }
func (p *mockPipeline) Resume()                    { p.paused = false }
func (p *mockPipeline) TogglePause() bool          { p.paused = !p.paused; return p.paused }
func (p *mockPipeline) CaptureRegion() core.Region { return p.region }
func (p *mockPipeline) DetectorName() string       { return "template" }

func (p *mockPipeline) SetRegion(r core.Region) error {
	p.region = r
	return nil
}

func (p *mockPipeline) SetThreshold(v float64) error {
	if v < 0 || v > 1 {
		return errors.New("threshold out of range")
	}
	p.threshold = v
	return nil
}

// mockSessions implements Sessions for testing
type mockSessions struct {
	started []string
	events  []string
}

func (s *mockSessions) StartSession(mapID, mapName, detector string) (*core.Session, error) {
	s.started = append(s.started, mapID+"/"+mapName+"/"+detector)
	return &core.Session{ID: fmt.Sprintf("session-%d", len(s.started)), MapID: mapID}, nil
}

func (s *mockSessions) Event(eventType, message string, data map[string]any) {
	s.events = append(s.events, eventType)
}

type mockCatalog map[string]core.Map

func (c mockCatalog) Get(id string) (*core.Map, error) {
	m, ok := c[id]
	if !ok {
		return nil, fmt.Errorf("unknown map: %s", id)
	}
	return &m, nil
}

func (c mockCatalog) IDs() []string {
	var ids []string
	for id := range c {
		ids = append(ids, id)
	}
	return ids
}

func setup(t *testing.T) (*dispatcher.Dispatcher, *mockPipeline, *mockSessions) {
	t.Helper()
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)

	p := &mockPipeline{calibrate: true, region: core.Region{Monitor: 1, Width: 256, Height: 256}}
	s := &mockSessions{}
	m := NewManager(Dependencies{
		Pipeline: p,
		Sessions: s,
		Catalog:  mockCatalog{"customs": {NormalizedName: "customs", Name: "Customs"}},
		Status: func() ([]string, core.PipelineStatus) {
			return []string{"map=customs"}, core.PipelineStatus{MapID: "customs", State: "tracking"}
		},
		LogLevel: func(level string) slog.Level {
			var l slog.Level
			_ = l.UnmarshalText([]byte(level))
			return l
		},
	})
	m.RegisterHandlers(d)
	return d, p, s
}

func TestRegisterHandlers(t *testing.T) {
	d, _, _ := setup(t)
	for _, cmd := range []string{CmdMapSelect, CmdMapList, CmdPause, CmdResume, CmdToggle, CmdCaptureRegion, CmdDetectorThresh, CmdStatus, CmdLogLevel} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}
}

func TestMapSelect(t *testing.T) {
	d, p, s := setup(t)

	result, err := d.Dispatch(dispatcher.NewEvent(CmdMapSelect, "customs"))
	require.NoError(t, err)

	sel := result.(MapSelection)
	assert.Equal(t, "customs", sel.MapID)
	assert.Equal(t, uint64(1), sel.Epoch)
	assert.True(t, sel.Tracking)
	assert.Equal(t, "session-1", sel.SessionID)
	assert.Equal(t, []string{"customs"}, p.selected)
	assert.Equal(t, []string{"customs/Customs/template"}, s.started)
	assert.Equal(t, []string{core.EventMapSelected}, s.events)
}

func TestMapSelect_WithoutCalibration(t *testing.T) {
	d, p, _ := setup(t)
	p.calibrate = false

	result, err := d.Dispatch(dispatcher.NewEvent(CmdMapSelect, "customs"))
	require.NoError(t, err)
	assert.False(t, result.(MapSelection).Tracking)
}

func TestMapSelect_Errors(t *testing.T) {
	d, p, _ := setup(t)

	_, err := d.Dispatch(dispatcher.NewEvent(CmdMapSelect))
	assert.ErrorIs(t, err, ErrMissingArgument)

	_, err = d.Dispatch(dispatcher.NewEvent(CmdMapSelect, "labs"))
	assert.ErrorContains(t, err, "unknown map")
	assert.Empty(t, p.selected)
}

func TestPauseResumeToggle(t *testing.T) {
	d, p, s := setup(t)

	result, err := d.Dispatch(dispatcher.NewEvent(CmdPause))
	require.NoError(t, err)
	assert.Equal(t, "paused", result)
	assert.True(t, p.paused)

	result, err = d.Dispatch(dispatcher.NewEvent(CmdResume))
	require.NoError(t, err)
	assert.Equal(t, "resumed", result)
	assert.False(t, p.paused)

	result, err = d.Dispatch(dispatcher.NewEvent(CmdToggle))
	require.NoError(t, err)
	assert.Equal(t, "paused", result)
	assert.True(t, p.paused)

	assert.Equal(t, []string{core.EventPaused, core.EventResumed, core.EventPaused}, s.events)
}

func TestCaptureRegion(t *testing.T) {
	d, p, _ := setup(t)

	result, err := d.Dispatch(dispatcher.NewEvent(CmdCaptureRegion, "10,20,300,200"))
	require.NoError(t, err)
	want := core.Region{Monitor: 1, X: 10, Y: 20, Width: 300, Height: 200}
	assert.Equal(t, want, result)
	assert.Equal(t, want, p.region)

	_, err = d.Dispatch(dispatcher.NewEvent(CmdCaptureRegion, "1", "2", "30", "40"))
	require.NoError(t, err)
	assert.Equal(t, 30, p.region.Width)

	_, err = d.Dispatch(dispatcher.NewEvent(CmdCaptureRegion, "10,20,0,200"))
	assert.Error(t, err)
	assert.Equal(t, 30, p.region.Width)
}

func TestDetectorThreshold(t *testing.T) {
	d, p, _ := setup(t)

	result, err := d.Dispatch(dispatcher.NewEvent(CmdDetectorThresh, "0.75"))
	require.NoError(t, err)
	assert.Equal(t, 0.75, result)
	assert.Equal(t, 0.75, p.threshold)

	_, err = d.Dispatch(dispatcher.NewEvent(CmdDetectorThresh, "high"))
	assert.Error(t, err)

	_, err = d.Dispatch(dispatcher.NewEvent(CmdDetectorThresh, "1.5"))
	assert.Error(t, err)
	assert.Equal(t, 0.75, p.threshold)
}

func TestStatus(t *testing.T) {
	d, _, _ := setup(t)

	result, err := d.Dispatch(dispatcher.NewEvent(CmdStatus))
	require.NoError(t, err)
	status := result.(core.PipelineStatus)
	assert.Equal(t, "customs", status.MapID)
}

func TestWithoutSessions(t *testing.T) {
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	p := &mockPipeline{calibrate: true}
	NewManager(Dependencies{Pipeline: p}).RegisterHandlers(d)

	result, err := d.Dispatch(dispatcher.NewEvent(CmdMapSelect, "woods"))
	require.NoError(t, err)
	assert.Empty(t, result.(MapSelection).SessionID)

	ids, err := d.Dispatch(dispatcher.NewEvent(CmdMapList))
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = d.Dispatch(dispatcher.NewEvent(CmdStatus))
	assert.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	d, _, _ := setup(t)

	result, err := d.Dispatch(dispatcher.NewEvent(CmdLogLevel, "debug"))
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", result)

	_, err = d.Dispatch(dispatcher.NewEvent(CmdLogLevel))
	assert.ErrorIs(t, err, ErrMissingArgument)
}

func TestToggle_Debounced(t *testing.T) {
	d, p, _ := setup(t)

	first := dispatcher.NewEvent(CmdToggle)
	_, err := d.Dispatch(first)
	require.NoError(t, err)
	assert.True(t, p.paused)

	repeat := dispatcher.NewEvent(CmdToggle)
	repeat.Timestamp = first.Timestamp.Add(50 * time.Millisecond)
	result, err := d.Dispatch(repeat)
	require.NoError(t, err)
	assert.Equal(t, dispatcher.Debounced, result)
	assert.True(t, p.paused)
}
