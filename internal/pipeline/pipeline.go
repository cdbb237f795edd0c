package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarkov-map/tracker/internal/calibration"
	"github.com/tarkov-map/tracker/internal/capture"
	"github.com/tarkov-map/tracker/internal/detect"
	"github.com/tarkov-map/tracker/internal/handoff"
	"github.com/tarkov-map/tracker/internal/maps"
	"github.com/tarkov-map/tracker/internal/publish"
	"github.com/tarkov-map/tracker/internal/screenshot"
	"github.com/tarkov-map/tracker/internal/timeutil"
	"github.com/tarkov-map/tracker/internal/tracker"
	"github.com/tarkov-map/tracker/pkg/core"
)

// SourceScreenshot marks observations derived from screenshot filenames.
const SourceScreenshot = "screenshot"

// MapLookup resolves map records for screenshot fixes.
type MapLookup interface {
	Get(id string) (*core.Map, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock replaces the wall clock.
func WithClock(c timeutil.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithNotifier receives persistent capture failure notifications.
func WithNotifier(n capture.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithDetector replaces the configured detection strategy. The
// configured confidence threshold still applies.
func WithDetector(d detect.Detector) Option {
	return func(p *Pipeline) { p.inner = d }
}

// WithScreenshotFixes feeds positions from screenshot filenames into the
// tracker. lookup supplies the map geometry used to project them.
func WithScreenshotFixes(fixes *handoff.Slot[screenshot.Fix], lookup MapLookup) Option {
	return func(p *Pipeline) {
		p.fixes = fixes
		p.lookup = lookup
	}
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	MapID      string
	Epoch      uint64
	State      core.TrackingState
	Paused     bool
	Captured   uint64
	Dropped    uint64
	Detections uint64
	Misses     uint64
	Outliers   uint64
	Published  uint64
	Fixes      uint64
	CaptureErr error
}

// Pipeline runs capture and detection/tracking as two workers joined by a
// single frame slot, and publishes world positions for the active map.
type Pipeline struct {
	logger   *slog.Logger
	clock    timeutil.Clock
	notifier capture.Notifier

	settings  *SettingsStore
	capture   *capture.Stage
	inner     detect.Detector
	detector  *detect.Gate
	tracker   *tracker.Tracker
	mapper    *calibration.Mapper
	publisher *publish.Publisher

	fixes  *handoff.Slot[screenshot.Fix]
	lookup MapLookup

	// mu orders map switches against publishing so no position from a
	// previous epoch is published after the switch.
	mu    sync.Mutex
	epoch uint64

	lastSeq uint64
	metrics *instruments

	detections atomic.Uint64
	misses     atomic.Uint64
	outliers   atomic.Uint64
	fixCount   atomic.Uint64
}

// Config groups the stage configurations.
type Config struct {
	Capture    capture.Config
	Detector   detect.Config
	Tracker    tracker.Config
	StaleAfter time.Duration
	Region     core.Region
}

// New assembles a pipeline around capturer. mapper decides which map, if
// any, is being tracked.
func New(cfg Config, capturer capture.Capturer, mapper *calibration.Mapper, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		logger: slog.Default(),
		clock:  timeutil.RealClock{},
		mapper: mapper,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")

	var err error
	if p.inner != nil {
		p.detector, err = detect.NewGate(p.inner, cfg.Detector.ConfidenceThreshold)
	} else {
		p.detector, err = detect.New(cfg.Detector)
	}
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	if p.tracker, err = tracker.New(cfg.Tracker, p.logger); err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	p.settings = NewSettingsStore(Settings{Region: cfg.Region})
	if p.capture, err = capture.NewStage(capturer, cfg.Capture, p.settings, p.notifier, p.logger, p.clock); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if p.metrics, err = newInstruments(); err != nil {
		return nil, err
	}
	p.publisher = publish.New(cfg.StaleAfter)
	p.epoch = mapper.Active().Epoch
	return p, nil
}

// Publisher returns the position publisher.
func (p *Pipeline) Publisher() *publish.Publisher { return p.publisher }

// Settings returns the runtime settings store.
func (p *Pipeline) Settings() *SettingsStore { return p.settings }

// Tracker returns the position tracker.
func (p *Pipeline) Tracker() *tracker.Tracker { return p.tracker }

// Mapper returns the coordinate mapper.
func (p *Pipeline) Mapper() *calibration.Mapper { return p.mapper }

// DetectorName names the active detection strategy.
func (p *Pipeline) DetectorName() string { return p.detector.Name() }

// Run starts both workers and blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := p.capture.Run(ctx); err != nil {
			p.logger.Error("capture stage failed", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		p.detectLoop(ctx)
	}()
	wg.Wait()
	return nil
}

func (p *Pipeline) detectLoop(ctx context.Context) {
	frames := p.capture.Frames().Ready()
	var fixes <-chan struct{}
	if p.fixes != nil {
		fixes = p.fixes.Ready()
	}

	p.logger.Info("detection stage started", "detector", p.detector.Name())
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("detection stage stopped")
			return
		case <-frames:
		case <-fixes:
		}
		if err := p.Step(ctx); err != nil && !errors.Is(err, core.ErrCalibrationMissing) {
			p.logger.Debug("step failed", "error", err)
		}
	}
}

// Step runs one detection/tracking cycle on whatever is pending: a
// screenshot fix first, then the newest captured frame.
func (p *Pipeline) Step(ctx context.Context) error {
	active := p.syncEpoch()

	if !active.Usable() {
		p.capture.Frames().Take()
		if p.fixes != nil {
			p.fixes.Take()
		}
		if active.MapID == "" {
			return nil
		}
		return fmt.Errorf("map %q: %w", active.MapID, core.ErrCalibrationMissing)
	}

	if p.fixes != nil {
		if fix, ok := p.fixes.Take(); ok {
			if obs, err := p.fixObservation(active, fix); err != nil {
				p.logger.Warn("screenshot fix not usable", "file", fix.Path, "error", err)
			} else {
				p.fixCount.Add(1)
				p.observe(ctx, active, obs, true)
			}
		}
	}

	frame, ok := p.capture.Frames().Take()
	if !ok {
		return nil
	}
	if frame.Seq <= p.lastSeq {
		return nil
	}
	p.lastSeq = frame.Seq

	start := p.clock.Now()
	obs := p.detector.Detect(&frame)
	p.metrics.detectDuration.Record(ctx, float64(p.clock.Since(start).Microseconds())/1000)

	return p.observe(ctx, active, obs, false)
}

// syncEpoch resets tracking when the active map changed since the last
// cycle.
func (p *Pipeline) syncEpoch() *calibration.Active {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := p.mapper.Active()
	if active.Epoch != p.epoch {
		p.epoch = active.Epoch
		p.tracker.Reset()
		p.publisher.Clear()
	}
	return active
}

func (p *Pipeline) observe(ctx context.Context, active *calibration.Active, obs core.MarkerObservation, authoritative bool) error {
	pos, emit, current, err := p.track(active, obs, authoritative)
	if !current {
		p.logger.Debug("observation from previous map discarded", "map", active.MapID, "epoch", active.Epoch)
		return nil
	}

	switch {
	case err == nil:
		p.detections.Add(1)
		p.metrics.detections.Add(ctx, 1)
	case errors.Is(err, core.ErrOutlierRejected):
		p.outliers.Add(1)
		p.metrics.outliers.Add(ctx, 1)
	case errors.Is(err, core.ErrDetectionMiss):
		p.misses.Add(1)
		p.metrics.misses.Add(ctx, 1)
	}

	if emit {
		p.publish(active, pos)
	}
	return err
}

// track feeds obs to the tracker unless the map changed since active was
// read. SelectMap resets the tracker under the same lock.
func (p *Pipeline) track(active *calibration.Active, obs core.MarkerObservation, authoritative bool) (pos core.TrackedPosition, emit, current bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if active.Epoch != p.epoch || active.Epoch != p.mapper.Active().Epoch {
		return pos, false, false, nil
	}
	pos, emit, err = p.tracker.Observe(obs)
	if authoritative && errors.Is(err, core.ErrOutlierRejected) {
		// a screenshot fix overrides the track it disagrees with
		p.tracker.Reset()
		pos, emit, err = p.tracker.Observe(obs)
	}
	return pos, emit, true, err
}

func (p *Pipeline) publish(active *calibration.Active, pos core.TrackedPosition) {
	cal := active.Calibration
	pos.MapID = active.MapID
	pos.Epoch = active.Epoch
	pos.World = cal.WorldFromPixel(pos.Pixel)
	pos.WorldHeading = cal.HeadingToWorld(pos.Heading)
	pos.Velocity = cal.VelocityToWorld(pos.Velocity)

	p.mu.Lock()
	defer p.mu.Unlock()
	if active.Epoch != p.epoch || active.Epoch != p.mapper.Active().Epoch {
		return
	}
	p.publisher.Publish(pos)
}

// fixObservation projects a screenshot fix through the map geometry and
// the calibration into a full-confidence pixel observation.
func (p *Pipeline) fixObservation(active *calibration.Active, fix screenshot.Fix) (core.MarkerObservation, error) {
	if p.lookup == nil {
		return core.MarkerObservation{}, errors.New("no map catalog")
	}
	m, err := p.lookup.Get(active.MapID)
	if err != nil {
		return core.MarkerObservation{}, err
	}
	world, ok := maps.GameToImage(m, fix.Game())
	if !ok {
		return core.MarkerObservation{}, fmt.Errorf("map %q has no game coordinate transform", active.MapID)
	}
	heading, _ := maps.GameHeadingToImage(m, fix.Yaw)

	cal := active.Calibration
	return core.MarkerObservation{
		Found:      true,
		Pixel:      cal.PixelFromWorld(world),
		Heading:    cal.HeadingToPixel(heading),
		Confidence: 1,
		Source:     SourceScreenshot,
		At:         p.clock.Now(),
	}, nil
}

// SelectMap activates mapID, resetting the tracker and discarding the
// published position. A map without calibration is still selected but
// tracking stays disabled until another map is chosen.
func (p *Pipeline) SelectMap(mapID string) (*calibration.Active, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	active, err := p.mapper.Select(mapID)
	p.epoch = active.Epoch
	p.tracker.Reset()
	p.publisher.Clear()
	if err != nil {
		p.logger.Warn("map selected without calibration, tracking disabled", "map", mapID, "error", err)
	} else {
		p.logger.Info("map selected", "map", mapID, "epoch", active.Epoch,
			"calibration", string(active.Calibration.Kind()))
	}
	return active, err
}

// Pause stops capturing until Resume.
func (p *Pipeline) Pause() {
	p.settings.Update(func(s *Settings) { s.Paused = true })
	p.logger.Info("tracking paused")
}

// Resume restarts capturing.
func (p *Pipeline) Resume() {
	p.settings.Update(func(s *Settings) { s.Paused = false })
	p.logger.Info("tracking resumed")
}

// TogglePause flips the pause flag and returns the new value.
func (p *Pipeline) TogglePause() bool {
	s := p.settings.Update(func(s *Settings) { s.Paused = !s.Paused })
	p.logger.Info("tracking pause toggled", "paused", s.Paused)
	return s.Paused
}

// CaptureRegion returns the region captured from the next cycle on.
func (p *Pipeline) CaptureRegion() core.Region { return p.settings.CaptureRegion() }

// SetRegion changes the capture region from the next cycle on.
func (p *Pipeline) SetRegion(r core.Region) error {
	if r.Empty() {
		return fmt.Errorf("capture region must have positive size, got %dx%d", r.Width, r.Height)
	}
	p.settings.Update(func(s *Settings) { s.Region = r })
	p.logger.Info("capture region changed", "region", r)
	return nil
}

// SetThreshold changes the detection confidence threshold for both the
// detector gate and the tracker.
func (p *Pipeline) SetThreshold(v float64) error {
	if err := p.detector.SetThreshold(v); err != nil {
		return err
	}
	return p.tracker.UpdateConfig(func(c *tracker.Config) { c.ConfidenceThreshold = v })
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	active := p.mapper.Active()
	frames := p.capture.Frames()
	return Stats{
		MapID:      active.MapID,
		Epoch:      active.Epoch,
		State:      p.tracker.State(),
		Paused:     p.settings.Paused(),
		Captured:   frames.Published(),
		Dropped:    frames.Dropped(),
		Detections: p.detections.Load(),
		Misses:     p.misses.Load(),
		Outliers:   p.outliers.Load(),
		Published:  p.publisher.Published(),
		Fixes:      p.fixCount.Load(),
		CaptureErr: p.capture.LastError(),
	}
}

// Status converts the counters into a recordable snapshot.
func (s Stats) Status(now time.Time) core.PipelineStatus {
	st := core.PipelineStatus{
		Time:       now,
		MapID:      s.MapID,
		State:      s.State.String(),
		Paused:     s.Paused,
		Captured:   s.Captured,
		Dropped:    s.Dropped,
		Detections: s.Detections,
		Misses:     s.Misses,
		Outliers:   s.Outliers,
		Published:  s.Published,
		Fixes:      s.Fixes,
	}
	if s.CaptureErr != nil {
		st.LastError = s.CaptureErr.Error()
	}
	return st
}
